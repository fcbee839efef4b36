package lane

import (
	"context"
	"fmt"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lanes/internal/admission"
	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/event"
	"github.com/Iron-Ham/lanes/internal/logging"
)

// Task is a unit of work run by a lane.
type Task interface {
	Run()
}

// TaskFunc adapts a plain function to a Task.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() { f() }

// Discarder is implemented by tasks that want to know when they are dropped
// from the queue by ShutdownNow without having run.
type Discarder interface {
	Discard(err error)
}

// Option configures a Lane.
type Option func(*Lane)

// WithLogger sets the lane logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Lane) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBus sets the bus that receives lane lifecycle events.
func WithBus(bus *event.Bus) Option {
	return func(l *Lane) { l.bus = bus }
}

// Lane is a bounded pool of worker goroutines fed by a FIFO queue.
// It is safe for concurrent use.
type Lane struct {
	cfg    Config
	policy *admission.Policy
	logger *logging.Logger
	bus    *event.Bus

	// queue is sent to only while mu is held and the lane is running, and is
	// closed under mu by Shutdown, so sends never block and never panic.
	queue chan Task

	mu         sync.Mutex
	state      State
	workers    int
	largest    int
	nextWorker int
	done       chan struct{}

	active     atomic.Int64
	completed  atomic.Uint64
	inlineRuns atomic.Uint64
	rejected   atomic.Uint64
}

// New creates a running lane. No workers are started until work arrives.
func New(cfg Config, opts ...Option) (*Lane, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Aliases are resolved once so stats and the policy see the canonical value.
	cfg.Overflow, _ = admission.ParseOverflow(string(cfg.Overflow))

	l := &Lane{
		cfg:    cfg,
		policy: admission.NewPolicy(admission.WithOverflow(cfg.Overflow)),
		logger: logging.NopLogger(),
		queue:  make(chan Task, cfg.QueueCapacity),
		state:  StateRunning,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithLane(string(cfg.Kind))
	return l, nil
}

// Kind returns the lane kind.
func (l *Lane) Kind() Kind { return l.cfg.Kind }

// Config returns the lane configuration.
func (l *Lane) Config() Config { return l.cfg }

// Execute admits t. Depending on the lane state t is handed to a new worker,
// queued, run synchronously on the calling goroutine (run-inline overflow), or
// refused with a *errors.RejectedError.
func (l *Lane) Execute(t Task) error {
	if t == nil {
		return errors.New("lane: nil task")
	}

	l.mu.Lock()
	d := l.policy.Decide(admission.State{
		Workers:       l.workers,
		MinWorkers:    l.cfg.MinWorkers,
		MaxWorkers:    l.cfg.MaxWorkers,
		Queued:        len(l.queue),
		QueueCapacity: cap(l.queue),
		Accepting:     l.state == StateRunning,
	})

	switch d.Action {
	case admission.ActionSpawn:
		l.spawnLocked(t)
		l.mu.Unlock()
		return nil

	case admission.ActionEnqueue:
		l.queue <- t
		if l.workers == 0 {
			// MinWorkers is zero and every worker has expired.
			l.spawnLocked(nil)
		}
		l.mu.Unlock()
		return nil

	case admission.ActionRunInline:
		workers, queued := l.workers, len(l.queue)
		l.mu.Unlock()

		l.inlineRuns.Add(1)
		l.saturated(d, queued, workers)
		l.runTask(t, "", true)
		return nil

	default:
		workers, queued := l.workers, len(l.queue)
		l.mu.Unlock()

		if !d.Saturated() {
			return &errors.RejectedError{Lane: string(l.cfg.Kind), Cause: errors.ErrLaneShutdown}
		}
		l.rejected.Add(1)
		l.saturated(d, queued, workers)
		return &errors.RejectedError{Lane: string(l.cfg.Kind), Cause: errors.ErrQueueFull}
	}
}

func (l *Lane) saturated(d admission.Decision, queued, workers int) {
	l.logger.Warn("lane saturated", "action", d.Action.String(), "reason", d.Reason)
	l.bus.Publish(event.NewLaneSaturatedEvent(string(l.cfg.Kind), d.Action.String(), queued, workers))
}

// spawnLocked starts a worker. l.mu must be held.
func (l *Lane) spawnLocked(first Task) {
	l.workers++
	l.nextWorker++
	if l.workers > l.largest {
		l.largest = l.workers
	}
	name := fmt.Sprintf("%s-%d", l.cfg.Name(), l.nextWorker)
	poolSize := l.workers

	go func() {
		labels := pprof.Labels(
			"lane", string(l.cfg.Kind),
			"worker", name,
			"priority", string(l.cfg.Priority),
		)
		pprof.Do(context.Background(), labels, func(context.Context) {
			l.work(name, first, poolSize)
		})
	}()
}

func (l *Lane) work(name string, first Task, poolSize int) {
	l.logger.Debug("worker started", "worker", name, "pool_size", poolSize)
	l.bus.Publish(event.NewWorkerStartedEvent(string(l.cfg.Kind), name, poolSize))

	reason := event.StopReasonShutdown
	expired := false
	defer func() { l.exit(name, reason, expired) }()

	if first != nil {
		l.runTask(first, name, false)
	}

	var timer *time.Timer
	if l.cfg.KeepAlive > 0 {
		timer = time.NewTimer(l.cfg.KeepAlive)
		defer timer.Stop()
	}

	for {
		var idle <-chan time.Time
		if timer != nil {
			timer.Reset(l.cfg.KeepAlive)
			idle = timer.C
		}

		select {
		case t, ok := <-l.queue:
			if !ok {
				return
			}
			l.runTask(t, name, false)
		case <-idle:
			if l.tryExpire() {
				reason, expired = event.StopReasonIdle, true
				return
			}
		}
	}
}

// tryExpire removes an idle worker from the count if the lane is above its
// minimum and nothing is waiting in the queue.
func (l *Lane) tryExpire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning || l.workers <= l.cfg.MinWorkers || len(l.queue) > 0 {
		return false
	}
	l.workers--
	return true
}

func (l *Lane) exit(name, reason string, expired bool) {
	l.mu.Lock()
	if !expired {
		l.workers--
	}
	remaining := l.workers
	terminated := l.terminateLocked()
	l.mu.Unlock()

	l.logger.Debug("worker stopped", "worker", name, "reason", reason, "pool_size", remaining)
	l.bus.Publish(event.NewWorkerStoppedEvent(string(l.cfg.Kind), name, remaining, reason))
	if terminated {
		l.announceTerminated()
	}
}

// terminateLocked moves a shutting down lane with no workers to
// StateTerminated. l.mu must be held.
func (l *Lane) terminateLocked() bool {
	if l.state != StateShuttingDown || l.workers > 0 {
		return false
	}
	l.state = StateTerminated
	close(l.done)
	return true
}

func (l *Lane) announceTerminated() {
	completed := l.completed.Load()
	l.logger.Info("lane terminated", "completed", completed)
	l.bus.Publish(event.NewLaneTerminatedEvent(string(l.cfg.Kind), completed))
}

func (l *Lane) runTask(t Task, worker string, inline bool) {
	l.active.Add(1)
	defer l.active.Add(-1)

	var pc panics.Catcher
	pc.Try(t.Run)
	if r := pc.Recovered(); r != nil {
		l.logger.Error("task panicked",
			"worker", worker,
			"inline", inline,
			"panic", fmt.Sprint(r.Value),
			"stack", string(r.Stack),
		)
	}

	if !inline {
		l.completed.Add(1)
	}
}

// Shutdown stops intake. Queued and in-flight tasks still run; the lane
// terminates when the last worker exits. Calling Shutdown more than once is
// a no-op.
func (l *Lane) Shutdown() {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	l.state = StateShuttingDown
	close(l.queue)
	queued := len(l.queue)
	terminated := l.terminateLocked()
	l.mu.Unlock()

	l.logger.Info("lane shutting down", "queued", queued)
	if terminated {
		l.announceTerminated()
	}
}

// ShutdownNow stops intake and removes every queued task that has not started.
// Removed tasks implementing Discarder are told why. Tasks already running are
// not interrupted.
func (l *Lane) ShutdownNow() []Task {
	l.Shutdown()

	var dropped []Task
	for t := range l.queue {
		dropped = append(dropped, t)
	}

	if len(dropped) > 0 {
		l.logger.Warn("discarded queued tasks", "count", len(dropped))
	}
	for _, t := range dropped {
		if d, ok := t.(Discarder); ok {
			d.Discard(&errors.RejectedError{Lane: string(l.cfg.Kind), Cause: errors.ErrTaskDiscarded})
		}
	}
	return dropped
}

// Done returns a channel closed when the lane has terminated.
func (l *Lane) Done() <-chan struct{} {
	return l.done
}

// Terminated reports whether the lane has shut down and all workers exited.
func (l *Lane) Terminated() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// AwaitTermination blocks until the lane terminates or ctx is done.
func (l *Lane) AwaitTermination(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
