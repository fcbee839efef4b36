package coordinator

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/logging"
)

type loopState int

const (
	loopNew loopState = iota
	loopRunning
	loopStopping
	loopStopped
)

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for action panics and lifecycle messages.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loop is a Dispatcher backed by a single goroutine that runs posted actions
// in FIFO order. Either call Start to run it on a new goroutine, or call Run
// to make the calling goroutine the coordinator.
type Loop struct {
	logger *logging.Logger

	mu     sync.Mutex
	state  loopState
	queue  []func()
	timers timerHeap
	seq    uint64

	wake   chan struct{}
	done   chan struct{}
	loopID atomic.Uint64

	executed atomic.Uint64
	panicked atomic.Uint64
}

var _ Dispatcher = (*Loop)(nil)

// NewLoop creates a Loop. Actions posted before it starts are kept until it
// does.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		logger: logging.NopLogger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start() error {
	if err := l.begin(); err != nil {
		return err
	}
	go func() { _ = l.run(context.Background()) }()
	return nil
}

// Run turns the calling goroutine into the coordinator. It returns nil after
// Stop, or ctx.Err() once ctx is cancelled and the queue has drained.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.begin(); err != nil {
		return err
	}
	return l.run(ctx)
}

func (l *Loop) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != loopNew {
		return fmt.Errorf("coordinator loop already started")
	}
	l.state = loopRunning
	return nil
}

func (l *Loop) run(ctx context.Context) error {
	l.loopID.Store(GoroutineID())
	l.logger.Debug("coordinator loop started", "goroutine", l.loopID.Load())

	defer func() {
		l.loopID.Store(0)
		l.mu.Lock()
		l.state = loopStopped
		l.queue = nil
		l.timers = nil
		l.mu.Unlock()
		close(l.done)
		l.logger.Debug("coordinator loop stopped", "executed", l.executed.Load())
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	ctxDone := ctx.Done()
	var ctxErr error

	for {
		action, wait, stopping := l.next(time.Now())
		if action != nil {
			l.execute(action)
			continue
		}
		if stopping {
			return ctxErr
		}

		var fire <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-l.wake:
		case <-fire:
		case <-ctxDone:
			ctxErr = ctx.Err()
			ctxDone = nil
			l.beginStop()
		}
		timer.Stop()
	}
}

// next promotes due timers to the queue and pops the head of the queue. When
// nothing is runnable it returns how long to wait for the next timer, or -1.
func (l *Loop) next(now time.Time) (action func(), wait time.Duration, stopping bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		d := heap.Pop(&l.timers).(delayed)
		l.queue = append(l.queue, d.action)
	}

	if len(l.queue) > 0 {
		action = l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		return action, 0, false
	}

	if l.state == loopStopping {
		return nil, 0, true
	}
	if len(l.timers) > 0 {
		return nil, l.timers[0].when.Sub(now), false
	}
	return nil, -1, false
}

func (l *Loop) execute(action func()) {
	var pc panics.Catcher
	pc.Try(action)
	l.executed.Add(1)

	if r := pc.Recovered(); r != nil {
		l.panicked.Add(1)
		l.logger.Error("coordinator action panicked",
			"panic", fmt.Sprint(r.Value),
			"stack", string(r.Stack),
		)
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// IsLoopGoroutine reports whether the caller is running on the loop.
func (l *Loop) IsLoopGoroutine() bool {
	id := l.loopID.Load()
	return id != 0 && id == GoroutineID()
}

// Post implements Dispatcher.
func (l *Loop) Post(action func()) error {
	if action == nil {
		return errors.New("coordinator: nil action")
	}
	if l.IsLoopGoroutine() {
		l.execute(action)
		return nil
	}

	l.mu.Lock()
	if l.state >= loopStopping {
		l.mu.Unlock()
		return errors.ErrCoordinatorStopped
	}
	l.queue = append(l.queue, action)
	l.mu.Unlock()

	l.signal()
	return nil
}

// PostDelayed implements Dispatcher. A negative delay is treated as zero.
// Delayed actions never run inline, even when posted from the loop.
func (l *Loop) PostDelayed(action func(), delay time.Duration) error {
	if action == nil {
		return errors.New("coordinator: nil action")
	}
	delay = max(delay, 0)

	l.mu.Lock()
	if l.state >= loopStopping {
		l.mu.Unlock()
		return errors.ErrCoordinatorStopped
	}
	l.seq++
	heap.Push(&l.timers, delayed{when: time.Now().Add(delay), seq: l.seq, action: action})
	l.mu.Unlock()

	l.signal()
	return nil
}

// Clear implements Dispatcher.
func (l *Loop) Clear() int {
	l.mu.Lock()
	n := len(l.queue) + len(l.timers)
	l.queue = nil
	l.timers = nil
	l.mu.Unlock()

	if n > 0 {
		l.logger.Debug("cleared pending coordinator actions", "count", n)
	}
	return n
}

// Pending returns the number of posted actions that have not run yet.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) + len(l.timers)
}

// Executed returns how many actions have run, including ones that panicked.
func (l *Loop) Executed() uint64 { return l.executed.Load() }

// Panics returns how many actions panicked.
func (l *Loop) Panics() uint64 { return l.panicked.Load() }

// beginStop refuses further posts and drops delayed actions. Already queued
// actions still run. It reports whether the loop was never started.
func (l *Loop) beginStop() (neverStarted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case loopNew:
		l.state = loopStopped
		l.queue = nil
		l.timers = nil
		return true
	case loopRunning:
		l.state = loopStopping
		if n := len(l.timers); n > 0 {
			l.logger.Debug("dropping delayed coordinator actions", "count", n)
		}
		l.timers = nil
	}
	return false
}

// Stop refuses further posts, runs the actions already queued, drops delayed
// actions and waits for the loop to exit. It is safe to call more than once.
// Calling Stop from inside a loop action returns without waiting.
func (l *Loop) Stop(ctx context.Context) error {
	if l.beginStop() {
		close(l.done)
		return nil
	}
	l.signal()

	if l.IsLoopGoroutine() {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
