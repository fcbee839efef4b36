package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/lanes/internal/coordinator"
	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/event"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/logging"
)

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets the lane configuration.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithDispatcher makes d the coordinator. Without it the registry starts and
// owns a coordinator.Loop.
func WithDispatcher(d coordinator.Dispatcher) Option {
	return func(r *Registry) { r.dispatcher = d }
}

// WithLogger sets the logger shared by the registry and its lanes.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBus sets the event bus. Without it the registry creates its own.
func WithBus(bus *event.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// Registry owns the lanes and the coordinator. Lanes are created on first
// use. After Shutdown every submission fails fast.
type Registry struct {
	cfg        Config
	logger     *logging.Logger
	bus        *event.Bus
	dispatcher coordinator.Dispatcher
	loop       *coordinator.Loop // set when the registry owns the coordinator

	mu      sync.Mutex
	lanes   map[lane.Kind]*lane.Lane
	closing bool
	closed  chan struct{}

	// pending holds completions posted to the coordinator and not yet
	// delivered. Shutdown resolves whatever Clear dropped.
	pendingMu sync.Mutex
	pending   map[completion]struct{}
}

// completion is a task outcome on its way to the coordinator.
type completion interface {
	abandon(cause error)
}

func (r *Registry) track(c completion) {
	r.pendingMu.Lock()
	r.pending[c] = struct{}{}
	r.pendingMu.Unlock()
}

func (r *Registry) untrack(c completion) {
	r.pendingMu.Lock()
	delete(r.pending, c)
	r.pendingMu.Unlock()
}

// clearCoordinator drops pending coordinator actions and resolves every
// completion that was dropped with them, so no handle stays unresolved.
func (r *Registry) clearCoordinator() (cleared, abandoned int) {
	r.pendingMu.Lock()
	cleared = r.dispatcher.Clear()
	stranded := make([]completion, 0, len(r.pending))
	for c := range r.pending {
		stranded = append(stranded, c)
	}
	r.pendingMu.Unlock()

	for _, c := range stranded {
		c.abandon(errors.ErrCoordinatorStopped)
	}
	return cleared, len(stranded)
}

// New creates a Registry.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		cfg:     DefaultConfig(),
		logger:  logging.NopLogger(),
		lanes:   make(map[lane.Kind]*lane.Lane, 3),
		closed:  make(chan struct{}),
		pending: make(map[completion]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pool config")
	}
	if r.bus == nil {
		r.bus = event.NewBus(event.WithLogger(r.logger))
	}
	if r.dispatcher == nil {
		r.loop = coordinator.NewLoop(coordinator.WithLogger(r.logger.With("component", "coordinator")))
		if err := r.loop.Start(); err != nil {
			return nil, err
		}
		r.dispatcher = r.loop
	}
	return r, nil
}

// Dispatcher returns the coordinator.
func (r *Registry) Dispatcher() coordinator.Dispatcher { return r.dispatcher }

// Bus returns the event bus lanes publish on.
func (r *Registry) Bus() *event.Bus { return r.bus }

// Config returns the lane configuration.
func (r *Registry) Config() Config { return r.cfg }

// Lane returns the lane for kind, creating it on first use.
func (r *Registry) Lane(kind lane.Kind) (*lane.Lane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return nil, errors.ErrRegistryShutdown
	}
	if l, ok := r.lanes[kind]; ok {
		return l, nil
	}

	cfg, ok := r.cfg.Lanes[kind]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownLane, "lane %q", kind)
	}
	l, err := lane.New(cfg, lane.WithLogger(r.logger), lane.WithBus(r.bus))
	if err != nil {
		return nil, err
	}
	r.lanes[kind] = l
	r.logger.Debug("lane created", "lane", string(kind), "min_workers", cfg.MinWorkers, "max_workers", cfg.MaxWorkers)
	return l, nil
}

// IsShutdown reports whether Shutdown has been called.
func (r *Registry) IsShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// RunOnCoordinator posts action to the coordinator.
func (r *Registry) RunOnCoordinator(action func()) error {
	if r.IsShutdown() {
		return errors.ErrRegistryShutdown
	}
	return r.dispatcher.Post(action)
}

// RunDelayed posts action to the coordinator to run after delay.
func (r *Registry) RunDelayed(delay time.Duration, action func()) error {
	if r.IsShutdown() {
		return errors.ErrRegistryShutdown
	}
	return r.dispatcher.PostDelayed(action, delay)
}

// Shutdown stops intake on every created lane and waits for queued work to
// drain, up to the drain timeout per lane. Lanes that do not drain in time
// are force-terminated and their queued tasks resolve as discarded. Pending
// coordinator actions are then cleared and an owned coordinator is stopped.
//
// If ctx is cancelled while waiting, every lane is force-terminated at once
// and the cancellation is returned. Calls after the first wait for it to
// finish and return nil.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closing {
		closed := r.closed
		r.mu.Unlock()
		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.closing = true
	lanes := make([]*lane.Lane, 0, len(r.lanes))
	for _, k := range lane.Kinds() {
		if l, ok := r.lanes[k]; ok {
			lanes = append(lanes, l)
		}
	}
	r.mu.Unlock()
	defer close(r.closed)

	r.logger.Info("registry shutting down", "lanes", len(lanes))
	for _, l := range lanes {
		l.Shutdown()
	}

	var forced atomic.Bool
	var discarded atomic.Int64
	var wg conc.WaitGroup
	for _, l := range lanes {
		wg.Go(func() {
			waitCtx, cancel := context.WithTimeout(ctx, r.cfg.DrainTimeout)
			defer cancel()

			if err := l.AwaitTermination(waitCtx); err != nil {
				dropped := l.ShutdownNow()
				forced.Store(true)
				discarded.Add(int64(len(dropped)))
				r.logger.Warn("lane did not drain, forcing termination",
					"lane", string(l.Kind()),
					"discarded", len(dropped),
					"error", err.Error(),
				)
			}
		})
	}
	wg.Wait()

	var result error
	if err := ctx.Err(); err != nil {
		result = errors.Wrap(err, "registry shutdown interrupted")
	}

	cleared, abandoned := r.clearCoordinator()
	if r.loop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DrainTimeout)
		if err := r.loop.Stop(stopCtx); err != nil {
			r.logger.Warn("coordinator did not stop", "error", err.Error())
		}
		cancel()
	}

	r.logger.Info("registry shut down",
		"forced", forced.Load(),
		"discarded", discarded.Load(),
		"cleared", cleared,
		"abandoned", abandoned,
	)
	r.bus.Publish(event.NewRegistryShutdownEvent(forced.Load(), int(discarded.Load()), cleared))
	return result
}

// Done returns a channel closed when the first Shutdown call has finished.
func (r *Registry) Done() <-chan struct{} {
	return r.closed
}
