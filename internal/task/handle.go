package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lanes/internal/coordinator"
	"github.com/Iron-Ham/lanes/internal/logging"
)

// Handle is a single-assignment result of a submitted task with reactions
// that fire on the coordinator once the result is known.
type Handle[T any] struct {
	id         string
	dispatcher coordinator.Dispatcher
	logger     *logging.Logger

	mu        sync.Mutex
	resolved  bool
	env       Envelope[T]
	reactions []func(Envelope[T])
	done      chan struct{}
}

// NewHandle creates an unresolved handle. Reactions registered after the
// handle resolves are posted to d.
func NewHandle[T any](id string, d coordinator.Dispatcher, logger *logging.Logger) *Handle[T] {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Handle[T]{
		id:         id,
		dispatcher: d,
		logger:     logger.WithTask(id),
		done:       make(chan struct{}),
	}
}

// ID returns the task ID.
func (h *Handle[T]) ID() string { return h.id }

// Resolve stores env and runs the reactions registered so far, in
// registration order, on the calling goroutine. Only the first call has any
// effect; it reports whether this call resolved the handle.
func (h *Handle[T]) Resolve(env Envelope[T]) bool {
	h.mu.Lock()
	if h.resolved {
		h.mu.Unlock()
		return false
	}
	h.resolved = true
	h.env = env
	reactions := h.reactions
	h.reactions = nil
	close(h.done)
	h.mu.Unlock()

	for _, fn := range reactions {
		h.react(fn, env)
	}
	return true
}

// OnComplete registers fn to run with the envelope once the task finishes.
func (h *Handle[T]) OnComplete(fn func(Envelope[T])) *Handle[T] {
	if fn == nil {
		return h
	}

	h.mu.Lock()
	if !h.resolved {
		h.reactions = append(h.reactions, fn)
		h.mu.Unlock()
		return h
	}
	env := h.env
	h.mu.Unlock()

	h.replay(fn, env)
	return h
}

// OnSuccess registers fn to run with the value if the task succeeds.
func (h *Handle[T]) OnSuccess(fn func(T)) *Handle[T] {
	if fn == nil {
		return h
	}
	return h.OnComplete(func(env Envelope[T]) {
		if env.Success {
			fn(env.Value)
		}
	})
}

// OnError registers fn to run with the error if the task fails.
func (h *Handle[T]) OnError(fn func(error)) *Handle[T] {
	if fn == nil {
		return h
	}
	return h.OnComplete(func(env Envelope[T]) {
		if !env.Success {
			fn(env.Err)
		}
	})
}

func (h *Handle[T]) replay(fn func(Envelope[T]), env Envelope[T]) {
	if h.dispatcher == nil {
		h.react(fn, env)
		return
	}
	if err := h.dispatcher.Post(func() { h.react(fn, env) }); err != nil {
		h.logger.Debug("running reaction on registering goroutine", "error", err)
		h.react(fn, env)
	}
}

func (h *Handle[T]) react(fn func(Envelope[T]), env Envelope[T]) {
	var pc panics.Catcher
	pc.Try(func() { fn(env) })
	if r := pc.Recovered(); r != nil {
		h.logger.Error("task reaction panicked",
			"panic", fmt.Sprint(r.Value),
			"stack", string(r.Stack),
		)
	}
}

// Get blocks until the task finishes and returns its value. A failed task
// yields the zero value; use Await to see the error. Get must not be called
// from the coordinator, which is what resolves the handle.
func (h *Handle[T]) Get() T {
	<-h.done
	return h.env.Value
}

// GetTimeout is like Get but gives up after d and returns the zero value.
// A resolved handle returns its value even when d <= 0.
func (h *Handle[T]) GetTimeout(d time.Duration) T {
	select {
	case <-h.done:
		return h.env.Value
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.env.Value
	case <-timer.C:
		var zero T
		return zero
	}
}

// Await blocks until the task finishes or ctx is done.
func (h *Handle[T]) Await(ctx context.Context) (Envelope[T], error) {
	select {
	case <-h.done:
		return h.env, nil
	default:
	}

	select {
	case <-h.done:
		return h.env, nil
	case <-ctx.Done():
		return Envelope[T]{}, ctx.Err()
	}
}

// Peek returns the envelope without blocking. ok is false until the handle
// resolves.
func (h *Handle[T]) Peek() (env Envelope[T], ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.env, h.resolved
}

// Done returns a channel closed when the handle resolves.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}
