package pool

import (
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/event"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/task"
)

// Submit runs fn on the lane for kind and returns a handle that resolves on
// the coordinator. Submit never blocks, except when a saturated lane with
// run-inline overflow runs fn on the calling goroutine.
func Submit[T any](r *Registry, kind lane.Kind, fn func() (T, error)) *task.Handle[T] {
	return submit(r, kind, 0, fn)
}

// SubmitWithTimeout is like Submit, but a task that finishes without error
// after more than budget fails with *errors.TimeoutExceededError. The task is
// never interrupted.
func SubmitWithTimeout[T any](r *Registry, budget time.Duration, kind lane.Kind, fn func() (T, error)) *task.Handle[T] {
	return submit(r, kind, max(budget, 0), fn)
}

// SubmitIO submits fn to the IO lane.
func SubmitIO[T any](r *Registry, fn func() (T, error)) *task.Handle[T] {
	return Submit(r, lane.KindIO, fn)
}

// SubmitCompute submits fn to the Compute lane.
func SubmitCompute[T any](r *Registry, fn func() (T, error)) *task.Handle[T] {
	return Submit(r, lane.KindCompute, fn)
}

// SubmitSequential submits fn to the Sequential lane.
func SubmitSequential[T any](r *Registry, fn func() (T, error)) *task.Handle[T] {
	return Submit(r, lane.KindSequential, fn)
}

func submit[T any](r *Registry, kind lane.Kind, budget time.Duration, fn func() (T, error)) *task.Handle[T] {
	j := &job[T]{
		registry: r,
		kind:     kind,
		budget:   budget,
		fn:       fn,
	}
	j.id = task.NewID()
	j.handle = task.NewHandle[T](j.id, r.dispatcher, r.logger)

	if fn == nil {
		j.finish(task.Failed[T](j.id, kind, errors.New("pool: nil work function"), 0, budget), false)
		return j.handle
	}

	l, err := r.Lane(kind)
	if err != nil {
		j.reject(err)
		return j.handle
	}

	r.bus.Publish(event.NewTaskSubmittedEvent(j.id, string(kind)))
	if err := l.Execute(j); err != nil {
		j.reject(err)
	}
	return j.handle
}

// job adapts a work function to lane.Task and lane.Discarder.
type job[T any] struct {
	registry *Registry
	id       string
	kind     lane.Kind
	budget   time.Duration
	fn       func() (T, error)
	handle   *task.Handle[T]

	// Set before the outcome is posted to the coordinator.
	env     task.Envelope[T]
	ran     bool
	settled atomic.Bool
}

// Run executes the work function on a lane goroutine and delivers the
// envelope to the coordinator.
func (j *job[T]) Run() {
	start := time.Now()
	value, err := j.call()
	elapsed := time.Since(start)

	var env task.Envelope[T]
	switch {
	case err != nil:
		env = task.Failed[T](j.id, j.kind, err, elapsed, j.budget)
	case j.budget > 0 && elapsed > j.budget:
		env = task.Failed[T](j.id, j.kind, &errors.TimeoutExceededError{
			Lane:    string(j.kind),
			Elapsed: elapsed,
			Budget:  j.budget,
		}, elapsed, j.budget)
	default:
		env = task.Succeeded(j.id, j.kind, value, elapsed, j.budget)
	}
	j.ran = true
	j.finish(env, true)
}

// call invokes the work function. A panic carrying an error is returned as
// that error; any other panic value becomes *errors.PanicError.
func (j *job[T]) call() (value T, err error) {
	var pc panics.Catcher
	pc.Try(func() { value, err = j.fn() })

	if r := pc.Recovered(); r != nil {
		var zero T
		if e, ok := r.Value.(error); ok {
			return zero, e
		}
		return zero, &errors.PanicError{Value: r.Value, Stack: string(r.Stack)}
	}
	return value, err
}

// Discard resolves the handle of a task dropped by forced termination. The
// rejection is delivered on the coordinator like any other outcome.
func (j *job[T]) Discard(err error) {
	j.finish(task.Failed[T](j.id, j.kind, err, 0, j.budget), true)
}

func (j *job[T]) reject(err error) {
	var rejected *errors.RejectedError
	if !errors.As(err, &rejected) {
		err = &errors.RejectedError{Lane: string(j.kind), Cause: err}
	}
	j.finish(task.Failed[T](j.id, j.kind, err, 0, j.budget), false)
}

// finish resolves the handle. Outcomes of tasks that ran or were discarded
// are posted to the coordinator. Rejections at submission resolve directly,
// since nothing can have been registered on the handle yet.
func (j *job[T]) finish(env task.Envelope[T], dispatch bool) {
	log := j.registry.logger.WithLane(string(j.kind)).WithTask(j.id)

	if dispatch {
		j.env = env
		j.registry.track(j)
		if err := j.registry.dispatcher.Post(func() { j.settle(env) }); err != nil {
			log.Warn("failed to dispatch task completion", "error", err.Error())
			env = j.undeliverable(err)
			j.settle(env)
		}
	} else {
		j.handle.Resolve(env)
	}

	kind := env.Kind()
	switch kind {
	case errors.KindNone:
		log.Debug("task completed", "elapsed_ms", env.Elapsed.Milliseconds())
	case errors.KindTimeoutExceeded:
		log.Warn("task exceeded timeout budget",
			"elapsed_ms", env.Elapsed.Milliseconds(),
			"budget_ms", env.Budget.Milliseconds(),
		)
	default:
		log.Info("task failed", "kind", kind.String(), "error", env.Err.Error())
	}
	j.registry.bus.Publish(event.NewTaskCompletedEvent(j.id, string(j.kind), env.Success, kind.String(), env.Elapsed, env.Budget))
}

// settle resolves the handle with env unless it has already been settled.
// The coordinator and Shutdown may race to settle the same job.
func (j *job[T]) settle(env task.Envelope[T]) {
	if !j.settled.CompareAndSwap(false, true) {
		return
	}
	j.registry.untrack(j)
	j.handle.Resolve(env)
}

// undeliverable is the envelope used when the outcome cannot reach the
// coordinator. A task that never ran keeps its rejection; a task that ran
// fails with *errors.DispatchError carrying its original failure, if any.
func (j *job[T]) undeliverable(cause error) task.Envelope[T] {
	if !j.ran {
		return j.env
	}
	return task.Failed[T](j.id, j.kind, &errors.DispatchError{Cause: cause, Outcome: j.env.Err}, j.env.Elapsed, j.env.Budget)
}

// abandon settles a completion whose coordinator post was cleared.
func (j *job[T]) abandon(cause error) {
	j.settle(j.undeliverable(cause))
}
