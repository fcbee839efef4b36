package task

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/lane"
)

// NewID returns a new lexically sortable task ID.
func NewID() string {
	return ulid.Make().String()
}

// Envelope is the immutable outcome of one task. Exactly one of Value and Err
// is meaningful, selected by Success.
type Envelope[T any] struct {
	TaskID  string
	Lane    lane.Kind
	Success bool
	Value   T
	Err     error
	Elapsed time.Duration
	Budget  time.Duration // zero when the task had no timeout budget
}

// Succeeded builds a successful envelope.
func Succeeded[T any](id string, kind lane.Kind, value T, elapsed, budget time.Duration) Envelope[T] {
	return Envelope[T]{
		TaskID:  id,
		Lane:    kind,
		Success: true,
		Value:   value,
		Elapsed: elapsed,
		Budget:  budget,
	}
}

// Failed builds a failed envelope carrying err.
func Failed[T any](id string, kind lane.Kind, err error, elapsed, budget time.Duration) Envelope[T] {
	return Envelope[T]{
		TaskID:  id,
		Lane:    kind,
		Err:     err,
		Elapsed: elapsed,
		Budget:  budget,
	}
}

// Kind classifies the failure, or returns errors.KindNone on success.
func (e Envelope[T]) Kind() errors.Kind {
	if e.Success {
		return errors.KindNone
	}
	return errors.KindOf(e.Err)
}

// Unwrap returns the value and error in the usual Go form.
func (e Envelope[T]) Unwrap() (T, error) {
	return e.Value, e.Err
}
