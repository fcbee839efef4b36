// Package errors provides centralized error definitions and error handling utilities
// for lanes. It defines the sentinel errors returned by lanes, the coordinator and the
// registry, the typed failures carried by task envelopes, and classification helpers.
//
// # Failure Taxonomy
//
// Every failed task envelope carries an error that classifies into one [Kind]:
//   - KindExecution: the work item itself returned an error or panicked
//   - KindTimeoutExceeded: the work item finished, but later than its budget
//   - KindDispatch: delivering the outcome to the coordinator failed
//   - KindRejected: the work item never ran (queue full, shut down, discarded)
//
// Errors returned by a work item are delivered unchanged so callers can compare
// them by identity. Only the framework-generated failures are typed:
// [TimeoutExceededError], [DispatchError], [RejectedError] and [PanicError].
//
// # Usage
//
//	if errors.KindOf(env.Err) == errors.KindTimeoutExceeded { ... }
//
//	var rejected *errors.RejectedError
//	if errors.As(err, &rejected) && errors.Is(err, errors.ErrQueueFull) { ... }
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind classifies the failure carried by a task envelope.
type Kind int

const (
	// KindNone is returned for a nil error.
	KindNone Kind = iota
	// KindExecution means the work item itself failed.
	KindExecution
	// KindTimeoutExceeded means the work item completed after its budget.
	KindTimeoutExceeded
	// KindDispatch means the outcome could not be marshaled to the coordinator.
	KindDispatch
	// KindRejected means the work item was never run.
	KindRejected
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindExecution:
		return "execution"
	case KindTimeoutExceeded:
		return "timeout_exceeded"
	case KindDispatch:
		return "dispatch"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lifecycle sentinel errors
var (
	// ErrRegistryShutdown indicates a submission to a registry that has been shut down.
	ErrRegistryShutdown = New("registry is shut down")
	// ErrLaneShutdown indicates a submission to a lane that no longer accepts work.
	ErrLaneShutdown = New("lane is shut down")
	// ErrCoordinatorStopped indicates a post to a coordinator that is not accepting actions.
	ErrCoordinatorStopped = New("coordinator is stopped")
	// ErrTaskDiscarded indicates a queued task dropped by forced lane termination.
	ErrTaskDiscarded = New("task discarded before execution")
)

// Capacity and timing sentinel errors
var (
	// ErrQueueFull indicates the lane queue and worker set are both saturated.
	ErrQueueFull = New("lane queue is full")
	// ErrTimeoutExceeded matches every TimeoutExceededError via errors.Is.
	ErrTimeoutExceeded = New("task exceeded its timeout budget")
	// ErrUnknownLane indicates a lane kind the registry does not manage.
	ErrUnknownLane = New("unknown lane")
)

// -----------------------------------------------------------------------------
// Typed Failures
// -----------------------------------------------------------------------------

// TimeoutExceededError reports a work item that ran to completion but took longer
// than its budget. The work item is never interrupted; this only changes how the
// outcome is reported.
//
// Example:
//
//	err := &errors.TimeoutExceededError{Lane: "compute", Elapsed: 210 * time.Millisecond, Budget: 50 * time.Millisecond}
//	fmt.Println(err) // "compute task exceeded timeout budget: 210ms > 50ms"
type TimeoutExceededError struct {
	Lane    string
	Elapsed time.Duration
	Budget  time.Duration
}

// Error returns the formatted error message.
func (e *TimeoutExceededError) Error() string {
	prefix := "task"
	if e.Lane != "" {
		prefix = e.Lane + " task"
	}
	return fmt.Sprintf("%s exceeded timeout budget: %s > %s",
		prefix, e.Elapsed.Round(time.Millisecond), e.Budget.Round(time.Millisecond))
}

// Is matches ErrTimeoutExceeded and any other *TimeoutExceededError.
func (e *TimeoutExceededError) Is(target error) bool {
	if _, ok := target.(*TimeoutExceededError); ok {
		return true
	}
	return target == ErrTimeoutExceeded
}

// DispatchError reports that the coordinator refused the completion of a task.
// Outcome holds the failure the task would otherwise have reported, if any.
type DispatchError struct {
	Cause   error
	Outcome error
}

// Error returns the formatted error message.
func (e *DispatchError) Error() string {
	if e.Outcome != nil {
		return fmt.Sprintf("dispatch failed: %v (task outcome: %v)", e.Cause, e.Outcome)
	}
	return fmt.Sprintf("dispatch failed: %v", e.Cause)
}

// Unwrap returns the dispatch failure cause.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// RejectedError reports a work item that was never run.
//
// Example:
//
//	err := &errors.RejectedError{Lane: "sequential", Cause: errors.ErrQueueFull}
//	errors.Is(err, errors.ErrQueueFull) // true
type RejectedError struct {
	Lane  string
	Cause error
}

// Error returns the formatted error message.
func (e *RejectedError) Error() string {
	if e.Lane == "" {
		return fmt.Sprintf("task rejected: %v", e.Cause)
	}
	return fmt.Sprintf("task rejected by %s lane: %v", e.Lane, e.Cause)
}

// Unwrap returns the rejection cause.
func (e *RejectedError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a panic value that was not itself an error.
// Panics carrying an error value are delivered as that error unchanged.
type PanicError struct {
	Value any
	Stack string
}

// Error returns the formatted error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// KindOf classifies err. Any error that is not one of the framework failures is an
// execution failure.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var dispatch *DispatchError
	if As(err, &dispatch) {
		return KindDispatch
	}
	var rejected *RejectedError
	if As(err, &rejected) {
		return KindRejected
	}
	var timeout *TimeoutExceededError
	if As(err, &timeout) {
		return KindTimeoutExceeded
	}
	return KindExecution
}

// IsRetryable returns true if resubmitting the same work may succeed. Only
// rejections caused by a saturated queue qualify; shutdown and execution failures
// do not.
//
// Example:
//
//	if errors.IsRetryable(env.Err) {
//	    time.Sleep(backoff)
//	    pool.Submit(reg, kind, fn)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindRejected && Is(err, ErrQueueFull)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
