package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindNone, "none"},
		{KindExecution, "execution"},
		{KindTimeoutExceeded, "timeout_exceeded"},
		{KindDispatch, "dispatch"},
		{KindRejected, "rejected"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain error", plain, KindExecution},
		{"panic error", &PanicError{Value: "x"}, KindExecution},
		{"timeout", &TimeoutExceededError{Elapsed: time.Second, Budget: time.Millisecond}, KindTimeoutExceeded},
		{"wrapped timeout", fmt.Errorf("ctx: %w", &TimeoutExceededError{}), KindTimeoutExceeded},
		{"dispatch", &DispatchError{Cause: ErrCoordinatorStopped}, KindDispatch},
		{"dispatch over timeout", &DispatchError{Cause: ErrCoordinatorStopped, Outcome: &TimeoutExceededError{}}, KindDispatch},
		{"rejected", &RejectedError{Lane: "io", Cause: ErrQueueFull}, KindRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeoutExceededError(t *testing.T) {
	err := &TimeoutExceededError{Lane: "compute", Elapsed: 210 * time.Millisecond, Budget: 50 * time.Millisecond}

	want := "compute task exceeded timeout budget: 210ms > 50ms"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrTimeoutExceeded) {
		t.Error("expected errors.Is(err, ErrTimeoutExceeded)")
	}
	if !Is(err, &TimeoutExceededError{}) {
		t.Error("expected errors.Is to match any *TimeoutExceededError")
	}
	if Is(err, ErrQueueFull) {
		t.Error("timeout should not match ErrQueueFull")
	}
}

func TestDispatchError(t *testing.T) {
	outcome := errors.New("work failed")
	err := &DispatchError{Cause: ErrCoordinatorStopped, Outcome: outcome}

	if !Is(err, ErrCoordinatorStopped) {
		t.Error("expected DispatchError to unwrap to its cause")
	}
	want := "dispatch failed: coordinator is stopped (task outcome: work failed)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &DispatchError{Cause: ErrCoordinatorStopped}
	if bare.Error() != "dispatch failed: coordinator is stopped" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestRejectedError(t *testing.T) {
	err := &RejectedError{Lane: "sequential", Cause: ErrQueueFull}
	if !Is(err, ErrQueueFull) {
		t.Error("expected RejectedError to unwrap to ErrQueueFull")
	}
	if err.Error() != "task rejected by sequential lane: lane queue is full" {
		t.Errorf("Error() = %q", err.Error())
	}

	anon := &RejectedError{Cause: ErrRegistryShutdown}
	if anon.Error() != "task rejected: registry is shut down" {
		t.Errorf("Error() = %q", anon.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"queue full", &RejectedError{Cause: ErrQueueFull}, true},
		{"shutdown", &RejectedError{Cause: ErrLaneShutdown}, false},
		{"execution", errors.New("x"), false},
		{"timeout", &TimeoutExceededError{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	err := Wrapf(ErrLaneShutdown, "lane %s", "io")
	if err.Error() != "lane io: lane is shut down" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrLaneShutdown) {
		t.Error("Wrapf should preserve the chain")
	}
}
