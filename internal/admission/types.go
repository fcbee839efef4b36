package admission

import "fmt"

// Action represents an admission decision.
type Action string

const (
	// ActionSpawn starts a new worker with the task as its first task.
	ActionSpawn Action = "spawn"

	// ActionEnqueue appends the task to the lane queue.
	ActionEnqueue Action = "enqueue"

	// ActionRunInline runs the task on the submitting goroutine.
	ActionRunInline Action = "run_inline"

	// ActionReject refuses the task.
	ActionReject Action = "reject"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Overflow is the behavior of a saturated lane.
type Overflow string

const (
	// OverflowRunInline makes the submitter run the task itself (caller-runs).
	OverflowRunInline Overflow = "run_inline"

	// OverflowReject refuses the task with a queue-full error.
	OverflowReject Overflow = "reject"
)

// String returns the string representation of the overflow policy.
func (o Overflow) String() string {
	return string(o)
}

// ParseOverflow converts a config value to an Overflow.
func ParseOverflow(s string) (Overflow, error) {
	switch Overflow(s) {
	case OverflowRunInline, OverflowReject:
		return Overflow(s), nil
	case "caller_runs":
		return OverflowRunInline, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q (valid: %s, %s)", s, OverflowRunInline, OverflowReject)
	}
}

// State is a snapshot of a lane taken at submission time.
type State struct {
	Workers       int
	MinWorkers    int
	MaxWorkers    int
	Queued        int
	QueueCapacity int
	Accepting     bool // false once the lane is shutting down
}

// Decision is the result of evaluating the policy against a lane State.
type Decision struct {
	Action Action

	// Reason is a human-readable explanation of the decision.
	Reason string
}

// Saturated reports whether the decision came from the overflow policy.
// Rejections of a lane that is no longer accepting are not saturation.
func (d Decision) Saturated() bool {
	return d.Action == ActionRunInline || (d.Action == ActionReject && d.Reason != reasonNotAccepting)
}
