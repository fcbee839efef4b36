package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.completed", "lane.saturated")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeTaskSubmitted    = "task.submitted"
	TypeTaskCompleted    = "task.completed"
	TypeLaneSaturated    = "lane.saturated"
	TypeWorkerStarted    = "lane.worker_started"
	TypeWorkerStopped    = "lane.worker_stopped"
	TypeLaneTerminated   = "lane.terminated"
	TypeRegistryShutdown = "registry.shutdown"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskSubmittedEvent is emitted when a registry accepts a work item.
type TaskSubmittedEvent struct {
	baseEvent
	TaskID string
	Lane   string
}

// NewTaskSubmittedEvent creates a TaskSubmittedEvent.
func NewTaskSubmittedEvent(taskID, lane string) TaskSubmittedEvent {
	return TaskSubmittedEvent{
		baseEvent: newBaseEvent(TypeTaskSubmitted),
		TaskID:    taskID,
		Lane:      lane,
	}
}

// TaskCompletedEvent is emitted when a task envelope has been built, whether
// the task succeeded, failed, overran its budget or was rejected.
type TaskCompletedEvent struct {
	baseEvent
	TaskID  string
	Lane    string
	Success bool
	Kind    string // failure kind, "none" on success
	Elapsed time.Duration
	Budget  time.Duration // zero when untracked
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID, lane string, success bool, kind string, elapsed, budget time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent(TypeTaskCompleted),
		TaskID:    taskID,
		Lane:      lane,
		Success:   success,
		Kind:      kind,
		Elapsed:   elapsed,
		Budget:    budget,
	}
}

// -----------------------------------------------------------------------------
// Lane Events
// -----------------------------------------------------------------------------

// LaneSaturatedEvent is emitted when a lane has no queue room and no spare
// worker capacity, so its overflow policy is applied.
type LaneSaturatedEvent struct {
	baseEvent
	Lane     string
	Action   string // "run_inline" or "reject"
	Queued   int
	PoolSize int
}

// NewLaneSaturatedEvent creates a LaneSaturatedEvent.
func NewLaneSaturatedEvent(lane, action string, queued, poolSize int) LaneSaturatedEvent {
	return LaneSaturatedEvent{
		baseEvent: newBaseEvent(TypeLaneSaturated),
		Lane:      lane,
		Action:    action,
		Queued:    queued,
		PoolSize:  poolSize,
	}
}

// WorkerStartedEvent is emitted when a lane spawns a worker goroutine.
type WorkerStartedEvent struct {
	baseEvent
	Lane     string
	Worker   string
	PoolSize int
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(lane, worker string, poolSize int) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent: newBaseEvent(TypeWorkerStarted),
		Lane:      lane,
		Worker:    worker,
		PoolSize:  poolSize,
	}
}

// Reasons a worker stops.
const (
	StopReasonIdle     = "idle"
	StopReasonShutdown = "shutdown"
)

// WorkerStoppedEvent is emitted when a worker goroutine exits.
type WorkerStoppedEvent struct {
	baseEvent
	Lane     string
	Worker   string
	PoolSize int    // workers remaining after this one exited
	Reason   string // StopReasonIdle or StopReasonShutdown
}

// NewWorkerStoppedEvent creates a WorkerStoppedEvent.
func NewWorkerStoppedEvent(lane, worker string, poolSize int, reason string) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent: newBaseEvent(TypeWorkerStopped),
		Lane:      lane,
		Worker:    worker,
		PoolSize:  poolSize,
		Reason:    reason,
	}
}

// LaneTerminatedEvent is emitted once when the last worker of a shut down
// lane exits.
type LaneTerminatedEvent struct {
	baseEvent
	Lane      string
	Completed uint64
}

// NewLaneTerminatedEvent creates a LaneTerminatedEvent.
func NewLaneTerminatedEvent(lane string, completed uint64) LaneTerminatedEvent {
	return LaneTerminatedEvent{
		baseEvent: newBaseEvent(TypeLaneTerminated),
		Lane:      lane,
		Completed: completed,
	}
}

// -----------------------------------------------------------------------------
// Registry Events
// -----------------------------------------------------------------------------

// RegistryShutdownEvent is emitted when a registry finishes shutting down.
type RegistryShutdownEvent struct {
	baseEvent
	Forced    bool // at least one lane was force-terminated
	Discarded int  // queued tasks dropped by forced termination
	Cleared   int  // coordinator actions dropped by Clear
}

// NewRegistryShutdownEvent creates a RegistryShutdownEvent.
func NewRegistryShutdownEvent(forced bool, discarded, cleared int) RegistryShutdownEvent {
	return RegistryShutdownEvent{
		baseEvent: newBaseEvent(TypeRegistryShutdown),
		Forced:    forced,
		Discarded: discarded,
		Cleared:   cleared,
	}
}
