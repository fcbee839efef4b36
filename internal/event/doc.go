// Package event provides a pub-sub event bus for lane and task lifecycle
// notifications.
//
// Lanes and the pool registry publish events without knowing who consumes
// them. The metrics recorder turns them into Prometheus series and the watch
// view uses them to animate its counters.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Task events:
//   - [TaskSubmittedEvent]: a registry accepted a work item
//   - [TaskCompletedEvent]: an envelope was built for a work item
//
// Lane events:
//   - [LaneSaturatedEvent]: overflow policy applied
//   - [WorkerStartedEvent], [WorkerStoppedEvent]: worker goroutine lifecycle
//   - [LaneTerminatedEvent]: the last worker of a shut down lane exited
//
// Registry events:
//   - [RegistryShutdownEvent]: shutdown finished
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine, which is usually a lane worker,
// so handlers must be quick and must not block. A panicking handler is
// recovered and logged; remaining handlers still run.
//
// # Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//	id := bus.Subscribe(event.TypeLaneSaturated, func(e event.Event) {
//	    sat := e.(event.LaneSaturatedEvent)
//	    logger.Warn("lane saturated", "lane", sat.Lane)
//	})
//	defer bus.Unsubscribe(id)
package event
