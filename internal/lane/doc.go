// Package lane implements bounded worker pools ("lanes") with three flavors:
// IO, Compute and Sequential.
//
// A [Lane] owns a fixed-capacity FIFO queue and between MinWorkers and
// MaxWorkers worker goroutines. [Lane.Execute] admits work according to
// [admission.Policy]: new workers are started until the minimum is reached,
// then the queue fills, then the pool grows to the maximum, and finally the
// overflow policy applies. Run-inline overflow makes the submitting goroutine
// run the task itself, which slows producers down when a lane is saturated.
//
// Workers above the minimum exit after KeepAlive without work. A Sequential
// lane has exactly one worker, so tasks run in submission order.
//
// Worker goroutines carry runtime/pprof labels (lane, worker, priority) so
// they can be told apart in goroutine profiles.
//
// # Shutdown
//
// [Lane.Shutdown] stops intake and lets queued work drain. [Lane.ShutdownNow]
// additionally removes queued work and returns it. Neither interrupts a task
// that is already running. [Lane.AwaitTermination] waits for the last worker.
package lane
