// Package pool provides the Registry: the explicitly constructed owner of
// the IO, Compute and Sequential lanes and of the coordinator that receives
// their completions.
//
// # Submission
//
// [Submit] and its variants wrap a work function in a lane task, run it on
// the chosen lane and return a [task.Handle] immediately. When the function
// finishes, its envelope is built on the lane goroutine and posted to the
// coordinator, where the handle resolves and its reactions fire.
//
//	reg, err := pool.New(pool.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer reg.Shutdown(ctx)
//
//	pool.SubmitWithTimeout(reg, 50*time.Millisecond, lane.KindCompute, func() (float64, error) {
//	    return sum(values), nil
//	}).OnSuccess(render).OnError(report)
//
// Timeout budgets are checked after the function returns; the function is
// never interrupted.
//
// # Failures
//
// A failed envelope carries one of:
//   - the error returned (or panicked) by the work function, unchanged
//   - *errors.TimeoutExceededError when a budget was exceeded
//   - *errors.DispatchError when the coordinator refused the completion
//   - *errors.RejectedError when the task never ran
//
// # Shutdown
//
// [Registry.Shutdown] drains lanes in parallel, each bounded by the drain
// timeout, then clears pending coordinator actions. It is idempotent.
package pool
