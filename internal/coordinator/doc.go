// Package coordinator provides the single execution context that receives
// task completions.
//
// [Dispatcher] is the contract used by the pool registry and task handles.
// [Loop] implements it with one goroutine, a FIFO queue of posted actions and
// a heap of delayed actions. Posting from the loop goroutine runs the action
// immediately, so code on the coordinator never waits on itself.
//
// A panicking action is recovered and logged; the loop keeps running.
//
// # Usage
//
//	loop := coordinator.NewLoop(coordinator.WithLogger(logger))
//	if err := loop.Start(); err != nil {
//	    return err
//	}
//	defer loop.Stop(ctx)
//
//	_ = loop.Post(func() { render(result) })
//	_ = loop.PostDelayed(refresh, time.Second)
//
// A program that wants its main goroutine to be the coordinator calls
// [Loop.Run] instead of [Loop.Start].
package coordinator
