// Package task defines the result types handed back to submitters.
//
// An [Envelope] is the immutable outcome of one task: a value on success, an
// error on failure, plus timing. A [Handle] is a single-assignment container
// for an envelope. Reactions registered with [Handle.OnSuccess],
// [Handle.OnError] and [Handle.OnComplete] fire once, in registration order,
// on the coordinator; reactions registered after the handle resolved are
// posted to the coordinator and still fire.
//
// [Handle.Get] and [Handle.GetTimeout] return the zero value when the task
// failed. Callers that need the error use [Handle.Await] or [Handle.Peek].
package task
