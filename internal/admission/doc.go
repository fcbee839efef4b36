// Package admission decides what a lane does with a newly submitted task.
//
// The decision follows the classic bounded pool rules: fill up to the minimum
// worker count first, then the queue, then grow up to the maximum worker
// count, and finally apply the lane's overflow policy.
//
// The core types are:
//
//   - [Policy]: holds the overflow behavior and evaluates a lane [State]
//   - [Decision]: the output of evaluation: spawn, enqueue, run inline or reject
//   - [Overflow]: what to do once a lane is saturated
//
// # Usage
//
//	policy := admission.NewPolicy(admission.WithOverflow(admission.OverflowRunInline))
//	d := policy.Decide(admission.State{
//	    Workers: 4, MinWorkers: 2, MaxWorkers: 9,
//	    Queued: 128, QueueCapacity: 128, Accepting: true,
//	})
//	// d.Action == admission.ActionSpawn
//
// A Policy is immutable after construction and safe for concurrent use. The
// caller is responsible for holding whatever lock makes the State snapshot
// consistent with the action it then takes.
package admission
