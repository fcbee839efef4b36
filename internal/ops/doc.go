// Package ops provides lane-aware helpers for file and data work.
//
// File reads and writes go to the IO lane, long computations to the Compute
// lane with a timeout budget, and report appends to the Sequential lane so
// concurrent callers never interleave lines. Every helper returns a
// task.Handle whose reactions run on the registry's coordinator.
package ops
