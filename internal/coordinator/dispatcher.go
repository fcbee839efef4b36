package coordinator

import (
	"runtime"
	"time"
)

// Dispatcher delivers actions to a single coordinator execution context.
// Implementations must run actions one at a time, in the order they were
// posted, on the same goroutine.
type Dispatcher interface {
	// Post schedules action to run on the coordinator. When called from the
	// coordinator itself the action runs before Post returns.
	Post(action func()) error

	// PostDelayed schedules action to run on the coordinator no sooner than
	// delay from now. Actions with equal deadlines run in posting order.
	PostDelayed(action func(), delay time.Duration) error

	// Clear discards every action that has been posted but not yet run and
	// returns how many were discarded.
	Clear() int
}

// GoroutineID returns the ID of the calling goroutine, parsed from the
// header line of its stack trace ("goroutine 18 [running]:").
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
