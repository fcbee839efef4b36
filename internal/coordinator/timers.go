package coordinator

import (
	"container/heap"
	"time"
)

type delayed struct {
	when   time.Time
	seq    uint64
	action func()
}

// timerHeap orders delayed actions by deadline, then by posting sequence.
type timerHeap []delayed

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(delayed))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = delayed{}
	*h = old[:n-1]
	return item
}

// Schedule holds delayed actions and releases them by deadline, then by the
// order they were added. It is not safe for concurrent use.
type Schedule struct {
	timers timerHeap
	seq    uint64
}

// Add schedules action for when.
func (s *Schedule) Add(when time.Time, action func()) {
	s.seq++
	heap.Push(&s.timers, delayed{when: when, seq: s.seq, action: action})
}

// Due removes and returns, in release order, every action whose deadline is
// not after now.
func (s *Schedule) Due(now time.Time) []func() {
	var due []func()
	for len(s.timers) > 0 && !s.timers[0].when.After(now) {
		due = append(due, heap.Pop(&s.timers).(delayed).action)
	}
	return due
}

// Next returns the earliest deadline, if any action is scheduled.
func (s *Schedule) Next() (time.Time, bool) {
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].when, true
}

// Len returns the number of scheduled actions.
func (s *Schedule) Len() int { return len(s.timers) }

// Reset drops every scheduled action.
func (s *Schedule) Reset() { s.timers = nil }
