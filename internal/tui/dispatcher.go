package tui

import (
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lanes/internal/coordinator"
	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/logging"
)

// sender is the part of *tea.Program the dispatcher uses.
type sender interface {
	Send(msg tea.Msg)
}

// actionMsg carries a posted action into the program's Update.
type actionMsg struct {
	fn  func()
	gen uint64
}

// ProgramDispatcher is a coordinator.Dispatcher backed by a bubbletea
// program. Actions are forwarded to the program in FIFO order by a single
// goroutine, so posting never blocks on the UI.
type ProgramDispatcher struct {
	logger *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []actionMsg
	gen     uint64
	delayed coordinator.Schedule
	timer   *time.Timer
	program sender
	closed  bool

	uiGoroutine atomic.Uint64
	executed    atomic.Uint64
	panicked    atomic.Uint64
}

var _ coordinator.Dispatcher = (*ProgramDispatcher)(nil)

// NewProgramDispatcher creates a dispatcher. Actions posted before Bind are
// held until a program is bound.
func NewProgramDispatcher(logger *logging.Logger) *ProgramDispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	d := &ProgramDispatcher{
		logger: logger.With("component", "coordinator"),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Bind starts forwarding actions to p. It may be called once.
func (d *ProgramDispatcher) Bind(p sender) {
	d.mu.Lock()
	if d.program != nil || d.closed {
		d.mu.Unlock()
		return
	}
	d.program = p
	d.mu.Unlock()

	go d.forward(p)
}

func (d *ProgramDispatcher) forward(p sender) {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		msg := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		p.Send(msg)
	}
}

// Post queues action for the UI goroutine. Called from the UI goroutine it
// runs action immediately.
func (d *ProgramDispatcher) Post(action func()) error {
	if id := d.uiGoroutine.Load(); id != 0 && id == coordinator.GoroutineID() {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return errors.ErrCoordinatorStopped
		}
		d.run(action)
		return nil
	}
	return d.enqueue(action)
}

// PostDelayed queues action after delay. Negative delays are treated as zero.
// A single timer releases due actions by deadline, then posting order.
func (d *ProgramDispatcher) PostDelayed(action func(), delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.ErrCoordinatorStopped
	}
	d.delayed.Add(time.Now().Add(max(delay, 0)), action)
	d.arm()
	return nil
}

// arm points the timer at the earliest deadline. d.mu must be held.
func (d *ProgramDispatcher) arm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if next, ok := d.delayed.Next(); ok {
		d.timer = time.AfterFunc(time.Until(next), d.release)
	}
}

// release moves due delayed actions to the queue and rearms the timer.
func (d *ProgramDispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	due := d.delayed.Due(time.Now())
	for _, action := range due {
		d.queue = append(d.queue, actionMsg{fn: action, gen: d.gen})
	}
	if len(due) > 0 {
		d.cond.Signal()
	}
	d.arm()
}

func (d *ProgramDispatcher) enqueue(action func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.ErrCoordinatorStopped
	}
	d.queue = append(d.queue, actionMsg{fn: action, gen: d.gen})
	d.cond.Signal()
	return nil
}

// Clear drops queued and delayed actions, including any already handed to
// the program but not yet run. It returns how many were dropped from the
// queue and timers.
func (d *ProgramDispatcher) Clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.queue) + d.delayed.Len()
	d.delayed.Reset()
	d.arm()
	d.queue = nil
	d.gen++
	return n
}

// Close stops forwarding. Later posts fail with errors.ErrCoordinatorStopped.
func (d *ProgramDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.delayed.Reset()
	d.arm()
	d.queue = nil
	d.cond.Broadcast()
}

// Executed returns the number of actions run.
func (d *ProgramDispatcher) Executed() uint64 { return d.executed.Load() }

// Panics returns the number of actions that panicked.
func (d *ProgramDispatcher) Panics() uint64 { return d.panicked.Load() }

// execute runs msg on the calling goroutine, which must be the program's
// event loop. Messages from before the last Clear are dropped.
func (d *ProgramDispatcher) execute(msg actionMsg) {
	d.uiGoroutine.CompareAndSwap(0, coordinator.GoroutineID())

	d.mu.Lock()
	stale := msg.gen != d.gen || d.closed
	d.mu.Unlock()
	if stale {
		return
	}
	d.run(msg.fn)
}

func (d *ProgramDispatcher) run(action func()) {
	var pc panics.Catcher
	pc.Try(action)
	d.executed.Add(1)

	if r := pc.Recovered(); r != nil {
		d.panicked.Add(1)
		d.logger.Error("coordinator action panicked",
			"panic", r.Value,
			"stack", string(r.Stack),
		)
	}
}
