package admission

import "fmt"

const reasonNotAccepting = "lane is not accepting tasks"

// Option configures a Policy.
type Option func(*Policy)

// WithOverflow sets the behavior once workers and queue are saturated.
func WithOverflow(o Overflow) Option {
	return func(p *Policy) { p.overflow = o }
}

// Policy applies the admission rules for one lane.
type Policy struct {
	overflow Overflow
}

// NewPolicy creates a Policy with the given options.
// The default overflow is OverflowRunInline.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{overflow: OverflowRunInline}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Overflow returns the configured overflow behavior.
func (p *Policy) Overflow() Overflow {
	return p.overflow
}

// Decide evaluates the rules in order:
//  1. fewer than MinWorkers workers: spawn
//  2. queue has room: enqueue
//  3. fewer than MaxWorkers workers: spawn
//  4. otherwise: the overflow policy
func (p *Policy) Decide(s State) Decision {
	if !s.Accepting {
		return Decision{Action: ActionReject, Reason: reasonNotAccepting}
	}

	if s.Workers < s.MinWorkers {
		return Decision{
			Action: ActionSpawn,
			Reason: fmt.Sprintf("%d workers below minimum %d", s.Workers, s.MinWorkers),
		}
	}

	if s.Queued < s.QueueCapacity {
		return Decision{
			Action: ActionEnqueue,
			Reason: fmt.Sprintf("queue has room (%d/%d)", s.Queued, s.QueueCapacity),
		}
	}

	if s.Workers < s.MaxWorkers {
		return Decision{
			Action: ActionSpawn,
			Reason: fmt.Sprintf("queue full with %d workers below maximum %d", s.Workers, s.MaxWorkers),
		}
	}

	reason := fmt.Sprintf("saturated: %d workers, queue %d/%d", s.Workers, s.Queued, s.QueueCapacity)
	if p.overflow == OverflowReject {
		return Decision{Action: ActionReject, Reason: reason}
	}
	return Decision{Action: ActionRunInline, Reason: reason}
}
