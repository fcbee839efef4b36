package lane

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Iron-Ham/lanes/internal/admission"
)

// Kind identifies one of the fixed lanes.
type Kind string

const (
	// KindIO runs blocking, I/O-bound work.
	KindIO Kind = "io"
	// KindCompute runs CPU-bound work with a high priority bias.
	KindCompute Kind = "compute"
	// KindSequential runs work one item at a time in submission order.
	KindSequential Kind = "sequential"
)

// Kinds returns every lane kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindIO, KindCompute, KindSequential}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindIO, KindCompute, KindSequential:
		return true
	default:
		return false
	}
}

// ParseKind converts a name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown lane %q (valid: io, compute, sequential)", s)
	}
	return k, nil
}

// Priority is a scheduling bias hint. Goroutines have no OS priority, so it
// is surfaced through pprof labels and stats only.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DefaultNamePrefix prefixes every worker name.
const DefaultNamePrefix = "lanes-"

// Default pool sizing.
const (
	DefaultKeepAlive               = 30 * time.Second
	DefaultQueueCapacity           = 128
	DefaultSequentialQueueCapacity = 1024
)

// DefaultMinWorkers returns max(2, min(NumCPU-1, 4)).
func DefaultMinWorkers() int {
	return max(2, min(runtime.NumCPU()-1, 4))
}

// DefaultMaxWorkers returns NumCPU*2+1.
func DefaultMaxWorkers() int {
	return runtime.NumCPU()*2 + 1
}

// Config describes a lane.
type Config struct {
	Kind          Kind
	MinWorkers    int
	MaxWorkers    int
	KeepAlive     time.Duration // idle expiry for workers above MinWorkers; 0 disables
	QueueCapacity int
	Overflow      admission.Overflow
	Priority      Priority
	NamePrefix    string
}

// DefaultConfig returns the default configuration for kind.
func DefaultConfig(kind Kind) Config {
	if kind == KindSequential {
		return Config{
			Kind:          KindSequential,
			MinWorkers:    1,
			MaxWorkers:    1,
			QueueCapacity: DefaultSequentialQueueCapacity,
			Overflow:      admission.OverflowReject,
			Priority:      PriorityNormal,
			NamePrefix:    DefaultNamePrefix,
		}
	}

	priority := PriorityNormal
	if kind == KindCompute {
		priority = PriorityHigh
	}
	return Config{
		Kind:          kind,
		MinWorkers:    DefaultMinWorkers(),
		MaxWorkers:    max(DefaultMaxWorkers(), DefaultMinWorkers()),
		KeepAlive:     DefaultKeepAlive,
		QueueCapacity: DefaultQueueCapacity,
		Overflow:      admission.OverflowRunInline,
		Priority:      priority,
		NamePrefix:    DefaultNamePrefix,
	}
}

// Name returns the lane name used in logs and stats.
func (c Config) Name() string {
	return c.NamePrefix + string(c.Kind)
}

// Validate checks the lane invariants.
func (c Config) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("invalid lane kind %q", c.Kind)
	}
	if c.MinWorkers < 0 {
		return fmt.Errorf("%s lane: min workers must be >= 0, got %d", c.Kind, c.MinWorkers)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("%s lane: max workers must be >= 1, got %d", c.Kind, c.MaxWorkers)
	}
	if c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("%s lane: min workers (%d) exceeds max workers (%d)", c.Kind, c.MinWorkers, c.MaxWorkers)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%s lane: queue capacity must be >= 1, got %d", c.Kind, c.QueueCapacity)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%s lane: keep-alive must be >= 0, got %s", c.Kind, c.KeepAlive)
	}
	overflow, err := admission.ParseOverflow(string(c.Overflow))
	if err != nil {
		return fmt.Errorf("%s lane: %w", c.Kind, err)
	}
	if c.Kind == KindSequential {
		if c.MinWorkers != 1 || c.MaxWorkers != 1 {
			return fmt.Errorf("sequential lane must have exactly one worker, got min=%d max=%d", c.MinWorkers, c.MaxWorkers)
		}
		if overflow == admission.OverflowRunInline {
			return fmt.Errorf("sequential lane cannot use %s overflow", admission.OverflowRunInline)
		}
	}
	return nil
}
