package pool

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/lanes/internal/lane"
)

// DefaultDrainTimeout bounds how long Shutdown waits for each lane to drain.
const DefaultDrainTimeout = 10 * time.Second

// Config describes every lane a Registry may create.
type Config struct {
	Lanes        map[lane.Kind]lane.Config
	DrainTimeout time.Duration
}

// DefaultConfig returns the default lane set.
func DefaultConfig() Config {
	lanes := make(map[lane.Kind]lane.Config, 3)
	for _, k := range lane.Kinds() {
		lanes[k] = lane.DefaultConfig(k)
	}
	return Config{
		Lanes:        lanes,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Validate checks every lane config and the drain timeout.
func (c Config) Validate() error {
	for _, k := range lane.Kinds() {
		lc, ok := c.Lanes[k]
		if !ok {
			return fmt.Errorf("missing configuration for %s lane", k)
		}
		if lc.Kind != k {
			return fmt.Errorf("%s lane configured with kind %q", k, lc.Kind)
		}
		if err := lc.Validate(); err != nil {
			return err
		}
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive, got %s", c.DrainTimeout)
	}
	return nil
}
