package tui

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/task"
)

// errSynthetic is returned by the generator's deliberately failing tasks.
var errSynthetic = errors.New("synthetic failure")

// loadProfile shapes the synthetic tasks submitted to one lane.
type loadProfile struct {
	kind     lane.Kind
	minSleep time.Duration
	maxSleep time.Duration
	budget   time.Duration
}

var defaultProfiles = []loadProfile{
	{kind: lane.KindIO, minSleep: 20 * time.Millisecond, maxSleep: 250 * time.Millisecond},
	{kind: lane.KindCompute, minSleep: 5 * time.Millisecond, maxSleep: 120 * time.Millisecond, budget: 100 * time.Millisecond},
	{kind: lane.KindSequential, minSleep: 2 * time.Millisecond, maxSleep: 30 * time.Millisecond},
}

// generator submits synthetic tasks. It is only used from the UI goroutine.
type generator struct {
	registry *pool.Registry
	profiles []loadProfile
	failRate float64
	rng      *rand.Rand
	next     int
}

func newGenerator(r *pool.Registry, seed uint64) *generator {
	return &generator{
		registry: r,
		profiles: slices.Clone(defaultProfiles),
		failRate: 0.05,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// submit sends n tasks round-robin across the lanes and calls done with each
// outcome on the coordinator.
func (g *generator) submit(n int, done func(task.Envelope[time.Duration])) {
	for range n {
		p := g.profiles[g.next%len(g.profiles)]
		g.next++

		sleep := p.minSleep
		if span := p.maxSleep - p.minSleep; span > 0 {
			sleep += time.Duration(g.rng.Int64N(int64(span)))
		}
		fail := g.rng.Float64() < g.failRate

		h := pool.SubmitWithTimeout(g.registry, p.budget, p.kind, func() (time.Duration, error) {
			time.Sleep(sleep)
			if fail {
				return 0, fmt.Errorf("%s task: %w", p.kind, errSynthetic)
			}
			return sleep, nil
		})
		h.OnComplete(done)
	}
}
