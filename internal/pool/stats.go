package pool

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/lanes/internal/lane"
)

// Stats is a snapshot of every lane in a registry.
type Stats struct {
	Lanes    []lane.Stats `json:"lanes"`
	Shutdown bool         `json:"shutdown"`
}

// Stats returns a snapshot of every lane. Lanes that have not been created
// report their configuration with state "idle"; Stats never creates a lane.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	created := make(map[lane.Kind]*lane.Lane, len(r.lanes))
	for k, l := range r.lanes {
		created[k] = l
	}
	closing := r.closing
	r.mu.Unlock()

	stats := Stats{Shutdown: closing}
	for _, k := range lane.Kinds() {
		if l, ok := created[k]; ok {
			stats.Lanes = append(stats.Lanes, l.Stats())
			continue
		}
		stats.Lanes = append(stats.Lanes, lane.IdleStats(r.cfg.Lanes[k]))
	}
	return stats
}

// Lane returns the snapshot for kind.
func (s Stats) Lane(kind lane.Kind) (lane.Stats, bool) {
	for _, ls := range s.Lanes {
		if ls.Kind == kind {
			return ls, true
		}
	}
	return lane.Stats{}, false
}

// Filter keeps the lanes whose kind or name matches the glob pattern.
// An empty pattern matches everything.
func (s Stats) Filter(pattern string) (Stats, error) {
	if pattern == "" {
		return s, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return Stats{}, fmt.Errorf("invalid lane filter %q: %w", pattern, err)
	}

	out := Stats{Shutdown: s.Shutdown}
	for _, ls := range s.Lanes {
		if g.Match(string(ls.Kind)) || g.Match(ls.Name) {
			out.Lanes = append(out.Lanes, ls)
		}
	}
	return out, nil
}
