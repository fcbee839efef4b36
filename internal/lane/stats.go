package lane

// State is the lifecycle state of a lane.
type State string

const (
	// StateIdle is reported for lanes that have not been created yet.
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateTerminated   State = "terminated"
)

// Stats is a point-in-time snapshot of a lane.
type Stats struct {
	Kind            Kind     `json:"kind"`
	Name            string   `json:"name"`
	State           State    `json:"state"`
	Active          int      `json:"active_count"`
	PoolSize        int      `json:"pool_size"`
	LargestPoolSize int      `json:"largest_pool_size"`
	MinWorkers      int      `json:"core_pool_size"`
	MaxWorkers      int      `json:"maximum_pool_size"`
	Queued          int      `json:"queue_size"`
	QueueCapacity   int      `json:"queue_capacity"`
	Completed       uint64   `json:"completed_task_count"`
	InlineRuns      uint64   `json:"inline_run_count"`
	Rejected        uint64   `json:"rejected_count"`
	Priority        Priority `json:"priority"`
}

// IdleStats reports the configuration of a lane that does not exist yet.
func IdleStats(cfg Config) Stats {
	return Stats{
		Kind:          cfg.Kind,
		Name:          cfg.Name(),
		State:         StateIdle,
		MinWorkers:    cfg.MinWorkers,
		MaxWorkers:    cfg.MaxWorkers,
		QueueCapacity: cfg.QueueCapacity,
		Priority:      cfg.Priority,
	}
}

// Stats returns a snapshot of the lane. It takes the lane lock only to read
// the worker count and state.
func (l *Lane) Stats() Stats {
	l.mu.Lock()
	workers, largest, state := l.workers, l.largest, l.state
	l.mu.Unlock()

	return Stats{
		Kind:            l.cfg.Kind,
		Name:            l.cfg.Name(),
		State:           state,
		Active:          int(l.active.Load()),
		PoolSize:        workers,
		LargestPoolSize: largest,
		MinWorkers:      l.cfg.MinWorkers,
		MaxWorkers:      l.cfg.MaxWorkers,
		Queued:          len(l.queue),
		QueueCapacity:   l.cfg.QueueCapacity,
		Completed:       l.completed.Load(),
		InlineRuns:      l.inlineRuns.Load(),
		Rejected:        l.rejected.Load(),
		Priority:        l.cfg.Priority,
	}
}
