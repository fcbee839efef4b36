package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/lanes/internal/lane"
)

// StatsFunc returns a snapshot of every lane.
type StatsFunc func() []lane.Stats

// StatsCollector reports lane occupancy as const metrics, reading a fresh
// snapshot on each Collect.
type StatsCollector struct {
	stats StatsFunc

	active     *prometheus.Desc
	poolSize   *prometheus.Desc
	largest    *prometheus.Desc
	maxWorkers *prometheus.Desc
	queued     *prometheus.Desc
	capacity   *prometheus.Desc
	completed  *prometheus.Desc
	inline     *prometheus.Desc
	rejected   *prometheus.Desc
	up         *prometheus.Desc
}

// NewStatsCollector creates a collector over fn.
func NewStatsCollector(namespace string, fn StatsFunc) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "lane", name), help, []string{"lane"}, nil)
	}
	return &StatsCollector{
		stats:      fn,
		active:     desc("active_workers", "Workers currently running a task."),
		poolSize:   desc("pool_size", "Worker goroutines currently alive."),
		largest:    desc("largest_pool_size", "Most workers ever alive at once."),
		maxWorkers: desc("max_workers", "Configured worker ceiling."),
		queued:     desc("queue_size", "Tasks waiting in the lane queue."),
		capacity:   desc("queue_capacity", "Configured queue capacity."),
		completed:  desc("completed_tasks_total", "Tasks run to completion by lane workers."),
		inline:     desc("inline_runs_total", "Tasks run on the submitting goroutine because the lane was saturated."),
		rejected:   desc("rejected_tasks_total", "Tasks refused because the lane was saturated."),
		up:         desc("running", "1 if the lane has been created and accepts work."),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.active, c.poolSize, c.largest, c.maxWorkers, c.queued,
		c.capacity, c.completed, c.inline, c.rejected, c.up,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.stats() {
		l := string(s.Kind)
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, l)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), l)
		}

		gauge(c.active, float64(s.Active))
		gauge(c.poolSize, float64(s.PoolSize))
		gauge(c.largest, float64(s.LargestPoolSize))
		gauge(c.maxWorkers, float64(s.MaxWorkers))
		gauge(c.queued, float64(s.Queued))
		gauge(c.capacity, float64(s.QueueCapacity))
		counter(c.completed, s.Completed)
		counter(c.inline, s.InlineRuns)
		counter(c.rejected, s.Rejected)

		running := 0.0
		if s.State == lane.StateRunning {
			running = 1
		}
		gauge(c.up, running)
	}
}
