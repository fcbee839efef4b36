package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/lanes/internal/event"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "lanes"

// outcomeSuccess labels completed tasks that succeeded; failures are labeled
// with their error kind.
const outcomeSuccess = "success"

// Recorder turns bus events into Prometheus series.
type Recorder struct {
	registry *prometheus.Registry

	submitted *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	overruns  *prometheus.HistogramVec
	saturated *prometheus.CounterVec
	workers   *prometheus.CounterVec
	shutdowns *prometheus.CounterVec
	discarded prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	mu     sync.Mutex
	bus    *event.Bus
	subIDs []string
}

// NewRecorder creates a Recorder whose series are prefixed with namespace.
// Go runtime and process collectors are registered alongside.
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted, by lane.",
		}, []string{"lane"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of task envelopes delivered, by lane and outcome.",
		}, []string{"lane", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall-clock time spent running tasks, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"lane"}),
		overruns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_budget_overrun_seconds",
			Help:      "How far tasks ran past their timeout budget, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"lane"}),
		saturated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lane_saturated_total",
			Help:      "Submissions that found a lane saturated, by overflow action taken.",
		}, []string{"lane", "action"}),
		workers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lane_worker_events_total",
			Help:      "Worker goroutine starts and stops, by lane and event.",
		}, []string{"lane", "event"}),
		shutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_shutdowns_total",
			Help:      "Registry shutdowns, by whether any lane had to be forced.",
		}, []string{"forced"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_discarded_total",
			Help:      "Queued tasks dropped by forced shutdown.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	r.registry.MustRegister(
		r.submitted,
		r.completed,
		r.duration,
		r.overruns,
		r.saturated,
		r.workers,
		r.shutdowns,
		r.discarded,
		r.httpRequests,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry, for registering extra collectors
// or gathering in tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRequest records one HTTP request. path should be a route pattern,
// not the raw URL path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, path string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// WatchStats registers a collector that reports lane occupancy from fn on
// every scrape.
func (r *Recorder) WatchStats(namespace string, fn StatsFunc) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return r.registry.Register(NewStatsCollector(namespace, fn))
}

// Attach subscribes the recorder to bus. Attaching again moves the
// subscriptions to the new bus.
func (r *Recorder) Attach(bus *event.Bus) {
	r.Detach()

	ids := []string{
		bus.Subscribe(event.TypeTaskSubmitted, r.onSubmitted),
		bus.Subscribe(event.TypeTaskCompleted, r.onCompleted),
		bus.Subscribe(event.TypeLaneSaturated, r.onSaturated),
		bus.Subscribe(event.TypeWorkerStarted, r.onWorker),
		bus.Subscribe(event.TypeWorkerStopped, r.onWorker),
		bus.Subscribe(event.TypeRegistryShutdown, r.onShutdown),
	}

	r.mu.Lock()
	r.bus = bus
	r.subIDs = ids
	r.mu.Unlock()
}

// Detach removes the recorder's subscriptions. Recorded series are kept.
func (r *Recorder) Detach() {
	r.mu.Lock()
	bus, ids := r.bus, r.subIDs
	r.bus, r.subIDs = nil, nil
	r.mu.Unlock()

	if bus == nil {
		return
	}
	for _, id := range ids {
		bus.Unsubscribe(id)
	}
}

func (r *Recorder) onSubmitted(e event.Event) {
	se, ok := e.(event.TaskSubmittedEvent)
	if !ok {
		return
	}
	r.submitted.WithLabelValues(se.Lane).Inc()
}

func (r *Recorder) onCompleted(e event.Event) {
	ce, ok := e.(event.TaskCompletedEvent)
	if !ok {
		return
	}

	outcome := outcomeSuccess
	if !ce.Success {
		outcome = ce.Kind
	}
	r.completed.WithLabelValues(ce.Lane, outcome).Inc()

	// Rejected tasks never ran
	if ce.Elapsed > 0 {
		r.duration.WithLabelValues(ce.Lane).Observe(ce.Elapsed.Seconds())
	}
	if ce.Budget > 0 && ce.Elapsed > ce.Budget {
		r.overruns.WithLabelValues(ce.Lane).Observe((ce.Elapsed - ce.Budget).Seconds())
	}
}

func (r *Recorder) onSaturated(e event.Event) {
	se, ok := e.(event.LaneSaturatedEvent)
	if !ok {
		return
	}
	r.saturated.WithLabelValues(se.Lane, se.Action).Inc()
}

func (r *Recorder) onWorker(e event.Event) {
	switch we := e.(type) {
	case event.WorkerStartedEvent:
		r.workers.WithLabelValues(we.Lane, "started").Inc()
	case event.WorkerStoppedEvent:
		r.workers.WithLabelValues(we.Lane, "stopped_"+we.Reason).Inc()
	}
}

func (r *Recorder) onShutdown(e event.Event) {
	se, ok := e.(event.RegistryShutdownEvent)
	if !ok {
		return
	}
	forced := "false"
	if se.Forced {
		forced = "true"
	}
	r.shutdowns.WithLabelValues(forced).Inc()
	r.discarded.Add(float64(se.Discarded))
}
