// Package metrics exports lane activity to Prometheus.
//
// A [Recorder] owns a private prometheus.Registry. It learns about task and
// worker activity by subscribing to an event.Bus (see [Recorder.Attach]) and
// about lane occupancy by polling a stats function on every scrape (see
// [Recorder.WatchStats]). Serve [Recorder.Handler] on /metrics.
package metrics
