// Package api serves a registry over HTTP.
//
// Routes:
//
//	GET  /healthz          liveness, 503 once the registry is shut down
//	GET  /metrics          Prometheus exposition
//	GET  /v1/stats         lane snapshots, optional ?lane=<glob>
//	POST /v1/tasks         submit a synthetic task
//	GET  /v1/tasks/{id}    poll a submitted task
//
// Task records are written by completion reactions, so they are updated on
// the registry's coordinator.
package api
