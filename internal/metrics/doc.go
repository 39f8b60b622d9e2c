// Package metrics provides observability hooks for task graph runs, watch
// triggers and live reload broadcasts.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so callers never need nil checks:
//
//	sched := taskgraph.NewScheduler(graph, taskgraph.WithRecorder(metrics.NoopRecorder{}))
//
// When the preview server exposes /metrics, a PrometheusRecorder backed by a
// private registry is used instead and HTTPHandler serves that registry.
//
// Labels are bounded: task and binding names come from the static task graph,
// and results come from the ResultLabel enumeration.
package metrics
