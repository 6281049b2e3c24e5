// Package metrics publishes process-wide expvar counters for checkpoint,
// rollback, branch and recovery activity. Controller instances additionally
// keep their own per-session counters; these are the aggregate view.
package metrics
