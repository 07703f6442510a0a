// Package metrics exports thread lifecycle and registry state to Prometheus.
//
// Exporter implements threads.Metrics and is passed to a spawner with
// threads.WithMetrics. SnapshotPoller periodically reads a registry and
// sets per-short-name gauges. Both label by short name only, so a pool of
// numbered workers shares one series.
package metrics
