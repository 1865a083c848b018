// Package metric provides Prometheus metrics for memscope.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, recording helpers and HTTP handler
//   - collector.go: Custom collector reporting per-session index state
//
// Metrics include:
//
//   - Worker job counters and latency histograms
//   - Heap index build counters, durations and sizes
//   - Open session gauges
//   - Decode failure counters
//
// Metrics are exposed at /metrics in Prometheus format when the CLI is
// started with telemetry.metrics_addr.
package metric
