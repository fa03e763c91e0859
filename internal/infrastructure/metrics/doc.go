// Package metrics exposes the bridge's Prometheus metrics.
//
// The Collector registers on its own registry rather than the global default,
// listens to coordinator refresh and command events, and is served by the
// API at /api/v1/metrics. Metric names are prefixed "mannito_" and carry a
// constant host label.
package metrics
