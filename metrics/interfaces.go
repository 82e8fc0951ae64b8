// Package metrics instruments countbridge itself.
//
// These are the bridge's own operational metrics (flushes, push failures,
// push latency), kept separate from the application counters it relays.
// Two registries are provided:
//   - ScrapeRegistry: backed by a Prometheus registry and exposed over HTTP
//   - NopRegistry: discards everything, used when no instrumentation is wanted
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a metric that represents a single numerical value that can go up and down.
type Gauge interface {
	// Set sets the Gauge to the given value.
	Set(float64)
}

// Counter is a metric that represents a single monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()
	// Add adds the given value to the counter. It panics if the value is negative.
	Add(float64)
}

// Registry creates and registers metrics.
type Registry interface {
	// NewGauge creates and registers a new Gauge.
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)

	// NewCounter creates and registers a new Counter.
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
}
