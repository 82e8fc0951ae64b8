package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "countbridge"

// FlushMetrics are recorded by the periodic push loop.
type FlushMetrics struct {
	Flushes         Counter
	Failures        Counter
	FlushedCounters Gauge
	PushDuration    Gauge
}

// NewFlushMetrics registers the flush loop metrics with r.
func NewFlushMetrics(r Registry) (*FlushMetrics, error) {
	flushes, err := r.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flushes_total",
		Help:      "Number of non-empty snapshots handed to the push transport.",
	})
	if err != nil {
		return nil, err
	}

	failures, err := r.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flush_failures_total",
		Help:      "Number of pushes that failed and were dropped.",
	})
	if err != nil {
		return nil, err
	}

	flushed, err := r.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "flushed_counters",
		Help:      "Number of counters in the most recent flushed snapshot.",
	})
	if err != nil {
		return nil, err
	}

	duration, err := r.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "push_duration_seconds_last",
		Help:      "Duration of the most recent push.",
	})
	if err != nil {
		return nil, err
	}

	return &FlushMetrics{
		Flushes:         flushes,
		Failures:        failures,
		FlushedCounters: flushed,
		PushDuration:    duration,
	}, nil
}

// NopFlushMetrics returns FlushMetrics that record nothing.
func NopFlushMetrics() *FlushMetrics {
	m, err := NewFlushMetrics(NopRegistry{})
	if err != nil {
		panic(fmt.Sprintf("nop flush metrics: %v", err))
	}
	return m
}
