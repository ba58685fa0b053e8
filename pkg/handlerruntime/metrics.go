package handlerruntime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the per-invocation Prometheus collectors, registered once
// and shared across every Runtime the process creates.
type Metrics struct {
	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics builds and registers the collectors against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Subsystem: "handler_runtime",
			Name:      "invocations_total",
			Help:      "Handler invocations by agent_type and outcome.",
		}, []string{"agent_type", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Subsystem: "handler_runtime",
			Name:      "invocation_duration_seconds",
			Help:      "Handler invocation latency by agent_type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent_type"}),
	}
	reg.MustRegister(m.Invocations, m.Duration)
	return m
}
