// Package observability wires the router's MetricsSink and Tracer ports to
// Prometheus and OpenTelemetry. Metrics are created through promauto on a
// caller-supplied registerer (no package-level metric vars), alongside the
// single-provider-per-process tracing setup used elsewhere in this codebase.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements router.MetricsSink against a Prometheus registry.
type Metrics struct {
	runsTotal           *prometheus.CounterVec
	toolCallsTotal       *prometheus.CounterVec
	toolCallDuration     *prometheus.HistogramVec
	runDuration          prometheus.Histogram
}

// NewMetrics registers the fixed metric set on reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests), or
// prometheus.DefaultRegisterer for process-wide export.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexusrouter_runs_total",
			Help: "Total number of runs, partitioned by outcome.",
		}, []string{"outcome"}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexusrouter_tool_calls_total",
			Help: "Total number of tool calls dispatched, partitioned by adapter and outcome.",
		}, []string{"adapter_id", "outcome"}),
		toolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexusrouter_tool_call_duration_seconds",
			Help:    "Tool call wall-clock duration in seconds, partitioned by adapter.",
			Buckets: prometheus.DefBuckets,
		}, []string{"adapter_id"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexusrouter_run_duration_seconds",
			Help:    "End-to-end run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveRun records a completed run's outcome and total duration.
func (m *Metrics) ObserveRun(outcome string, duration time.Duration) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// ObserveToolCall records one dispatched tool call.
func (m *Metrics) ObserveToolCall(adapterID, outcome string, duration time.Duration) {
	m.toolCallsTotal.WithLabelValues(adapterID, outcome).Inc()
	m.toolCallDuration.WithLabelValues(adapterID).Observe(duration.Seconds())
}
