// Package metrics holds Prometheus instrumentation for the governance state
// machine and its monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds governance Prometheus collectors.
type Metrics struct {
	evaluations     *prometheus.CounterVec
	gateFailures    *prometheus.CounterVec
	snapshotVersion prometheus.Gauge
	responseModes   *prometheus.CounterVec
	evalDuration    prometheus.Histogram
}

// New creates and registers governance metrics with the default registerer.
func New() *Metrics {
	return &Metrics{
		evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riftgate_governance_evaluations_total",
			Help: "Governance evaluations by outcome (passed, failed, timeout).",
		}, []string{"outcome"}),
		gateFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riftgate_governance_gate_failures_total",
			Help: "First-failing RIFT gate per aborted evaluation.",
		}, []string{"level"}),
		snapshotVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "riftgate_governance_snapshot_version",
			Help: "Version of the currently published governance snapshot.",
		}),
		responseModes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riftgate_governance_response_modes_total",
			Help: "Snapshots published by graduated response mode.",
		}, []string{"mode"}),
		evalDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "riftgate_governance_evaluation_duration_ms",
			Help:    "Latency of full governance evaluations in milliseconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 1000, 10000},
		}),
	}
}

// ObserveEvaluation records one evaluation outcome and its duration.
func (m *Metrics) ObserveEvaluation(outcome string, durationMs float64) {
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evalDuration.Observe(durationMs)
}

// ObserveGateFailure records the first failing gate of an evaluation.
func (m *Metrics) ObserveGateFailure(level string) {
	m.gateFailures.WithLabelValues(level).Inc()
}

// SetSnapshotVersion publishes the live snapshot version.
func (m *Metrics) SetSnapshotVersion(version uint64) {
	m.snapshotVersion.Set(float64(version))
}

// ObserveResponseMode counts a published snapshot by response mode.
func (m *Metrics) ObserveResponseMode(mode string) {
	m.responseModes.WithLabelValues(mode).Inc()
}
