// Package metrics holds Prometheus instrumentation for the audit ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds ledger Prometheus collectors.
type Metrics struct {
	appends      *prometheus.CounterVec
	chainLength  prometheus.Gauge
	sinkFailures prometheus.Counter
	tampers      prometheus.Counter
}

// New creates and registers ledger metrics with the default registerer.
func New() *Metrics {
	return &Metrics{
		appends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riftgate_ledger_appends_total",
			Help: "Chain append attempts by result (committed, failed).",
		}, []string{"result"}),
		chainLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "riftgate_ledger_chain_length",
			Help: "Sequence number of the last committed record.",
		}),
		sinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riftgate_ledger_sink_failures_total",
			Help: "Committed records the fan-out sink failed to publish.",
		}),
		tampers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "riftgate_ledger_tamper_detections_total",
			Help: "Chain verifications that surfaced a tampered record.",
		}),
	}
}

// ObserveAppend records one committed append and the resulting chain length.
func (m *Metrics) ObserveAppend(sequence uint64) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues("committed").Inc()
	m.chainLength.Set(float64(sequence))
}

// ObserveAppendFailure records a failed append attempt.
func (m *Metrics) ObserveAppendFailure() {
	if m == nil {
		return
	}
	m.appends.WithLabelValues("failed").Inc()
}

// ObserveSinkFailure records a sink publish that did not go through.
func (m *Metrics) ObserveSinkFailure() {
	if m == nil {
		return
	}
	m.sinkFailures.Inc()
}

// ObserveTamper records a verification that found a broken record.
func (m *Metrics) ObserveTamper() {
	if m == nil {
		return
	}
	m.tampers.Inc()
}
