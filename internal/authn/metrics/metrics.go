// Package metrics exposes Prometheus metrics for the authentication
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	attempts      *prometheus.CounterVec
	denials       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	quarantines   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riftgate",
			Subsystem: "authn",
			Name:      "attempts_total",
			Help:      "Authentication attempts by outcome (granted, denied).",
		}, []string{"outcome"}),
		denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riftgate",
			Subsystem: "authn",
			Name:      "denials_total",
			Help:      "Denied attempts by reason.",
		}, []string{"reason"}),
		stageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riftgate",
			Subsystem: "authn",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		quarantines: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "riftgate",
			Subsystem: "authn",
			Name:      "quarantines_total",
			Help:      "Profiles quarantined after a security violation.",
		}),
	}
}

func (m *Metrics) ObserveGranted() {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues("granted").Inc()
}

func (m *Metrics) ObserveDenied(reason string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues("denied").Inc()
	m.denials.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveQuarantine() {
	if m == nil {
		return
	}
	m.quarantines.Inc()
}
