package governance

import (
	"context"
	"log/slog"
	"time"

	"riftgate/internal/governance/metrics"
)

// RiskFeed is the external risk-assessment collaborator. Latest returns the
// most recent threat reading.
type RiskFeed interface {
	Latest(ctx context.Context) (ThreatSnapshot, error)
}

// StaticFeed is a RiskFeed that always returns the same reading. It stands in
// until a real threat-intelligence integration is wired.
type StaticFeed struct {
	Reading ThreatSnapshot
}

func (f StaticFeed) Latest(context.Context) (ThreatSnapshot, error) {
	return f.Reading, nil
}

// DefaultMonitorInterval is how often the monitor re-reads the risk feed.
const DefaultMonitorInterval = 30 * time.Second

// Monitor is the recurring background task that folds risk-feed readings into
// new governance snapshots. It is the single snapshot writer.
type Monitor struct {
	feed     RiskFeed
	provider *Provider
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger attaches a structured logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithMonitorMetrics attaches governance metrics.
func WithMonitorMetrics(mx *metrics.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mx }
}

// NewMonitor constructs the governance monitor.
func NewMonitor(feed RiskFeed, provider *Provider, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		feed:     feed,
		provider: provider,
		interval: DefaultMonitorInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Run polls the risk feed until ctx is cancelled. Feed errors keep the last
// published snapshot in force; stale thresholds beat torn ones.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			threat, err := m.feed.Latest(ctx)
			if err != nil {
				if m.logger != nil {
					m.logger.WarnContext(ctx, "risk feed read failed, keeping current snapshot",
						"snapshot_version", m.provider.Current().Version,
						"error", err,
					)
				}
				continue
			}
			m.Adjust(threat)
		}
	}
}

// Adjust folds a threat reading into a new published snapshot and returns it.
// The graduated response is chosen from the reading relative to the baseline
// bands: maintain, enhanced-validation, or maximum-oversight. Each published
// snapshot is derived from the baseline, never from the previous snapshot, so
// a tightened band relaxes to the configured policy as soon as the threat
// picture does.
func (m *Monitor) Adjust(threat ThreatSnapshot) *Snapshot {
	baseline := m.provider.Baseline()
	next := Snapshot{
		Thresholds: baseline,
		Threat:     threat,
	}

	switch {
	case threat.Level >= 8 || threat.EntropyDeviation > 2*baseline.MaxEntropyDeviation:
		next.Response = ResponseMaximumOversight
		next.Thresholds.AuthorizeReintegration = false
	case threat.Level >= 4 || threat.EntropyDeviation > baseline.MaxEntropyDeviation:
		next.Response = ResponseEnhancedValidation
		// Tighten the full band one point, never past 100.
		next.Thresholds.FullAccessScore = min(baseline.FullAccessScore+1.0, 100)
	default:
		next.Response = ResponseMaintain
	}

	published := m.provider.Publish(next)
	if m.logger != nil {
		m.logger.Info("governance snapshot published",
			"snapshot_version", published.Version,
			"response", string(published.Response),
			"threat_level", threat.Level,
			"entropy_deviation", threat.EntropyDeviation,
		)
	}
	if m.metrics != nil {
		m.metrics.SetSnapshotVersion(published.Version)
		m.metrics.ObserveResponseMode(string(published.Response))
	}
	return published
}
