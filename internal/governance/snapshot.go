package governance

import (
	"sync/atomic"
	"time"
)

// ResponseMode is the graduated monitor response. It escalates how much
// scrutiny the RIFT_7 oversight gate applies.
type ResponseMode string

const (
	// ResponseMaintain keeps current thresholds.
	ResponseMaintain ResponseMode = "maintain"
	// ResponseEnhancedValidation tightens score bands.
	ResponseEnhancedValidation ResponseMode = "enhanced-validation"
	// ResponseMaximumOversight additionally requires a quorum of independent
	// approvals before any session is issued.
	ResponseMaximumOversight ResponseMode = "maximum-oversight"
)

// Thresholds are the configurable policy values the gates evaluate against.
// They are configuration, not constants; the monitor rewrites them as the
// threat picture changes.
type Thresholds struct {
	// FullAccessScore: composite score at or above this grants full access.
	FullAccessScore float64
	// RestrictedScore: scores in [RestrictedScore, FullAccessScore) grant
	// restricted/research access. Below it the attempt requires the external
	// manual-approval workflow.
	RestrictedScore float64
	// MaxEntropyDeviation bounds the RIFT_2 gate.
	MaxEntropyDeviation float64
	// MaxThreatLevel bounds the RIFT_3 gate.
	MaxThreatLevel float64
	// AuthorizeReintegration permits the encoder's reintegrate disposition.
	AuthorizeReintegration bool
}

// DefaultThresholds returns the stock policy bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FullAccessScore:     95.0,
		RestrictedScore:     92.5,
		MaxEntropyDeviation: 1.5,
		MaxThreatLevel:      7.0,
	}
}

// Snapshot is one immutable, versioned view of governance state. An in-flight
// session pins exactly one snapshot for its whole run, so a concurrent
// threshold update can never produce a torn read.
type Snapshot struct {
	Version    uint64
	Thresholds Thresholds
	Response   ResponseMode
	Threat     ThreatSnapshot
	UpdatedAt  time.Time
}

// Provider publishes immutable snapshots. Readers call Current and hold the
// returned pointer; writers build a fresh Snapshot and publish it whole. The
// construction-time policy is kept as the baseline every adjustment derives
// from, so a tightened band returns to it once the threat picture clears.
type Provider struct {
	baseline Thresholds
	current  atomic.Pointer[Snapshot]
}

// NewProvider seeds a provider with version 1 of the given policy.
func NewProvider(thresholds Thresholds) *Provider {
	p := &Provider{baseline: thresholds}
	p.current.Store(&Snapshot{
		Version:    1,
		Thresholds: thresholds,
		Response:   ResponseMaintain,
		UpdatedAt:  time.Now(),
	})
	return p
}

// Baseline returns the configured policy bands, untouched by any graduated
// response the monitor has applied since.
func (p *Provider) Baseline() Thresholds {
	return p.baseline
}

// Current returns the live snapshot. The pointee is immutable; callers keep
// the pointer for the duration of one pipeline run.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Publish installs next as the live snapshot with the next version number.
// Single writer: only the monitor publishes.
func (p *Provider) Publish(next Snapshot) *Snapshot {
	prev := p.current.Load()
	next.Version = prev.Version + 1
	next.UpdatedAt = time.Now()
	p.current.Store(&next)
	return &next
}
