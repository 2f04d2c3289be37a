// Package authn orchestrates the authentication pipeline: credential
// validation, lattice canonicalization, dual-channel encoding, identity
// binding, governance evaluation, and audit commitment, in that order.
package authn

import (
	"fmt"
	"time"

	"riftgate/internal/governance"
	id "riftgate/pkg/domain"
)

// Profile is the raw cognitive profile presented with an attempt. Each
// segment is a feature vector in [0,1]; multi-segment profiles are recombined
// through the lattice engine before encoding.
type Profile struct {
	ID       id.ProfileID
	Segments [][]float64
}

// Request is one authentication attempt.
type Request struct {
	RequestID   id.RequestID
	Profile     Profile
	Subject     string
	Secret      string
	DeviceKnown bool
}

// Session is the issued outcome of a successful attempt.
type Session struct {
	Token     string
	SessionID id.SessionID
	ProfileID id.ProfileID
	Grade     id.AccessGrade
	Score     float64
	ExpiresAt time.Time
}

// DeniedReason classifies why an attempt was refused.
type DeniedReason string

const (
	// DeniedInvalidInput covers malformed profiles and lattice elements.
	DeniedInvalidInput DeniedReason = "invalid_input"
	// DeniedCredentials covers a rejected credential pair.
	DeniedCredentials DeniedReason = "credential_rejected"
	// DeniedSecurityViolation covers profile mismatch, tamper detection, and
	// unauthorized recombination. The artifact is quarantined first.
	DeniedSecurityViolation DeniedReason = "security_violation"
	// DeniedCompliance covers a failed governance gate other than the score
	// band. Never auto-retried.
	DeniedCompliance DeniedReason = "compliance_failure"
	// DeniedScoreInsufficient covers a composite score below the restricted
	// band; resubmission requires the manual-approval pathway.
	DeniedScoreInsufficient DeniedReason = "governance_score_insufficient"
	// DeniedManualReview covers exhausted encode retries on noisy input.
	DeniedManualReview DeniedReason = "manual_review_required"
	// DeniedResource covers ledger or registry unavailability. Fail-closed.
	DeniedResource DeniedReason = "resource_unavailable"
	// DeniedUser covers an explicit "no" or a confirmation timeout.
	DeniedUser DeniedReason = "user_denied"
)

// Denial is the typed refusal returned by Authenticate. Level is set only for
// compliance failures.
type Denial struct {
	Reason  DeniedReason
	Message string
	Level   *governance.Level
	cause   error
}

func (d *Denial) Error() string {
	if d.Level != nil {
		return fmt.Sprintf("access denied (%s at %s): %s", d.Reason, d.Level.String(), d.Message)
	}
	return fmt.Sprintf("access denied (%s): %s", d.Reason, d.Message)
}

func (d *Denial) Unwrap() error { return d.cause }

func deny(reason DeniedReason, message string) *Denial {
	return &Denial{Reason: reason, Message: message}
}

func denyWith(reason DeniedReason, message string, cause error) *Denial {
	return &Denial{Reason: reason, Message: message, cause: cause}
}

func denyCompliance(cf *governance.ComplianceFailure) *Denial {
	level := cf.Level
	reason := DeniedCompliance
	if level == governance.Rift6 {
		reason = DeniedScoreInsufficient
	}
	return &Denial{Reason: reason, Message: cf.Reason, Level: &level, cause: cf}
}
