// Package ledger implements the tamper-evident audit chain: hash-linked,
// HMAC-signed, append-only records of every governance decision and
// derivation event. Appends are linearizable behind a single writer; chain
// verification recomputes every hash and signature and pinpoints the first
// altered record.
package ledger

import (
	"fmt"
	"time"
)

// EventType classifies ledger events. Pipeline stages, final decisions, and
// security actions all land in the same chain.
type EventType string

const (
	// EventStageCompleted records a pipeline stage passing.
	EventStageCompleted EventType = "stage_completed"
	// EventStageFailed records a pipeline stage failing.
	EventStageFailed EventType = "stage_failed"
	// EventDecision records the final authentication decision.
	EventDecision EventType = "authentication_decision"
	// EventResidueStored records forensic retention of a noise residue.
	EventResidueStored EventType = "residue_stored"
	// EventQuarantine records an artifact being quarantined after a
	// security violation.
	EventQuarantine EventType = "artifact_quarantined"
)

// Event is the payload of one ledger record. Keep it transport-agnostic so
// stores and stream publishers can fan out.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`
	ProfileID string    `json:"profile_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Snapshot is the governance-vector snapshot frozen into each record.
type Snapshot struct {
	Version uint64  `json:"version"`
	Score   float64 `json:"score"`
}

// Record is one immutable, committed chain entry. PrevHash references the
// immediately preceding committed record; sequence numbers are strictly
// increasing with no gaps.
type Record struct {
	Sequence  uint64
	Timestamp time.Time
	Event     Event
	Snapshot  Snapshot
	PrevHash  []byte
	Hash      []byte
	Signature []byte
}

// Filter selects records during queries. A nil Filter matches everything.
type Filter func(Record) bool

// ByType returns a filter matching one event type.
func ByType(t EventType) Filter {
	return func(r Record) bool { return r.Event.Type == t }
}

// ByRequest returns a filter matching one authentication attempt.
func ByRequest(requestID string) Filter {
	return func(r Record) bool { return r.Event.RequestID == requestID }
}

// TamperError reports the first chain position whose hash or signature no
// longer verifies.
type TamperError struct {
	Position uint64
	Reason   string
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("tamper detected at sequence %d: %s", e.Position, e.Reason)
}
