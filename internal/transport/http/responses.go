package httptransport

import (
	"time"

	"riftgate/internal/authn"
	"riftgate/internal/ledger"
)

// SessionResponse is the wire shape of an issued session.
type SessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ProfileID string    `json:"profile_id"`
	Grade     string    `json:"grade"`
	Score     float64   `json:"score"`
	ExpiresAt time.Time `json:"expires_at"`
}

func FromSession(s *authn.Session) SessionResponse {
	return SessionResponse{
		Token:     s.Token,
		SessionID: s.SessionID.String(),
		ProfileID: s.ProfileID.String(),
		Grade:     s.Grade.String(),
		Score:     s.Score,
		ExpiresAt: s.ExpiresAt,
	}
}

// DenialResponse is the wire shape of a refused attempt.
type DenialResponse struct {
	Denied string `json:"denied"`
	Detail string `json:"detail,omitempty"`
	Level  string `json:"level,omitempty"`
}

func FromDenial(d *authn.Denial) DenialResponse {
	resp := DenialResponse{Denied: string(d.Reason), Detail: d.Message}
	if d.Level != nil {
		resp.Level = d.Level.String()
	}
	return resp
}

// AuditRecordResponse is the wire shape of one committed ledger record.
type AuditRecordResponse struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Event     ledger.Event    `json:"event"`
	Snapshot  ledger.Snapshot `json:"snapshot"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
	Signature string          `json:"signature"`
}

func FromRecord(rec ledger.Record) AuditRecordResponse {
	return AuditRecordResponse{
		Sequence:  rec.Sequence,
		Timestamp: rec.Timestamp,
		Event:     rec.Event,
		Snapshot:  rec.Snapshot,
		PrevHash:  hexOrEmpty(rec.PrevHash),
		Hash:      hexOrEmpty(rec.Hash),
		Signature: hexOrEmpty(rec.Signature),
	}
}

// AuditRangeResponse wraps a page of audit records.
type AuditRangeResponse struct {
	From    uint64                `json:"from"`
	To      uint64                `json:"to"`
	Records []AuditRecordResponse `json:"records"`
}

// QuarantineEntryResponse is the wire shape of one quarantined profile.
type QuarantineEntryResponse struct {
	ProfileID     string    `json:"profile_id"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantined_at"`
	SourceRequest string    `json:"source_request,omitempty"`
}
