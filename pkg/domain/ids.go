// Package domain holds shared domain primitives: typed identifiers and closed
// value sets used across bounded contexts. Typed UUIDs make it a compile error
// to pass a session ID where a profile ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "riftgate/pkg/domain-errors"
)

// ProfileID identifies a registered cognitive profile.
type ProfileID uuid.UUID

// SessionID identifies an issued authentication session.
type SessionID uuid.UUID

// RequestID correlates one authentication attempt across stages and records.
type RequestID uuid.UUID

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be empty", kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseProfileID validates and returns a ProfileID.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseProfileID(s string) (ProfileID, error) {
	parsed, err := parseUUID(s, "profile id")
	if err != nil {
		return ProfileID{}, err
	}
	return ProfileID(parsed), nil
}

// ParseSessionID validates and returns a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	parsed, err := parseUUID(s, "session id")
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(parsed), nil
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	parsed, err := parseUUID(s, "request id")
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(parsed), nil
}

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewRequestID returns a fresh random RequestID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

func (id ProfileID) String() string { return uuid.UUID(id).String() }
func (id ProfileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
