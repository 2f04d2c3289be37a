package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, registries, and the ledger
// return these (optionally wrapped) so services can translate them into domain
// errors with the right failure class.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store or registry
// - ErrConflict: registry already holds a different artifact for the subject
// - ErrExpired: session or approval window has expired
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: ledger or registry storage temporarily unreachable
//
// For validation errors (malformed profiles, bad input), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
