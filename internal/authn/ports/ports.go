// Package ports declares the collaborator interfaces the authentication
// pipeline consumes. Credential validation, profile-registry storage, and the
// confirmation prompt are external systems; the pipeline only depends on
// these contracts.
package ports

import (
	"context"
	"time"

	"riftgate/internal/binder"
	id "riftgate/pkg/domain"
)

// Credentials carry what the caller presented for validation. The pipeline
// never inspects Secret; it hands the pair to the validator verbatim.
type Credentials struct {
	Subject string
	Secret  string
}

// Identity is a validated caller identity returned by the credential
// validator.
type Identity struct {
	ProfileID id.ProfileID
	Subject   string
}

// CredentialValidator is the single-sign-on collaborator. A rejected
// credential returns an error with dErrors.CodeUnauthorized; infrastructure
// faults return dErrors.CodeUnavailable.
type CredentialValidator interface {
	Validate(ctx context.Context, creds Credentials) (Identity, error)
}

// ProfileRecord is one registered identity binding.
type ProfileRecord struct {
	ProfileID    id.ProfileID
	Artifact     binder.IdentityArtifact
	Key          binder.VerificationKey
	RegisteredAt time.Time
}

// ProfileRegistry stores identity bindings.
//
// Lookup returns sentinel.ErrNotFound (wrapped) for an unknown profile.
// Register returns sentinel.ErrConflict (wrapped) when the profile already
// holds a binding; callers resolve the race by re-reading.
type ProfileRegistry interface {
	Lookup(ctx context.Context, profileID id.ProfileID) (*ProfileRecord, error)
	Register(ctx context.Context, rec ProfileRecord) error
}

// Answer is the confirmation prompt outcome. Anything other than AnswerYes,
// including a timeout, is treated as an explicit denial.
type Answer string

const (
	AnswerYes     Answer = "yes"
	AnswerNo      Answer = "no"
	AnswerTimeout Answer = "timeout"
)

// Confirmer is the user-facing confirmation prompt collaborator. Ask blocks
// up to timeout; an elapsed window returns AnswerTimeout, not an error.
type Confirmer interface {
	Ask(ctx context.Context, question string, timeout time.Duration) (Answer, error)
}

// TokenIssuer mints the ephemeral session token once the pipeline's decision
// record is durably committed.
type TokenIssuer interface {
	Issue(ctx context.Context, profileID id.ProfileID, sessionID id.SessionID, grade id.AccessGrade, ttl time.Duration) (string, error)
}
