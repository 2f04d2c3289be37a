package adapters

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"riftgate/internal/authn/ports"
	id "riftgate/pkg/domain"
	dErrors "riftgate/pkg/domain-errors"
)

// StaticValidator is a fixed-credential validator for development and tests.
// Production deployments adapt the SSO collaborator behind the same port.
type StaticValidator struct {
	mu    sync.RWMutex
	creds map[string]staticCredential
}

type staticCredential struct {
	secret    string
	profileID id.ProfileID
}

func NewStaticValidator() *StaticValidator {
	return &StaticValidator{creds: make(map[string]staticCredential)}
}

// Register adds or replaces a credential pair.
func (v *StaticValidator) Register(subject, secret string, profileID id.ProfileID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds[subject] = staticCredential{secret: secret, profileID: profileID}
}

// Validate checks the presented pair. The secret comparison is constant time;
// unknown subjects still run a comparison against an empty secret so timing
// does not reveal subject existence.
func (v *StaticValidator) Validate(_ context.Context, creds ports.Credentials) (ports.Identity, error) {
	v.mu.RLock()
	known, ok := v.creds[creds.Subject]
	v.mu.RUnlock()

	match := subtle.ConstantTimeCompare([]byte(known.secret), []byte(creds.Secret)) == 1
	if !ok || !match {
		return ports.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "credentials rejected")
	}
	return ports.Identity{ProfileID: known.profileID, Subject: creds.Subject}, nil
}

// AutoConfirmer answers every prompt with a fixed response after an optional
// delay. Development wiring only.
type AutoConfirmer struct {
	Answer ports.Answer
	Delay  time.Duration
}

func (c *AutoConfirmer) Ask(ctx context.Context, _ string, timeout time.Duration) (ports.Answer, error) {
	wait := c.Delay
	if wait > timeout {
		wait = timeout
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ports.AnswerTimeout, nil
		}
	}
	if c.Delay > timeout {
		return ports.AnswerTimeout, nil
	}
	return c.Answer, nil
}
