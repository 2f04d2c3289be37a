// Package binder derives the separated identity/verification pair from the
// encoder's signal channel. Derivation is a keyed, one-way HKDF construction
// with domain-separated labels, so possession of one output never yields the
// other, and an identity artifact alone never authorizes a session.
package binder

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"riftgate/internal/lattice"
	dErrors "riftgate/pkg/domain-errors"
)

// ArtifactSize is the byte length of both derived outputs.
const ArtifactSize = 32

// Domain-separation labels. Changing either invalidates every registered
// artifact, so they are fixed protocol constants.
const (
	labelIdentity = "riftgate/v1/identity"
	labelKey      = "riftgate/v1/key"
)

// hkdfSalt is a fixed, public extraction salt. Secrecy lives entirely in the
// binder secret; the salt only separates this deployment of the construction.
var hkdfSalt = []byte("riftgate-binder-hkdf-salt")

// IdentityArtifact is the one-way identity token registered for a profile.
type IdentityArtifact [ArtifactSize]byte

// VerificationKey is the independently held key that authorizes sessions.
type VerificationKey [ArtifactSize]byte

// Pair is one derivation result. The two halves are owned independently; the
// registry stores them, the governance machine checks both are present.
type Pair struct {
	Artifact IdentityArtifact
	Key      VerificationKey
}

// Binder performs derivations with a long-lived secret.
type Binder struct {
	secret []byte
}

// New constructs a binder. The secret must be non-trivial; a short secret is
// an invariant violation rather than a runtime condition.
func New(secret []byte) (*Binder, error) {
	if len(secret) < 16 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "binder secret must be at least 16 bytes")
	}
	b := &Binder{secret: make([]byte, len(secret))}
	copy(b.secret, secret)
	return b, nil
}

// Derive computes the identity/verification pair for a canonical result
// element. Deterministic, one-way, collision-resistant: HKDF-SHA256 keyed by
// the binder secret over the element's canonical serialization, expanded
// under two domain-separated labels.
func (b *Binder) Derive(result lattice.Element) (Pair, error) {
	if result.IsZero() {
		return Pair{}, dErrors.New(dErrors.CodeInvalidInput, "cannot derive identity from the zero element")
	}

	material := result.Bytes()

	var pair Pair
	if err := expand(b.secret, material, labelIdentity, pair.Artifact[:]); err != nil {
		return Pair{}, err
	}
	if err := expand(b.secret, material, labelKey, pair.Key[:]); err != nil {
		return Pair{}, err
	}
	return pair, nil
}

func expand(secret, material []byte, label string, out []byte) error {
	r := hkdf.New(sha256.New, append(material, secret...), hkdfSalt, []byte(label))
	if _, err := io.ReadFull(r, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hkdf expansion failed")
	}
	return nil
}

// Equal compares two identity artifacts in constant time.
func (a IdentityArtifact) Equal(other IdentityArtifact) bool {
	return hmac.Equal(a[:], other[:])
}

// Equal compares two verification keys in constant time.
func (k VerificationKey) Equal(other VerificationKey) bool {
	return hmac.Equal(k[:], other[:])
}

// IsZero reports whether the artifact is absent. Absence of either output is
// treated as fail-closed access denial downstream.
func (a IdentityArtifact) IsZero() bool { return a == IdentityArtifact{} }

// IsZero reports whether the key is absent.
func (k VerificationKey) IsZero() bool { return k == VerificationKey{} }
