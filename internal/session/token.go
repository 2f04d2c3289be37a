// Package session mints and validates the ephemeral session tokens issued at
// the end of a successful authentication run.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "riftgate/pkg/domain"
	dErrors "riftgate/pkg/domain-errors"
)

// Claims are the session token claims. The token carries the access grade so
// downstream services enforce the banded policy without a registry read.
type Claims struct {
	ProfileID string `json:"profile_id"`
	SessionID string `json:"session_id"`
	Grade     string `json:"grade"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 session tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	clock      func() time.Time
}

func NewTokenService(signingKey []byte, issuer, audience string) (*TokenService, error) {
	if len(signingKey) < 16 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session signing key must be at least 16 bytes")
	}
	return &TokenService{
		signingKey: append([]byte(nil), signingKey...),
		issuer:     issuer,
		audience:   audience,
		clock:      time.Now,
	}, nil
}

// Issue mints one token bound to the profile, session, and grade.
func (s *TokenService) Issue(_ context.Context, profileID id.ProfileID, sessionID id.SessionID, grade id.AccessGrade, ttl time.Duration) (string, error) {
	now := s.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ProfileID: profileID.String(),
		SessionID: sessionID.String(),
		Grade:     grade.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "session token signing failed")
	}
	return signed, nil
}

// Validate parses a presented token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.clock() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token claims")
	}
	if _, err := id.ParseAccessGrade(claims.Grade); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unrecognized access grade")
	}
	return claims, nil
}
