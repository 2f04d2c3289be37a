package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "riftgate/pkg/domain"
	dErrors "riftgate/pkg/domain-errors"
)

var signingKey = []byte("session-signing-key-0123456789ab")

func TestNewTokenService_RejectsShortKey(t *testing.T) {
	_, err := NewTokenService([]byte("short"), "riftgate", "riftgate-clients")
	require.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	svc, err := NewTokenService(signingKey, "riftgate", "riftgate-clients")
	require.NoError(t, err)

	profileID, err := id.ParseProfileID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	sessionID := id.NewSessionID()

	token, err := svc.Issue(context.Background(), profileID, sessionID, id.GradeRestricted, time.Hour)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, profileID.String(), claims.ProfileID)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.Equal(t, id.GradeRestricted.String(), claims.Grade)
	assert.Equal(t, "riftgate", claims.Issuer)
}

func TestValidate_Expired(t *testing.T) {
	svc, err := NewTokenService(signingKey, "riftgate", "riftgate-clients")
	require.NoError(t, err)

	issued := time.Now()
	svc.clock = func() time.Time { return issued }
	token, err := svc.Issue(context.Background(), id.ProfileID{}, id.NewSessionID(), id.GradeFull, time.Minute)
	require.NoError(t, err)

	svc.clock = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_WrongKey(t *testing.T) {
	issuer, err := NewTokenService(signingKey, "riftgate", "riftgate-clients")
	require.NoError(t, err)
	other, err := NewTokenService([]byte("another-signing-key-0123456789ab"), "riftgate", "riftgate-clients")
	require.NoError(t, err)

	token, err := issuer.Issue(context.Background(), id.ProfileID{}, id.NewSessionID(), id.GradeFull, time.Hour)
	require.NoError(t, err)

	_, err = other.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_Garbage(t *testing.T) {
	svc, err := NewTokenService(signingKey, "riftgate", "riftgate-clients")
	require.NoError(t, err)

	_, err = svc.Validate("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
