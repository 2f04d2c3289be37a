//go:build integration

package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"riftgate/internal/authn/adapters"
	"riftgate/internal/authn/ports"
	"riftgate/internal/binder"
	id "riftgate/pkg/domain"
	"riftgate/pkg/platform/sentinel"
	"riftgate/pkg/testutil/containers"
)

type CachedRegistrySuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCachedRegistrySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedRegistrySuite))
}

func (s *CachedRegistrySuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *CachedRegistrySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CachedRegistrySuite) profileID() id.ProfileID {
	profileID, err := id.ParseProfileID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	s.Require().NoError(err)
	return profileID
}

// countingRegistry tracks how often the inner registry is hit.
type countingRegistry struct {
	inner   ports.ProfileRegistry
	lookups int
}

func (c *countingRegistry) Lookup(ctx context.Context, profileID id.ProfileID) (*ports.ProfileRecord, error) {
	c.lookups++
	return c.inner.Lookup(ctx, profileID)
}

func (c *countingRegistry) Register(ctx context.Context, rec ports.ProfileRecord) error {
	return c.inner.Register(ctx, rec)
}

func (s *CachedRegistrySuite) TestReadThrough() {
	ctx := context.Background()
	counting := &countingRegistry{inner: adapters.NewMemoryRegistry()}
	cached := adapters.NewCachedRegistry(counting, s.redis.Client)

	rec := ports.ProfileRecord{
		ProfileID:    s.profileID(),
		Artifact:     binder.IdentityArtifact{0xaa},
		Key:          binder.VerificationKey{0xbb},
		RegisteredAt: time.Now().UTC().Truncate(time.Second),
	}
	s.Require().NoError(cached.Register(ctx, rec))

	// Register primed the cache; lookups never touch the inner registry.
	for i := 0; i < 3; i++ {
		got, err := cached.Lookup(ctx, rec.ProfileID)
		s.Require().NoError(err)
		s.Equal(rec.Artifact, got.Artifact)
		s.Equal(rec.Key, got.Key)
	}
	s.Equal(0, counting.lookups)
}

func (s *CachedRegistrySuite) TestMissFillsCache() {
	ctx := context.Background()
	inner := adapters.NewMemoryRegistry()
	counting := &countingRegistry{inner: inner}
	cached := adapters.NewCachedRegistry(counting, s.redis.Client)

	rec := ports.ProfileRecord{ProfileID: s.profileID(), Artifact: binder.IdentityArtifact{1}, Key: binder.VerificationKey{2}}
	s.Require().NoError(inner.Register(ctx, rec))

	for i := 0; i < 3; i++ {
		_, err := cached.Lookup(ctx, rec.ProfileID)
		s.Require().NoError(err)
	}
	s.Equal(1, counting.lookups, "only the first lookup reaches the inner registry")
}

func (s *CachedRegistrySuite) TestNotFoundPassesThrough() {
	ctx := context.Background()
	cached := adapters.NewCachedRegistry(adapters.NewMemoryRegistry(), s.redis.Client)

	_, err := cached.Lookup(ctx, s.profileID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CachedRegistrySuite) TestConflictInvalidates() {
	ctx := context.Background()
	inner := adapters.NewMemoryRegistry()
	cached := adapters.NewCachedRegistry(inner, s.redis.Client)

	rec := ports.ProfileRecord{ProfileID: s.profileID(), Artifact: binder.IdentityArtifact{1}, Key: binder.VerificationKey{2}}
	s.Require().NoError(cached.Register(ctx, rec))
	s.Require().ErrorIs(cached.Register(ctx, rec), sentinel.ErrConflict)

	// The conflicting register dropped the cache entry; the next lookup
	// re-reads the authoritative record.
	got, err := cached.Lookup(ctx, rec.ProfileID)
	s.Require().NoError(err)
	s.Equal(rec.Artifact, got.Artifact)
}
