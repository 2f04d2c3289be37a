package adapters

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"riftgate/internal/authn/ports"
	"riftgate/internal/binder"
	id "riftgate/pkg/domain"
	"riftgate/pkg/platform/circuit"
	"riftgate/pkg/platform/sentinel"
)

const (
	profileKeyPrefix       = "riftgate:profile:"
	defaultProfileCacheTTL = 10 * time.Minute
)

// cachedProfile is the Redis wire shape of a registry record.
type cachedProfile struct {
	ProfileID    string    `json:"profile_id"`
	Artifact     string    `json:"artifact"`
	Key          string    `json:"key"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CachedRegistry fronts another registry with a Redis read-through cache.
// Cache faults degrade to the inner registry; they never fail a lookup. A
// circuit breaker stops cache traffic entirely while Redis is down so every
// request is not taxed with a failing round trip.
type CachedRegistry struct {
	inner   ports.ProfileRegistry
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type CachedRegistryOption func(*CachedRegistry)

func WithCacheTTL(ttl time.Duration) CachedRegistryOption {
	return func(r *CachedRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CachedRegistryOption {
	return func(r *CachedRegistry) { r.logger = logger }
}

func NewCachedRegistry(inner ports.ProfileRegistry, client *redis.Client, opts ...CachedRegistryOption) *CachedRegistry {
	r := &CachedRegistry{
		inner:   inner,
		client:  client,
		ttl:     defaultProfileCacheTTL,
		breaker: circuit.New("profile-cache"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *CachedRegistry) Lookup(ctx context.Context, profileID id.ProfileID) (*ports.ProfileRecord, error) {
	key := profileKeyPrefix + profileID.String()

	if !r.breaker.IsOpen() {
		payload, err := r.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			r.breaker.RecordSuccess()
			if rec, decodeErr := decodeCachedProfile(payload); decodeErr == nil {
				return rec, nil
			}
			// Undecodable entries are dropped and re-fetched.
			r.client.Del(ctx, key)
		case errors.Is(err, redis.Nil):
			r.breaker.RecordSuccess()
		default:
			r.cacheFault(ctx, "read", err)
		}
	}

	rec, err := r.inner.Lookup(ctx, profileID)
	if err != nil {
		return nil, err
	}
	r.prime(ctx, key, rec)
	return rec, nil
}

func (r *CachedRegistry) Register(ctx context.Context, rec ports.ProfileRecord) error {
	if err := r.inner.Register(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent writer won; drop any stale cache entry.
			r.client.Del(ctx, profileKeyPrefix+rec.ProfileID.String())
		}
		return err
	}
	r.prime(ctx, profileKeyPrefix+rec.ProfileID.String(), &rec)
	return nil
}

func (r *CachedRegistry) prime(ctx context.Context, key string, rec *ports.ProfileRecord) {
	payload, err := json.Marshal(cachedProfile{
		ProfileID:    rec.ProfileID.String(),
		Artifact:     hex.EncodeToString(rec.Artifact[:]),
		Key:          hex.EncodeToString(rec.Key[:]),
		RegisteredAt: rec.RegisteredAt,
	})
	if err != nil {
		return
	}
	// Writes keep flowing while the circuit is open; their successes are
	// what eventually closes it again.
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.cacheFault(ctx, "write", err)
		return
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed && r.logger != nil {
		r.logger.InfoContext(ctx, "profile cache circuit closed")
	}
}

func (r *CachedRegistry) cacheFault(ctx context.Context, op string, err error) {
	_, change := r.breaker.RecordFailure()
	if r.logger == nil {
		return
	}
	if change.Opened {
		r.logger.WarnContext(ctx, "profile cache circuit opened", "op", op, "error", err)
		return
	}
	r.logger.WarnContext(ctx, "profile cache "+op+" failed", "error", err)
}

func decodeCachedProfile(payload []byte) (*ports.ProfileRecord, error) {
	var wire cachedProfile
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	profileID, err := id.ParseProfileID(wire.ProfileID)
	if err != nil {
		return nil, err
	}
	artifact, err := hex.DecodeString(wire.Artifact)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(wire.Key)
	if err != nil {
		return nil, err
	}
	if len(artifact) != binder.ArtifactSize || len(key) != binder.ArtifactSize {
		return nil, errors.New("cached profile has malformed key material")
	}

	rec := &ports.ProfileRecord{ProfileID: profileID, RegisteredAt: wire.RegisteredAt}
	copy(rec.Artifact[:], artifact)
	copy(rec.Key[:], key)
	return rec, nil
}
