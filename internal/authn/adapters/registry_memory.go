// Package adapters provides concrete implementations of the pipeline's
// collaborator ports: an in-memory registry for development and tests, a
// Redis-backed registry cache, and a static credential validator.
package adapters

import (
	"context"
	"fmt"
	"sync"

	"riftgate/internal/authn/ports"
	id "riftgate/pkg/domain"
	"riftgate/pkg/platform/sentinel"
)

// MemoryRegistry keeps identity bindings in process. It intentionally favors
// clarity over performance.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[id.ProfileID]ports.ProfileRecord
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[id.ProfileID]ports.ProfileRecord)}
}

func (r *MemoryRegistry) Lookup(_ context.Context, profileID id.ProfileID) (*ports.ProfileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[profileID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", profileID, sentinel.ErrNotFound)
	}
	return &rec, nil
}

func (r *MemoryRegistry) Register(_ context.Context, rec ports.ProfileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ProfileID]; ok {
		return fmt.Errorf("profile %s already bound: %w", rec.ProfileID, sentinel.ErrConflict)
	}
	r.records[rec.ProfileID] = rec
	return nil
}
