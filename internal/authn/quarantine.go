package authn

import (
	"context"
	"sync"
	"time"

	id "riftgate/pkg/domain"
)

// QuarantineEntry records one quarantined profile.
type QuarantineEntry struct {
	ProfileID     id.ProfileID
	Reason        string
	QuarantinedAt time.Time
	SourceRequest string
}

// Quarantine is the in-memory isolation list for profiles implicated in a
// security violation. A quarantined profile fails the session-context gate
// until an operator releases it.
type Quarantine struct {
	mu      sync.RWMutex
	entries map[id.ProfileID]QuarantineEntry
	clock   func() time.Time
}

func NewQuarantine() *Quarantine {
	return &Quarantine{
		entries: make(map[id.ProfileID]QuarantineEntry),
		clock:   time.Now,
	}
}

// Add isolates a profile. Re-adding keeps the earliest entry.
func (q *Quarantine) Add(_ context.Context, profileID id.ProfileID, requestID, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[profileID]; ok {
		return
	}
	q.entries[profileID] = QuarantineEntry{
		ProfileID:     profileID,
		Reason:        reason,
		QuarantinedAt: q.clock().UTC(),
		SourceRequest: requestID,
	}
}

// Contains reports whether a profile is currently quarantined.
func (q *Quarantine) Contains(_ context.Context, profileID id.ProfileID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.entries[profileID]
	return ok
}

// Release lifts the quarantine. Operator action, not part of the pipeline.
func (q *Quarantine) Release(_ context.Context, profileID id.ProfileID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[profileID]; !ok {
		return false
	}
	delete(q.entries, profileID)
	return true
}

// List returns a snapshot of current entries for the admin surface.
func (q *Quarantine) List(_ context.Context) []QuarantineEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]QuarantineEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	return out
}
