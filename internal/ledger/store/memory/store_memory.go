// Package memory provides the in-memory ledger store for tests and dev.
package memory

import (
	"context"
	"fmt"
	"sync"

	"riftgate/internal/ledger"
	"riftgate/pkg/platform/sentinel"
)

// Store keeps the chain in a slice guarded by a RWMutex. Append enforces the
// tail compare-and-swap contract even though the ledger already serializes
// writers, so a misbehaving second writer is caught here.
type Store struct {
	mu      sync.RWMutex
	records []ledger.Record

	// failNext simulates storage unavailability for fail-closed tests.
	failNext bool
}

// New constructs an empty in-memory ledger store.
func New() *Store {
	return &Store{}
}

// FailNextAppend makes the next Append report unavailability. Test hook.
func (s *Store) FailNextAppend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *Store) Append(_ context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext {
		s.failNext = false
		return fmt.Errorf("simulated storage outage: %w", sentinel.ErrUnavailable)
	}

	want := uint64(len(s.records)) + 1
	if rec.Sequence != want {
		return fmt.Errorf("sequence %d does not extend tail %d: %w", rec.Sequence, want-1, sentinel.ErrConflict)
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *Store) Last(_ context.Context) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, nil
}

func (s *Store) Range(_ context.Context, from, to uint64) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Record
	for _, rec := range s.records {
		if rec.Sequence >= from && rec.Sequence < to {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Tamper overwrites the stored record at the given sequence. Test hook for
// chain-integrity scenarios; the production interface has no mutation path.
func (s *Store) Tamper(sequence uint64, mutate func(*ledger.Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Sequence == sequence {
			mutate(&s.records[i])
			return true
		}
	}
	return false
}
