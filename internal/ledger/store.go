package ledger

import (
	"context"
	"database/sql"
)

// Store persists committed chain records.
//
// Error contract:
//   - Append returns sentinel.ErrConflict when rec.Sequence is not exactly
//     one past the stored tail (the compare-and-swap failed)
//   - all methods return errors wrapping sentinel.ErrUnavailable when the
//     backing storage is unreachable; the ledger never drops an event
//     silently and the triggering operation fails closed
type Store interface {
	// Append commits rec as the new tail iff its sequence extends the chain
	// by exactly one.
	Append(ctx context.Context, rec Record) error
	// Last returns the current tail, or nil when the chain is empty.
	Last(ctx context.Context) (*Record, error)
	// Range returns committed records with from <= sequence < to, ordered by
	// sequence.
	Range(ctx context.Context, from, to uint64) ([]Record, error)
}

// TxStore is implemented by stores that can group consecutive appends in one
// database transaction. The ledger injects the open transaction through the
// append context; stores honor it via tx.From.
type TxStore interface {
	Store
	BeginTx(ctx context.Context) (*sql.Tx, error)
}
