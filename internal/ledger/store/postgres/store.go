// Package postgres provides the durable ledger store. Appends insert into an
// append-only table whose primary key is the sequence number; the unique
// constraint is the compare-and-swap that rejects forked tails.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"riftgate/internal/ledger"
	"riftgate/pkg/platform/sentinel"
	txcontext "riftgate/pkg/platform/tx"
)

// Schema for the chain table. Managed by migrations in deployment; tests
// apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	sequence      BIGINT PRIMARY KEY,
	committed_at  TIMESTAMPTZ NOT NULL,
	event         JSONB NOT NULL,
	snapshot_ver  BIGINT NOT NULL,
	snapshot_score DOUBLE PRECISION NOT NULL,
	prev_hash     BYTEA NOT NULL,
	record_hash   BYTEA NOT NULL,
	signature     BYTEA NOT NULL
)`

// Store implements ledger.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL-backed ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// BeginTx opens a transaction for grouping consecutive appends. The ledger
// injects it back through the append context.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	payload, err := json.Marshal(rec.Event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	query := `
		INSERT INTO ledger_records (
			sequence, committed_at, event, snapshot_ver, snapshot_score,
			prev_hash, record_hash, signature
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		rec.Sequence,
		rec.Timestamp,
		payload,
		rec.Snapshot.Version,
		rec.Snapshot.Score,
		rec.PrevHash,
		rec.Hash,
		rec.Signature,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("chain tail already holds sequence %d: %w", rec.Sequence, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ledger record: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *Store) Last(ctx context.Context) (*ledger.Record, error) {
	query := `
		SELECT sequence, committed_at, event, snapshot_ver, snapshot_score,
		       prev_hash, record_hash, signature
		FROM ledger_records
		ORDER BY sequence DESC
		LIMIT 1
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger tail: %w", sentinel.ErrUnavailable)
	}
	return rec, nil
}

func (s *Store) Range(ctx context.Context, from, to uint64) ([]ledger.Record, error) {
	query := `
		SELECT sequence, committed_at, event, snapshot_ver, snapshot_score,
		       prev_hash, record_hash, signature
		FROM ledger_records
		WHERE sequence >= $1 AND sequence < $2
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", sentinel.ErrUnavailable)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger range: %w", sentinel.ErrUnavailable)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ledger.Record, error) {
	var (
		rec     ledger.Record
		payload []byte
	)
	err := row.Scan(
		&rec.Sequence,
		&rec.Timestamp,
		&payload,
		&rec.Snapshot.Version,
		&rec.Snapshot.Score,
		&rec.PrevHash,
		&rec.Hash,
		&rec.Signature,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Event); err != nil {
		return nil, fmt.Errorf("unmarshal ledger event: %w", err)
	}
	return &rec, nil
}
