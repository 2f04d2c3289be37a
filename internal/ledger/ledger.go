package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"riftgate/internal/ledger/metrics"
	dErrors "riftgate/pkg/domain-errors"
	"riftgate/pkg/platform/sentinel"
	txcontext "riftgate/pkg/platform/tx"
)

// genesisHash anchors the first record of every chain.
var genesisHash = make([]byte, sha256.Size)

// Sink receives committed records after the store accepted them. Used for the
// compliance stream publisher; sink failures never un-commit a record.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

// Ledger is the append-only audit chain. A mutex serializes writers so
// sequence numbers strictly increase with no gaps and PrevHash always
// references the immediately preceding committed record.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	attestKey []byte
	sink      Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink attaches a fan-out sink for committed records.
func WithSink(sink Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics attaches ledger metrics.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = mx }
}

// WithClock sets the timestamp source for testability.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New constructs a ledger over the given store, signing every record with the
// attestation key.
func New(store Store, attestKey []byte, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ledger store is required")
	}
	if len(attestKey) < 16 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation key must be at least 16 bytes")
	}
	l := &Ledger{
		store:     store,
		attestKey: append([]byte(nil), attestKey...),
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Append commits event as the next chain record and returns it. Linearizable:
// the writer lock plus the store's tail compare-and-swap guarantee gap-free,
// fork-free growth. Storage unavailability surfaces as unavailable and the
// caller must fail closed.
func (l *Ledger) Append(ctx context.Context, event Event, snap Snapshot) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.store.Last(ctx)
	if err != nil {
		l.metrics.ObserveAppendFailure()
		return Record{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger tail read failed")
	}

	rec, err := l.appendNext(ctx, event, snap, last)
	if err != nil {
		return Record{}, err
	}
	l.fanOut(ctx, rec)
	return rec, nil
}

// AppendAll commits events as consecutive chain records. When the store
// supports transactions the whole group lands atomically: a mid-group failure
// rolls every record back. Over plain stores a mid-group failure leaves the
// committed prefix, which keeps the chain valid and gap-free.
func (l *Ledger) AppendAll(ctx context.Context, events []Event, snap Snapshot) ([]Record, error) {
	if len(events) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.store.Last(ctx)
	if err != nil {
		l.metrics.ObserveAppendFailure()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger tail read failed")
	}

	appendCtx := ctx
	var dbTx *sql.Tx
	if ts, ok := l.store.(TxStore); ok {
		dbTx, err = ts.BeginTx(ctx)
		if err != nil {
			l.metrics.ObserveAppendFailure()
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger transaction begin failed")
		}
		appendCtx = txcontext.WithTx(ctx, dbTx)
	}

	records := make([]Record, 0, len(events))
	prev := last
	for _, event := range events {
		rec, err := l.appendNext(appendCtx, event, snap, prev)
		if err != nil {
			if dbTx != nil {
				_ = dbTx.Rollback()
			}
			return nil, err
		}
		records = append(records, rec)
		prev = &records[len(records)-1]
	}
	if dbTx != nil {
		if err := dbTx.Commit(); err != nil {
			l.metrics.ObserveAppendFailure()
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger transaction commit failed")
		}
	}

	for _, rec := range records {
		l.fanOut(ctx, rec)
	}
	return records, nil
}

// appendNext builds, seals, and stores the record extending prev. Callers
// hold the writer lock.
func (l *Ledger) appendNext(ctx context.Context, event Event, snap Snapshot, prev *Record) (Record, error) {
	rec := Record{
		Sequence:  1,
		Timestamp: l.clock().UTC(),
		Event:     event,
		Snapshot:  snap,
		PrevHash:  genesisHash,
	}
	if prev != nil {
		rec.Sequence = prev.Sequence + 1
		rec.PrevHash = prev.Hash
	}

	var err error
	rec.Hash, err = l.recordHash(rec)
	if err != nil {
		return Record{}, err
	}
	rec.Signature = l.sign(rec.Hash)

	if err := l.store.Append(ctx, rec); err != nil {
		l.metrics.ObserveAppendFailure()
		if errors.Is(err, sentinel.ErrConflict) {
			// Single-writer discipline makes this unreachable unless a second
			// ledger shares the store.
			return Record{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "chain tail moved under writer lock")
		}
		return Record{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger append failed")
	}
	return rec, nil
}

// fanOut records the commit and streams it to the sink, if any.
func (l *Ledger) fanOut(ctx context.Context, rec Record) {
	l.metrics.ObserveAppend(rec.Sequence)

	if l.sink != nil {
		if err := l.sink.Publish(ctx, rec); err != nil {
			l.metrics.ObserveSinkFailure()
			if l.logger != nil {
				l.logger.WarnContext(ctx, "ledger sink publish failed",
					"sequence", rec.Sequence,
					"error", err,
				)
			}
		}
	}
}

// VerifyChain recomputes hashes and signatures for from <= sequence < to.
// The first mismatch is reported as a TamperError carrying the position.
func (l *Ledger) VerifyChain(ctx context.Context, from, to uint64) error {
	records, err := l.store.Range(ctx, from, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger range read failed")
	}

	var prevHash []byte
	for i, rec := range records {
		if i == 0 {
			if rec.Sequence == 1 {
				prevHash = genesisHash
			} else {
				prevHash = rec.PrevHash // anchor mid-chain verification at the range head
			}
		}
		if !bytes.Equal(rec.PrevHash, prevHash) {
			return l.tampered(rec.Sequence, "previous-hash link broken")
		}
		expected, err := l.recordHash(rec)
		if err != nil {
			return err
		}
		if !bytes.Equal(rec.Hash, expected) {
			return l.tampered(rec.Sequence, "record hash mismatch")
		}
		if !hmac.Equal(rec.Signature, l.sign(rec.Hash)) {
			return l.tampered(rec.Sequence, "attestation signature mismatch")
		}
		if i > 0 && rec.Sequence != records[i-1].Sequence+1 {
			return l.tampered(rec.Sequence, "sequence gap")
		}
		prevHash = rec.Hash
	}
	return nil
}

func (l *Ledger) tampered(position uint64, reason string) error {
	l.metrics.ObserveTamper()
	return &TamperError{Position: position, Reason: reason}
}

// Healthy reports whether the chain tail is reachable and verifies. The
// governance machine reads this as audit health.
func (l *Ledger) Healthy(ctx context.Context) bool {
	last, err := l.store.Last(ctx)
	if err != nil {
		return false
	}
	if last == nil {
		return true
	}
	expected, err := l.recordHash(*last)
	if err != nil {
		return false
	}
	return bytes.Equal(last.Hash, expected) && hmac.Equal(last.Signature, l.sign(last.Hash))
}

// recordHash computes sha256(prev_hash || event || snapshot || timestamp).
// JSON gives a stable field order for the event payload.
func (l *Ledger) recordHash(rec Record) ([]byte, error) {
	payload, err := json.Marshal(rec.Event)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "event serialization failed")
	}

	h := sha256.New()
	h.Write(rec.PrevHash)
	h.Write(payload)

	var snapBuf [16]byte
	binary.BigEndian.PutUint64(snapBuf[:8], rec.Snapshot.Version)
	binary.BigEndian.PutUint64(snapBuf[8:], uint64(rec.Snapshot.Score*1000))
	h.Write(snapBuf[:])

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], rec.Sequence)
	h.Write(seqBuf[:])

	h.Write([]byte(rec.Timestamp.Format(time.RFC3339Nano)))
	return h.Sum(nil), nil
}

func (l *Ledger) sign(hash []byte) []byte {
	mac := hmac.New(sha256.New, l.attestKey)
	mac.Write(hash)
	return mac.Sum(nil)
}
