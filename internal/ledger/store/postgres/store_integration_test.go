//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"riftgate/internal/ledger"
	"riftgate/internal/ledger/store/postgres"
	dErrors "riftgate/pkg/domain-errors"
	"riftgate/pkg/platform/sentinel"
	"riftgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	_, err := s.pg.DB.Exec(postgres.Schema)
	s.Require().NoError(err)
	s.store = postgres.New(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec("TRUNCATE ledger_records")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) record(sequence uint64, prevHash []byte) ledger.Record {
	return ledger.Record{
		Sequence:  sequence,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Event: ledger.Event{
			Type:      ledger.EventStageCompleted,
			RequestID: "req-1",
			Stage:     "encode",
		},
		Snapshot:  ledger.Snapshot{Version: 1, Score: 96},
		PrevHash:  prevHash,
		Hash:      []byte{byte(sequence), 2, 3},
		Signature: []byte{4, 5, 6},
	}
}

func (s *PostgresStoreSuite) TestAppendAndLast() {
	ctx := context.Background()

	last, err := s.store.Last(ctx)
	s.Require().NoError(err)
	s.Nil(last, "empty chain has no tail")

	rec := s.record(1, make([]byte, 32))
	s.Require().NoError(s.store.Append(ctx, rec))

	last, err = s.store.Last(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.Equal(rec.Sequence, last.Sequence)
	s.Equal(rec.Hash, last.Hash)
	s.Equal(rec.Event.Type, last.Event.Type)
	s.WithinDuration(rec.Timestamp, last.Timestamp, time.Millisecond)
}

func (s *PostgresStoreSuite) TestAppendConflictOnDuplicateSequence() {
	ctx := context.Background()

	rec := s.record(1, make([]byte, 32))
	s.Require().NoError(s.store.Append(ctx, rec))

	err := s.store.Append(ctx, rec)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestRange() {
	ctx := context.Background()

	prev := make([]byte, 32)
	for seq := uint64(1); seq <= 5; seq++ {
		rec := s.record(seq, prev)
		s.Require().NoError(s.store.Append(ctx, rec))
		prev = rec.Hash
	}

	records, err := s.store.Range(ctx, 2, 5)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal(uint64(2), records[0].Sequence)
	s.Equal(uint64(4), records[2].Sequence)

	records, err = s.store.Range(ctx, 10, 20)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *PostgresStoreSuite) TestLedgerOverPostgres() {
	led, err := ledger.New(s.store, []byte("attestation-key-0123456789abcdef"))
	s.Require().NoError(err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := led.Append(ctx, ledger.Event{
			Type:      ledger.EventDecision,
			RequestID: "req-pg",
			Decision:  "granted",
		}, ledger.Snapshot{Version: 1, Score: 96})
		s.Require().NoError(err)
	}

	s.Require().NoError(led.VerifyChain(ctx, 0, 11))
	s.True(led.Healthy(ctx))
}

func (s *PostgresStoreSuite) TestAppendAllGroupsInOneTransaction() {
	led, err := ledger.New(s.store, []byte("attestation-key-0123456789abcdef"))
	s.Require().NoError(err)

	ctx := context.Background()
	_, err = led.Append(ctx, ledger.Event{
		Type:      ledger.EventStageCompleted,
		RequestID: "req-grp",
		Stage:     "encode",
	}, ledger.Snapshot{Version: 1, Score: 96})
	s.Require().NoError(err)

	records, err := led.AppendAll(ctx, []ledger.Event{
		{Type: ledger.EventStageFailed, RequestID: "req-grp", Stage: "governance", Reason: "score below band"},
		{Type: ledger.EventDecision, RequestID: "req-grp", Decision: "denied", Reason: "governance_score_insufficient"},
	}, ledger.Snapshot{Version: 1, Score: 90})
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(uint64(2), records[0].Sequence)
	s.Equal(uint64(3), records[1].Sequence)
	s.Equal(records[0].Hash, records[1].PrevHash)

	s.Require().NoError(led.VerifyChain(ctx, 1, 4))
}

// faultyStore passes appends through to Postgres until its allowance runs
// out, then refuses. It keeps BeginTx from the embedded store, so grouped
// appends still run inside a real transaction.
type faultyStore struct {
	*postgres.Store
	allowance int
}

func (f *faultyStore) Append(ctx context.Context, rec ledger.Record) error {
	if f.allowance == 0 {
		return sentinel.ErrUnavailable
	}
	f.allowance--
	return f.Store.Append(ctx, rec)
}

func (s *PostgresStoreSuite) TestAppendAllRollsBackWholeGroup() {
	faulty := &faultyStore{Store: s.store, allowance: 2}
	led, err := ledger.New(faulty, []byte("attestation-key-0123456789abcdef"))
	s.Require().NoError(err)

	ctx := context.Background()
	_, err = led.Append(ctx, ledger.Event{
		Type:      ledger.EventStageCompleted,
		RequestID: "req-rb",
		Stage:     "encode",
	}, ledger.Snapshot{Version: 1, Score: 96})
	s.Require().NoError(err)

	// The group's first insert lands inside the transaction; the second one
	// exhausts the allowance and fails.
	_, err = led.AppendAll(ctx, []ledger.Event{
		{Type: ledger.EventStageFailed, RequestID: "req-rb", Stage: "bind"},
		{Type: ledger.EventDecision, RequestID: "req-rb", Decision: "denied"},
	}, ledger.Snapshot{Version: 1})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// The first record rolled back with the second; sequence 1 is still the
	// tail and the group retries cleanly.
	records, err := s.store.Range(ctx, 2, 4)
	s.Require().NoError(err)
	s.Empty(records, "no partial group persists")

	faulty.allowance = 2
	grouped, err := led.AppendAll(ctx, []ledger.Event{
		{Type: ledger.EventStageFailed, RequestID: "req-rb", Stage: "bind"},
		{Type: ledger.EventDecision, RequestID: "req-rb", Decision: "denied"},
	}, ledger.Snapshot{Version: 1})
	s.Require().NoError(err)
	s.Require().Len(grouped, 2)
	s.Equal(uint64(2), grouped[0].Sequence)
	s.Require().NoError(led.VerifyChain(ctx, 1, 4))
}
