package authn_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riftgate/internal/authn"
	"riftgate/internal/authn/adapters"
	"riftgate/internal/authn/ports"
	"riftgate/internal/binder"
	"riftgate/internal/encoder"
	"riftgate/internal/governance"
	"riftgate/internal/lattice"
	"riftgate/internal/ledger"
	"riftgate/internal/ledger/store/memory"
	id "riftgate/pkg/domain"
	"riftgate/pkg/platform/sentinel"
)

var (
	attestKey    = []byte("attestation-key-0123456789abcdef")
	binderSecret = []byte("binder-secret-0123456789abcdef00")
)

// cleanSegment quantizes to a multiple of the canonical mask, so its residue
// is empty and the attempt's decoherence is exactly zero.
func cleanSegment() []float64 {
	return []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
}

// noisySegment sits entirely below the canonical mask; everything is residue.
func noisySegment() []float64 {
	f := 32.0 / float64(1<<20)
	return []float64{f, f, f, f, f, f, f, f}
}

type scriptedConfirmer struct {
	answer ports.Answer
	asked  int
}

func (c *scriptedConfirmer) Ask(_ context.Context, _ string, _ time.Duration) (ports.Answer, error) {
	c.asked++
	return c.answer, nil
}

type fakeIssuer struct {
	issued int
	fail   bool
}

func (f *fakeIssuer) Issue(_ context.Context, _ id.ProfileID, sessionID id.SessionID, _ id.AccessGrade, _ time.Duration) (string, error) {
	if f.fail {
		return "", errors.New("signer offline")
	}
	f.issued++
	return "token-" + sessionID.String(), nil
}

// faultyStore fails the append carrying one chosen sequence number, then
// recovers. It simulates storage dropping out mid-pipeline.
type faultyStore struct {
	ledger.Store
	failSequence uint64
}

func (s *faultyStore) Append(ctx context.Context, rec ledger.Record) error {
	if rec.Sequence == s.failSequence {
		return fmt.Errorf("simulated outage: %w", sentinel.ErrUnavailable)
	}
	return s.Store.Append(ctx, rec)
}

type fixture struct {
	svc       *authn.Service
	ledger    *ledger.Ledger
	provider  *governance.Provider
	validator *adapters.StaticValidator
	registry  *adapters.MemoryRegistry
	confirmer *scriptedConfirmer
	tokens    *fakeIssuer
	levels    []governance.Level
}

type fixtureConfig struct {
	store       ledger.Store
	coordinator *governance.Coordinator
	engineOpts  []lattice.Option
	svcOpts     []authn.Option
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()

	engine := lattice.NewEngine(cfg.engineOpts...)
	enc, err := encoder.New(engine)
	require.NoError(t, err)
	bnd, err := binder.New(binderSecret)
	require.NoError(t, err)

	store := cfg.store
	if store == nil {
		store = memory.New()
	}
	led, err := ledger.New(store, attestKey)
	require.NoError(t, err)

	fix := &fixture{
		ledger:    led,
		provider:  governance.NewProvider(governance.DefaultThresholds()),
		validator: adapters.NewStaticValidator(),
		registry:  adapters.NewMemoryRegistry(),
		confirmer: &scriptedConfirmer{answer: ports.AnswerYes},
		tokens:    &fakeIssuer{},
	}
	machine := governance.NewMachine(cfg.coordinator,
		governance.WithLevelObserver(func(l governance.Level) { fix.levels = append(fix.levels, l) }))

	fix.svc, err = authn.New(authn.Deps{
		Engine:    engine,
		Encoder:   enc,
		Binder:    bnd,
		Machine:   machine,
		Snapshots: fix.provider,
		Ledger:    led,
		Validator: fix.validator,
		Registry:  fix.registry,
		Confirmer: fix.confirmer,
		Tokens:    fix.tokens,
	}, cfg.svcOpts...)
	require.NoError(t, err)
	return fix
}

func (f *fixture) request(t *testing.T, segments ...[]float64) authn.Request {
	t.Helper()
	profileID, err := id.ParseProfileID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	f.validator.Register("ada", "correct-horse", profileID)
	if len(segments) == 0 {
		segments = [][]float64{cleanSegment()}
	}
	return authn.Request{
		RequestID:   id.NewRequestID(),
		Profile:     authn.Profile{ID: profileID, Segments: segments},
		Subject:     "ada",
		Secret:      "correct-horse",
		DeviceKnown: true,
	}
}

func (f *fixture) decisions(t *testing.T) []ledger.Record {
	t.Helper()
	records, err := f.ledger.Query(0, 1<<20, ledger.ByType(ledger.EventDecision)).Collect(context.Background())
	require.NoError(t, err)
	return records
}

func (f *fixture) publishThreat(threat governance.ThreatSnapshot) {
	f.provider.Publish(governance.Snapshot{
		Thresholds: governance.DefaultThresholds(),
		Response:   governance.ResponseMaintain,
		Threat:     threat,
	})
}

func requireDenied(t *testing.T, err error, reason authn.DeniedReason) *authn.Denial {
	t.Helper()
	var denial *authn.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, reason, denial.Reason)
	return denial
}

// Scenario: a clean profile under moderate threat scores exactly 96.0, earns
// full access, and the ledger shows every gate up through RIFT_7.
func TestAuthenticate_FullAccess(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	fix.publishThreat(governance.ThreatSnapshot{Level: 2.0})

	session, err := fix.svc.Authenticate(context.Background(), fix.request(t))
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, id.GradeFull, session.Grade)
	assert.InDelta(t, 96.0, session.Score, 1e-9)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, 1, fix.tokens.issued)

	require.Len(t, fix.levels, governance.NumLevels, "all eight gates must run")
	assert.Equal(t, governance.Rift7, fix.levels[len(fix.levels)-1])

	decisions := fix.decisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, "granted", decisions[0].Event.Decision)
	require.NoError(t, fix.ledger.VerifyChain(context.Background(), 0, decisions[0].Sequence+1))
}

// Scenario: entropy deviation 0.5 and threat 3.0 score 90.0, below the
// restricted band. The denial is the score-band compliance failure and
// exactly one decision record lands in the ledger.
func TestAuthenticate_ScoreInsufficient(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	fix.publishThreat(governance.ThreatSnapshot{Level: 3.0, EntropyDeviation: 0.5})

	session, err := fix.svc.Authenticate(context.Background(), fix.request(t))
	require.Nil(t, session)
	denial := requireDenied(t, err, authn.DeniedScoreInsufficient)
	require.NotNil(t, denial.Level)
	assert.Equal(t, governance.Rift6, *denial.Level)
	assert.Equal(t, 0, fix.tokens.issued)

	decisions := fix.decisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, "denied", decisions[0].Event.Decision)
	assert.Equal(t, string(authn.DeniedScoreInsufficient), decisions[0].Event.Reason)
}

// Scenario: the enrollment confirmation times out. The denial is a user
// denial, the profile is not quarantined, and one decision record is logged.
func TestAuthenticate_ConfirmationTimeout(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	fix.confirmer.answer = ports.AnswerTimeout

	req := fix.request(t)
	session, err := fix.svc.Authenticate(context.Background(), req)
	require.Nil(t, session)
	requireDenied(t, err, authn.DeniedUser)

	assert.Equal(t, 1, fix.confirmer.asked)
	assert.False(t, fix.svc.Quarantine().Contains(context.Background(), req.Profile.ID),
		"a user denial must not quarantine the profile")

	decisions := fix.decisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, string(authn.DeniedUser), decisions[0].Event.Reason)
}

// Scenario: ledger storage drops out at the final decision append. Earlier
// stages all succeeded, but no session may be issued.
func TestAuthenticate_LedgerOutageAtCommit(t *testing.T) {
	// A clean single-segment run appends five stage records before the
	// decision; sequence 6 is the commit append.
	store := &faultyStore{Store: memory.New(), failSequence: 6}
	fix := newFixture(t, fixtureConfig{store: store})

	session, err := fix.svc.Authenticate(context.Background(), fix.request(t))
	require.Nil(t, session)
	requireDenied(t, err, authn.DeniedResource)
	assert.Equal(t, 0, fix.tokens.issued)

	stages, qerr := fix.ledger.Query(0, 1<<20, ledger.ByType(ledger.EventStageCompleted)).Collect(context.Background())
	require.NoError(t, qerr)
	assert.Len(t, stages, 5, "all pipeline stages completed before the outage")
	assert.Empty(t, fix.decisions(t))
}

func TestAuthenticate_CredentialsRejected(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	req := fix.request(t)
	req.Secret = "wrong"

	_, err := fix.svc.Authenticate(context.Background(), req)
	requireDenied(t, err, authn.DeniedCredentials)
	assert.Equal(t, 0, fix.confirmer.asked, "denied credentials never reach enrollment")
}

func TestAuthenticate_MalformedProfile(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})

	tests := []struct {
		name     string
		segments [][]float64
	}{
		{"no segments", nil},
		{"wrong dimension count", [][]float64{{0.5, 0.5}}},
		{"feature out of range", [][]float64{{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 1.5}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := fix.request(t)
			req.Profile.Segments = tc.segments
			_, err := fix.svc.Authenticate(context.Background(), req)
			requireDenied(t, err, authn.DeniedInvalidInput)
		})
	}
}

func TestAuthenticate_NoiseEscalatesToManualReview(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})

	session, err := fix.svc.Authenticate(context.Background(), fix.request(t, noisySegment()))
	require.Nil(t, session)
	requireDenied(t, err, authn.DeniedManualReview)
}

// A profile whose derivation no longer matches its registered binding is a
// security violation: the profile is quarantined, the violation is audited,
// and subsequent attempts fail the session-context gate.
func TestAuthenticate_ProfileMismatchQuarantines(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	ctx := context.Background()
	req := fix.request(t)

	// Seed a binding derived from different profile data.
	other, err := lattice.FromFeatures([]float64{0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25})
	require.NoError(t, err)
	bnd, err := binder.New(binderSecret)
	require.NoError(t, err)
	pair, err := bnd.Derive(other)
	require.NoError(t, err)
	require.NoError(t, fix.registry.Register(ctx, ports.ProfileRecord{
		ProfileID: req.Profile.ID,
		Artifact:  pair.Artifact,
		Key:       pair.Key,
	}))

	_, err = fix.svc.Authenticate(ctx, req)
	requireDenied(t, err, authn.DeniedSecurityViolation)
	assert.True(t, fix.svc.Quarantine().Contains(ctx, req.Profile.ID))

	quarantines, err := fix.ledger.Query(0, 1<<20, ledger.ByType(ledger.EventQuarantine)).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, quarantines, 1, "the violation must be audited before surfacing")

	// Second attempt: the quarantine trips the RIFT_5 gate.
	fix.levels = nil
	_, err = fix.svc.Authenticate(ctx, req)
	denial := requireDenied(t, err, authn.DeniedCompliance)
	require.NotNil(t, denial.Level)
	assert.Equal(t, governance.Rift5, *denial.Level)
}

func TestAuthenticate_EnrollmentThenReturningUser(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	ctx := context.Background()
	req := fix.request(t)

	first, err := fix.svc.Authenticate(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, fix.confirmer.asked, "enrollment asks for confirmation once")

	req.RequestID = id.NewRequestID()
	second, err := fix.svc.Authenticate(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, fix.confirmer.asked, "a registered profile is not re-confirmed")
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

type stallingApprover struct{}

func (stallingApprover) Approve(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestAuthenticate_ApprovalTimeoutUnderMaximumOversight(t *testing.T) {
	coordinator, err := governance.NewCoordinator(
		[]governance.Approver{stallingApprover{}, stallingApprover{}}, 2,
		governance.WithApprovalTimeout(50*time.Millisecond))
	require.NoError(t, err)

	fix := newFixture(t, fixtureConfig{coordinator: coordinator})
	fix.provider.Publish(governance.Snapshot{
		Thresholds: governance.DefaultThresholds(),
		Response:   governance.ResponseMaximumOversight,
	})

	_, err = fix.svc.Authenticate(context.Background(), fix.request(t))
	denial := requireDenied(t, err, authn.DeniedCompliance)
	assert.True(t, errors.Is(denial, governance.ErrApprovalTimeout))
}

// Possession of the identity artifact alone must never authorize a session:
// a registry record missing its verification key is treated as a mismatch
// and denied.
func TestAuthenticate_ArtifactAloneIsDenied(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	ctx := context.Background()
	req := fix.request(t)

	bnd, err := binder.New(binderSecret)
	require.NoError(t, err)
	el, err := lattice.FromFeatures(cleanSegment())
	require.NoError(t, err)
	pair, err := bnd.Derive(lattice.NewEngine().Canonicalize(el))
	require.NoError(t, err)
	require.NoError(t, fix.registry.Register(ctx, ports.ProfileRecord{
		ProfileID: req.Profile.ID,
		Artifact:  pair.Artifact,
		// Verification key deliberately absent.
	}))

	session, err := fix.svc.Authenticate(ctx, req)
	require.Nil(t, session)
	requireDenied(t, err, authn.DeniedSecurityViolation)
	assert.Equal(t, 0, fix.tokens.issued)
}

func TestAuthenticate_MultiSegmentRecombination(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})

	session, err := fix.svc.Authenticate(context.Background(), fix.request(t,
		cleanSegment(),
		[]float64{0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25, 0.25},
		[]float64{0.75, 0.75, 0.75, 0.75, 0.75, 0.75, 0.75, 0.75},
	))
	require.NoError(t, err)
	require.NotNil(t, session)
}

func TestAuthenticate_SnapshotPinnedPerRun(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})
	fix.publishThreat(governance.ThreatSnapshot{Level: 2.0})

	session, err := fix.svc.Authenticate(context.Background(), fix.request(t))
	require.NoError(t, err)
	require.NotNil(t, session)

	// The published snapshot is version 2; every record of the run must
	// carry it even though later publishes may race the next attempt.
	records, err := fix.svc.GetAuditRange(context.Background(), 0, 100)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.Equal(t, uint64(2), rec.Snapshot.Version)
	}
}

func TestGetAuditRange(t *testing.T) {
	fix := newFixture(t, fixtureConfig{})

	_, err := fix.svc.Authenticate(context.Background(), fix.request(t))
	require.NoError(t, err)

	records, err := fix.svc.GetAuditRange(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Sequence)
	assert.Equal(t, uint64(2), records[1].Sequence)
}
