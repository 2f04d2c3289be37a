package authn

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"riftgate/internal/authn/metrics"
	"riftgate/internal/authn/ports"
	"riftgate/internal/binder"
	"riftgate/internal/encoder"
	"riftgate/internal/governance"
	"riftgate/internal/lattice"
	"riftgate/internal/ledger"
	id "riftgate/pkg/domain"
	dErrors "riftgate/pkg/domain-errors"
	"riftgate/pkg/platform/sentinel"
)

const (
	// DefaultEncodeRetries bounds re-encoding of noisy input before the
	// attempt escalates to manual review.
	DefaultEncodeRetries = 3
	// DefaultAuditRetries bounds audit writes on the security-violation path
	// before the failure becomes fatal.
	DefaultAuditRetries = 3
	// DefaultConfirmTimeout bounds the user confirmation prompt.
	DefaultConfirmTimeout = 30 * time.Second
	// DefaultSessionTTL is the issued session lifetime.
	DefaultSessionTTL = 15 * time.Minute
)

// Deps are the required collaborators of the pipeline service.
type Deps struct {
	Engine    *lattice.Engine
	Encoder   *encoder.Encoder
	Binder    *binder.Binder
	Machine   *governance.Machine
	Snapshots *governance.Provider
	Ledger    *ledger.Ledger
	Validator ports.CredentialValidator
	Registry  ports.ProfileRegistry
	Confirmer ports.Confirmer
	Tokens    ports.TokenIssuer
}

// Service runs the five-stage authentication pipeline. Attempts are
// independent and safely concurrent; within one attempt the stages are a
// strict sequence, each consuming the previous stage's output under a single
// pinned governance snapshot.
type Service struct {
	deps       Deps
	quarantine *Quarantine

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	constraints    encoder.Constraints
	encodeRetries  int
	auditRetries   int
	confirmTimeout time.Duration
	sessionTTL     time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func WithQuarantine(q *Quarantine) Option {
	return func(s *Service) {
		if q != nil {
			s.quarantine = q
		}
	}
}

func WithConstraints(c encoder.Constraints) Option {
	return func(s *Service) { s.constraints = c }
}

func WithEncodeRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.encodeRetries = n
		}
	}
}

func WithAuditRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.auditRetries = n
		}
	}
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmTimeout = d
		}
	}
}

func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Engine == nil, deps.Encoder == nil, deps.Binder == nil,
		deps.Machine == nil, deps.Snapshots == nil, deps.Ledger == nil:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pipeline stages are required")
	case deps.Validator == nil, deps.Registry == nil, deps.Confirmer == nil, deps.Tokens == nil:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pipeline collaborators are required")
	}

	s := &Service{
		deps:           deps,
		quarantine:     NewQuarantine(),
		logger:         slog.Default(),
		tracer:         otel.Tracer("riftgate/internal/authn"),
		constraints:    encoder.DefaultConstraints(),
		encodeRetries:  DefaultEncodeRetries,
		auditRetries:   DefaultAuditRetries,
		confirmTimeout: DefaultConfirmTimeout,
		sessionTTL:     DefaultSessionTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Quarantine exposes the isolation list for the admin surface.
func (s *Service) Quarantine() *Quarantine { return s.quarantine }

// Authenticate runs one attempt through the full pipeline and returns an
// issued session or a *Denial. The governance snapshot is pinned once at
// entry; threshold updates published mid-flight never affect this run. The
// final decision append is the commit point: a session token is issued only
// after that record is durably committed.
func (s *Service) Authenticate(ctx context.Context, req Request) (*Session, error) {
	if req.RequestID.IsNil() {
		req.RequestID = id.NewRequestID()
	}
	reqID := req.RequestID.String()

	ctx, span := s.tracer.Start(ctx, "authn.authenticate", trace.WithAttributes(
		attribute.String("request_id", reqID),
		attribute.String("profile_id", req.Profile.ID.String()),
	))
	defer span.End()

	snap := s.deps.Snapshots.Current()
	logger := s.logger.With("request_id", reqID, "profile_id", req.Profile.ID.String())

	session, err := s.run(ctx, req, snap, logger)
	if err != nil {
		var denial *Denial
		if errors.As(err, &denial) {
			s.metrics.ObserveDenied(string(denial.Reason))
			logger.WarnContext(ctx, "authentication denied",
				"reason", string(denial.Reason),
				"detail", denial.Message,
			)
			return nil, denial
		}
		s.metrics.ObserveDenied(string(DeniedResource))
		return nil, err
	}

	s.metrics.ObserveGranted()
	logger.InfoContext(ctx, "authentication granted",
		"session_id", session.SessionID.String(),
		"grade", session.Grade.String(),
		"score", session.Score,
		"snapshot_version", snap.Version,
	)
	return session, nil
}

func (s *Service) run(ctx context.Context, req Request, snap *governance.Snapshot, logger *slog.Logger) (*Session, error) {
	reqID := req.RequestID.String()
	profileID := req.Profile.ID.String()

	// Evidence gathering: credential validation and the registry lookup have
	// no data dependency, so they run in parallel ahead of the pipeline.
	var identity ports.Identity
	var existing *ports.ProfileRecord

	gatherCtx, gatherDone := s.stage(ctx, "credentials")
	g, gctx := errgroup.WithContext(gatherCtx)
	g.Go(func() error {
		ident, err := s.deps.Validator.Validate(gctx, ports.Credentials{Subject: req.Subject, Secret: req.Secret})
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
				return denyWith(DeniedCredentials, "credential validation rejected", err)
			}
			return denyWith(DeniedResource, "credential validator unavailable", err)
		}
		identity = ident
		return nil
	})
	g.Go(func() error {
		rec, err := s.deps.Registry.Lookup(gctx, req.Profile.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return denyWith(DeniedResource, "profile registry unavailable", err)
		}
		existing = rec
		return nil
	})
	err := g.Wait()
	gatherDone()
	if err != nil {
		return nil, s.refuse(ctx, req, snap, "credentials", asDenial(err))
	}
	if !identity.ProfileID.IsNil() && identity.ProfileID != req.Profile.ID {
		return nil, s.securityViolation(ctx, req, snap, "credentials", "validated identity does not match presented profile")
	}
	if err := s.recordStage(ctx, reqID, profileID, "credentials", snap); err != nil {
		return nil, err
	}

	// Lattice canonicalization. Multi-segment profiles must satisfy the
	// distributive law before recombination.
	_, latticeDone := s.stage(ctx, "lattice")
	raw, err := s.assemble(req.Profile)
	latticeDone()
	if err != nil {
		var denial *Denial
		if errors.As(err, &denial) && denial.Reason == DeniedSecurityViolation {
			return nil, s.securityViolation(ctx, req, snap, "lattice", denial.Message)
		}
		return nil, s.refuse(ctx, req, snap, "lattice", asDenial(err))
	}
	if err := s.recordStage(ctx, reqID, profileID, "lattice", snap); err != nil {
		return nil, err
	}

	// Dual-channel encode with a bounded number of retries. Encoding is
	// deterministic, so retrying only matters when the capture layer
	// refreshes segments between attempts; a fixed profile fails each
	// attempt identically and escalates to manual review.
	encodeCtx, encodeDone := s.stage(ctx, "encode")
	var out encoder.Output
	for attempt := 1; ; attempt++ {
		out, err = s.deps.Encoder.Encode(raw, s.constraints)
		if err == nil {
			break
		}
		if !errors.Is(err, encoder.ErrExcessiveNoise) {
			encodeDone()
			return nil, s.refuse(ctx, req, snap, "encode", denyWith(DeniedInvalidInput, "profile rejected by encoder", err))
		}
		if attempt >= s.encodeRetries {
			encodeDone()
			logger.WarnContext(encodeCtx, "encode retries exhausted", "attempts", attempt)
			return nil, s.refuse(ctx, req, snap, "encode", denyWith(DeniedManualReview, "noise level outside tolerance after bounded retries", err))
		}
	}
	encodeDone()
	if err := s.recordStage(ctx, reqID, profileID, "encode", snap); err != nil {
		return nil, err
	}
	if err := s.retainResidue(ctx, req, snap, out.Residue); err != nil {
		return nil, err
	}

	// Identity binding. Both halves of the derivation must exist before
	// governance sees the attempt; a missing half is fail-closed.
	_, bindDone := s.stage(ctx, "bind")
	pair, err := s.deps.Binder.Derive(out.Result)
	bindDone()
	if err != nil {
		return nil, s.refuse(ctx, req, snap, "bind", denyWith(DeniedInvalidInput, "identity derivation failed", err))
	}
	existing, err = s.register(ctx, req, existing, pair)
	if err != nil {
		var denial *Denial
		if errors.As(err, &denial) && denial.Reason == DeniedSecurityViolation {
			return nil, s.securityViolation(ctx, req, snap, "bind", denial.Message)
		}
		return nil, s.refuse(ctx, req, snap, "bind", asDenial(err))
	}
	if err := s.recordStage(ctx, reqID, profileID, "bind", snap); err != nil {
		return nil, err
	}

	// Governance evaluation against the pinned snapshot.
	govCtx, govDone := s.stage(ctx, "governance")
	auditHealthy := s.deps.Ledger.Healthy(govCtx)
	vec := governance.ComputeVector(out.Residue.Decoherence, auditHealthy, snap)
	decision, err := s.deps.Machine.Evaluate(govCtx, snap, governance.Input{
		RequestID:    reqID,
		Vector:       vec,
		HasArtifact:  !pair.Artifact.IsZero(),
		HasKey:       !pair.Key.IsZero(),
		Quarantined:  s.quarantine.Contains(govCtx, req.Profile.ID),
		DeviceKnown:  req.DeviceKnown,
		AuditHealthy: auditHealthy,
	})
	govDone()
	if err != nil {
		var cf *governance.ComplianceFailure
		switch {
		case errors.As(err, &cf):
			return nil, s.refuse(ctx, req, snap, "governance", denyCompliance(cf))
		case errors.Is(err, governance.ErrApprovalTimeout):
			return nil, s.refuse(ctx, req, snap, "governance", denyWith(DeniedCompliance, "multi-party approval window elapsed", err))
		default:
			return nil, s.refuse(ctx, req, snap, "governance", denyWith(DeniedResource, "governance evaluation failed", err))
		}
	}
	if err := s.recordStage(ctx, reqID, profileID, "governance", snap); err != nil {
		return nil, err
	}

	// Commit point. Once the decision append begins the attempt is no longer
	// cancellable; the token is minted only after the record is durable.
	commitCtx := context.WithoutCancel(ctx)
	_, err = s.deps.Ledger.Append(commitCtx, ledger.Event{
		Type:      ledger.EventDecision,
		RequestID: reqID,
		ProfileID: profileID,
		Decision:  "granted",
	}, ledger.Snapshot{Version: snap.Version, Score: decision.Score})
	if err != nil {
		return nil, denyWith(DeniedResource, "decision record could not be committed", err)
	}

	sessionID := id.NewSessionID()
	token, err := s.deps.Tokens.Issue(commitCtx, req.Profile.ID, sessionID, decision.Grade, s.sessionTTL)
	if err != nil {
		return nil, denyWith(DeniedResource, "session token issuance failed", err)
	}
	return &Session{
		Token:     token,
		SessionID: sessionID,
		ProfileID: req.Profile.ID,
		Grade:     decision.Grade,
		Score:     decision.Score,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}, nil
}

// GetAuditRange reads committed records for from <= sequence < to.
func (s *Service) GetAuditRange(ctx context.Context, from, to uint64) ([]ledger.Record, error) {
	return s.deps.Ledger.Query(from, to, nil).Collect(ctx)
}

// assemble converts raw profile segments into one canonical-ready element.
func (s *Service) assemble(profile Profile) (lattice.Element, error) {
	if profile.ID.IsNil() {
		return lattice.Element{}, deny(DeniedInvalidInput, "profile id is required")
	}
	if len(profile.Segments) == 0 {
		return lattice.Element{}, deny(DeniedInvalidInput, "profile has no segments")
	}

	elems := make([]lattice.Element, 0, len(profile.Segments))
	for i, seg := range profile.Segments {
		el, err := lattice.FromFeatures(seg)
		if err != nil {
			return lattice.Element{}, denyWith(DeniedInvalidInput, "segment "+strconv.Itoa(i)+" is not a valid lattice element", err)
		}
		elems = append(elems, el)
	}

	if len(elems) < 3 {
		combined := elems[0]
		for _, el := range elems[1:] {
			combined = lattice.Join(combined, el)
		}
		return combined, nil
	}

	combined, err := lattice.Recombine(elems)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return lattice.Element{}, denyWith(DeniedSecurityViolation, "profile recombination violates the distributive law", err)
		}
		return lattice.Element{}, denyWith(DeniedInvalidInput, "profile recombination failed", err)
	}
	return combined, nil
}

// register resolves the binding against the registry. New profiles need the
// user's confirmation first; a concurrent registration is resolved by
// re-reading. The returned record, when non-nil, has been verified to match
// the derived pair in constant time.
func (s *Service) register(ctx context.Context, req Request, existing *ports.ProfileRecord, pair binder.Pair) (*ports.ProfileRecord, error) {
	if existing == nil {
		answer, err := s.deps.Confirmer.Ask(ctx, "register new cognitive profile "+req.Profile.ID.String(), s.confirmTimeout)
		if err != nil {
			return nil, denyWith(DeniedResource, "confirmation prompt unavailable", err)
		}
		if answer != ports.AnswerYes {
			return nil, deny(DeniedUser, "enrollment not confirmed: "+string(answer))
		}

		rec := ports.ProfileRecord{
			ProfileID:    req.Profile.ID,
			Artifact:     pair.Artifact,
			Key:          pair.Key,
			RegisteredAt: time.Now().UTC(),
		}
		err = s.deps.Registry.Register(ctx, rec)
		if err == nil {
			return &rec, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, denyWith(DeniedResource, "profile registration failed", err)
		}
		existing, err = s.deps.Registry.Lookup(ctx, req.Profile.ID)
		if err != nil {
			return nil, denyWith(DeniedResource, "profile registry unavailable", err)
		}
	}

	if !existing.Artifact.Equal(pair.Artifact) || !existing.Key.Equal(pair.Key) {
		return nil, deny(DeniedSecurityViolation, "derived identity does not match the registered profile")
	}
	return existing, nil
}

// retainResidue applies the disposition policy to the noise residue. Stored
// and reintegration-authorized residues land in the ledger for forensics.
func (s *Service) retainResidue(ctx context.Context, req Request, snap *governance.Snapshot, residue encoder.Residue) error {
	disp := encoder.DispositionFor(residue, s.constraints, snap.Thresholds.AuthorizeReintegration)
	if disp == encoder.DispositionDiscard {
		return nil
	}
	_, err := s.deps.Ledger.Append(ctx, ledger.Event{
		Type:      ledger.EventResidueStored,
		RequestID: req.RequestID.String(),
		ProfileID: req.Profile.ID.String(),
		Reason:    string(disp),
	}, ledger.Snapshot{Version: snap.Version})
	if err != nil {
		return denyWith(DeniedResource, "residue retention could not be audited", err)
	}
	return nil
}

// recordStage commits a stage-completed record. An append failure fails the
// whole attempt closed.
func (s *Service) recordStage(ctx context.Context, reqID, profileID, stage string, snap *governance.Snapshot) error {
	_, err := s.deps.Ledger.Append(ctx, ledger.Event{
		Type:      ledger.EventStageCompleted,
		RequestID: reqID,
		ProfileID: profileID,
		Stage:     stage,
	}, ledger.Snapshot{Version: snap.Version})
	if err != nil {
		return denyWith(DeniedResource, "stage record could not be committed", err)
	}
	return nil
}

// refuse audits a denial (stage failure plus the decision record) and
// returns it. Resource denials skip the audit writes: the ledger is the
// failing resource on that path.
func (s *Service) refuse(ctx context.Context, req Request, snap *governance.Snapshot, stage string, d *Denial) error {
	if d.Reason == DeniedResource {
		return d
	}
	reqID := req.RequestID.String()
	profileID := req.Profile.ID.String()

	// The failure and the decision are one audit fact; over a transactional
	// store they commit or roll back together.
	if _, err := s.deps.Ledger.AppendAll(ctx, []ledger.Event{
		{
			Type:      ledger.EventStageFailed,
			RequestID: reqID,
			ProfileID: profileID,
			Stage:     stage,
			Reason:    d.Message,
		},
		{
			Type:      ledger.EventDecision,
			RequestID: reqID,
			ProfileID: profileID,
			Decision:  "denied",
			Reason:    string(d.Reason),
		},
	}, ledger.Snapshot{Version: snap.Version}); err != nil {
		return denyWith(DeniedResource, "denial could not be audited", err)
	}
	return d
}

// securityViolation quarantines the profile and audits the violation before
// surfacing it. The audit write gets a bounded retry; exhausting it is fatal
// for the attempt and surfaces as a resource failure.
func (s *Service) securityViolation(ctx context.Context, req Request, snap *governance.Snapshot, stage, reason string) error {
	s.quarantine.Add(ctx, req.Profile.ID, req.RequestID.String(), reason)
	s.metrics.ObserveQuarantine()

	event := ledger.Event{
		Type:      ledger.EventQuarantine,
		RequestID: req.RequestID.String(),
		ProfileID: req.Profile.ID.String(),
		Stage:     stage,
		Reason:    reason,
	}
	var lastErr error
	for attempt := 0; attempt < s.auditRetries; attempt++ {
		if _, lastErr = s.deps.Ledger.Append(ctx, event, ledger.Snapshot{Version: snap.Version}); lastErr == nil {
			return s.refuse(ctx, req, snap, stage, deny(DeniedSecurityViolation, reason))
		}
	}
	return denyWith(DeniedResource, "security violation could not be audited", lastErr)
}

// stage opens a pipeline-stage span and returns a closer that also records
// the stage latency.
func (s *Service) stage(ctx context.Context, name string) (context.Context, func()) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "authn."+name)
	return ctx, func() {
		span.End()
		s.metrics.ObserveStage(name, time.Since(start))
	}
}

func asDenial(err error) *Denial {
	var denial *Denial
	if errors.As(err, &denial) {
		return denial
	}
	return denyWith(DeniedResource, "pipeline failure", err)
}
