package governance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"riftgate/internal/governance/metrics"
	id "riftgate/pkg/domain"
)

// Input is everything one gate evaluation may inspect: the recomputed
// compliance vector, the binder's outputs (presence only; the machine never
// touches key material), and session context.
type Input struct {
	RequestID    string
	Vector       Vector
	HasArtifact  bool
	HasKey       bool
	Quarantined  bool
	DeviceKnown  bool
	AuditHealthy bool
}

// Decision is the outcome of a fully passed evaluation. Grade is derived
// from the policy bands of the pinned snapshot.
type Decision struct {
	Grade           id.AccessGrade
	Score           float64
	SnapshotVersion uint64
}

// predicate checks one gate. A nil return passes; a *ComplianceFailure stops
// the machine. Other errors (approval timeout) propagate as-is.
type predicate func(ctx context.Context, snap *Snapshot, in Input) error

// transition is one row of the ordered table.
type transition struct {
	level Level
	name  string
	check predicate
}

// Machine is the explicit finite-state machine over the eight RIFT gates.
// The transition table is fixed and ordered; construction wires the oversight
// coordinator into the final gate.
type Machine struct {
	table    []transition
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observer func(Level)
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = logger }
}

// WithMachineMetrics attaches governance metrics.
func WithMachineMetrics(mx *metrics.Metrics) MachineOption {
	return func(m *Machine) { m.metrics = mx }
}

// WithLevelObserver registers a hook invoked before each gate runs. Tests use
// it to count invocations and prove fail-fast ordering.
func WithLevelObserver(fn func(Level)) MachineOption {
	return func(m *Machine) { m.observer = fn }
}

// NewMachine builds the machine. approvals may be nil only if the deployment
// never enters maximum oversight; passing nil with oversight active fails the
// RIFT_7 gate closed.
func NewMachine(approvals *Coordinator, opts ...MachineOption) *Machine {
	m := &Machine{}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.table = []transition{
		{Rift0, "artifact_separation", checkSeparation},
		{Rift1, "signal_integrity", checkSignalIntegrity},
		{Rift2, "entropy_deviation", checkEntropyDeviation},
		{Rift3, "threat_level", checkThreatLevel},
		{Rift4, "audit_health", checkAuditHealth},
		{Rift5, "session_context", checkSessionContext},
		{Rift6, "score_band", checkScoreBand},
		{Rift7, "oversight", oversightGate(approvals)},
	}
	return m
}

// Evaluate runs the gates strictly in order against one pinned snapshot.
// The first failing gate aborts the run; gates above it are never invoked.
func (m *Machine) Evaluate(ctx context.Context, snap *Snapshot, in Input) (Decision, error) {
	start := time.Now()
	for _, tr := range m.table {
		if m.observer != nil {
			m.observer(tr.level)
		}
		if err := tr.check(ctx, snap, in); err != nil {
			if m.logger != nil {
				m.logger.WarnContext(ctx, "governance gate failed",
					"request_id", in.RequestID,
					"level", tr.level.String(),
					"gate", tr.name,
					"score", in.Vector.Score,
					"snapshot_version", snap.Version,
					"error", err,
				)
			}
			if m.metrics != nil {
				outcome := "failed"
				if errors.Is(err, ErrApprovalTimeout) {
					outcome = "timeout"
				}
				m.metrics.ObserveEvaluation(outcome, float64(time.Since(start).Milliseconds()))
				m.metrics.ObserveGateFailure(tr.level.String())
			}
			return Decision{}, err
		}
	}

	decision := Decision{
		Grade:           gradeFor(in.Vector.Score, snap.Thresholds),
		Score:           in.Vector.Score,
		SnapshotVersion: snap.Version,
	}
	if m.metrics != nil {
		m.metrics.ObserveEvaluation("passed", float64(time.Since(start).Milliseconds()))
	}
	if m.logger != nil {
		m.logger.InfoContext(ctx, "governance evaluation passed",
			"request_id", in.RequestID,
			"grade", decision.Grade.String(),
			"score", decision.Score,
			"snapshot_version", snap.Version,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return decision, nil
}

// gradeFor applies the policy bands to a composite score. Scores below the
// restricted band never reach here; RIFT_6 fails them first.
func gradeFor(score float64, t Thresholds) id.AccessGrade {
	switch {
	case score >= t.FullAccessScore:
		return id.GradeFull
	default:
		return id.GradeRestricted
	}
}

func checkSeparation(_ context.Context, _ *Snapshot, in Input) error {
	// Fail-closed: both halves of the derivation must be present. An identity
	// artifact alone never authorizes anything.
	if !in.HasArtifact || !in.HasKey {
		return &ComplianceFailure{Level: Rift0, Reason: "identity artifact or verification key absent"}
	}
	return nil
}

func checkSignalIntegrity(_ context.Context, _ *Snapshot, in Input) error {
	if in.Vector.Decoherence < 0 || in.Vector.Decoherence > 1 {
		return &ComplianceFailure{Level: Rift1, Reason: "decoherence level outside unit interval"}
	}
	return nil
}

func checkEntropyDeviation(_ context.Context, snap *Snapshot, in Input) error {
	if in.Vector.EntropyDeviation > snap.Thresholds.MaxEntropyDeviation {
		return &ComplianceFailure{Level: Rift2, Reason: "entropy deviation above configured band"}
	}
	return nil
}

func checkThreatLevel(_ context.Context, snap *Snapshot, in Input) error {
	if in.Vector.ThreatLevel > snap.Thresholds.MaxThreatLevel {
		return &ComplianceFailure{Level: Rift3, Reason: "threat level above configured band"}
	}
	return nil
}

func checkAuditHealth(_ context.Context, _ *Snapshot, in Input) error {
	if !in.AuditHealthy {
		return &ComplianceFailure{Level: Rift4, Reason: "audit chain unhealthy"}
	}
	return nil
}

func checkSessionContext(_ context.Context, _ *Snapshot, in Input) error {
	if in.Quarantined {
		return &ComplianceFailure{Level: Rift5, Reason: "identity artifact is quarantined"}
	}
	if !in.DeviceKnown {
		return &ComplianceFailure{Level: Rift5, Reason: "session device context missing"}
	}
	return nil
}

func checkScoreBand(_ context.Context, snap *Snapshot, in Input) error {
	if in.Vector.Score < snap.Thresholds.RestrictedScore {
		return &ComplianceFailure{Level: Rift6, Reason: "governance score insufficient"}
	}
	return nil
}

// oversightGate closes over the approval coordinator. Under maximum oversight
// a quorum of independent approvals must land inside the window; the timeout
// surfaces as ErrApprovalTimeout and the request is cancelled, not retried.
func oversightGate(approvals *Coordinator) predicate {
	return func(ctx context.Context, snap *Snapshot, in Input) error {
		if snap.Response != ResponseMaximumOversight {
			return nil
		}
		if approvals == nil {
			return &ComplianceFailure{Level: Rift7, Reason: "maximum oversight active but no approval coordinator configured"}
		}
		return approvals.Await(ctx, in.RequestID)
	}
}
