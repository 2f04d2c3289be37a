package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "riftgate/pkg/domain"
)

func passingInput() Input {
	return Input{
		RequestID: "req-1",
		Vector: Vector{
			EntropyDeviation: 0.2,
			ThreatLevel:      1.0,
			AuditHealth:      1.0,
			Decoherence:      0.01,
			Score:            96.0,
		},
		HasArtifact:  true,
		HasKey:       true,
		DeviceKnown:  true,
		AuditHealthy: true,
	}
}

func defaultSnapshot() *Snapshot {
	return &Snapshot{
		Version:    1,
		Thresholds: DefaultThresholds(),
		Response:   ResponseMaintain,
	}
}

func TestEvaluate_AllGatesPass(t *testing.T) {
	var visited []Level
	m := NewMachine(nil, WithLevelObserver(func(l Level) { visited = append(visited, l) }))

	decision, err := m.Evaluate(context.Background(), defaultSnapshot(), passingInput())
	require.NoError(t, err)

	assert.Equal(t, id.GradeFull, decision.Grade)
	assert.Equal(t, 96.0, decision.Score)
	assert.Equal(t, []Level{Rift0, Rift1, Rift2, Rift3, Rift4, Rift5, Rift6, Rift7}, visited,
		"gates must run exactly once each, strictly in order")
}

// TestEvaluate_FailFast proves via invocation counting that when level k
// fails, no level above k is ever evaluated.
func TestEvaluate_FailFast(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Input)
		failLevel Level
	}{
		{"missing key fails RIFT_0", func(in *Input) { in.HasKey = false }, Rift0},
		{"missing artifact fails RIFT_0", func(in *Input) { in.HasArtifact = false }, Rift0},
		{"corrupt decoherence fails RIFT_1", func(in *Input) { in.Vector.Decoherence = 1.5 }, Rift1},
		{"entropy deviation fails RIFT_2", func(in *Input) { in.Vector.EntropyDeviation = 9 }, Rift2},
		{"threat level fails RIFT_3", func(in *Input) { in.Vector.ThreatLevel = 9.5 }, Rift3},
		{"audit health fails RIFT_4", func(in *Input) { in.AuditHealthy = false }, Rift4},
		{"quarantine fails RIFT_5", func(in *Input) { in.Quarantined = true }, Rift5},
		{"unknown device fails RIFT_5", func(in *Input) { in.DeviceKnown = false }, Rift5},
		{"low score fails RIFT_6", func(in *Input) { in.Vector.Score = 90.0 }, Rift6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			counts := make(map[Level]int)
			m := NewMachine(nil, WithLevelObserver(func(l Level) { counts[l]++ }))

			in := passingInput()
			tc.mutate(&in)

			_, err := m.Evaluate(context.Background(), defaultSnapshot(), in)
			require.Error(t, err)

			var failure *ComplianceFailure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, tc.failLevel, failure.Level)
			assert.NotEmpty(t, failure.Reason)

			for l := Level(0); l <= tc.failLevel; l++ {
				assert.Equal(t, 1, counts[l], "level %s must run exactly once", l)
			}
			for l := tc.failLevel + 1; l < NumLevels; l++ {
				assert.Zero(t, counts[l], "level %s must never run after a failure below it", l)
			}
		})
	}
}

func TestEvaluate_ScoreBands(t *testing.T) {
	m := NewMachine(nil)
	snap := defaultSnapshot()

	t.Run("score at full band grants full access", func(t *testing.T) {
		in := passingInput()
		in.Vector.Score = 95.0
		decision, err := m.Evaluate(context.Background(), snap, in)
		require.NoError(t, err)
		assert.Equal(t, id.GradeFull, decision.Grade)
	})

	t.Run("score inside restricted band grants restricted access", func(t *testing.T) {
		in := passingInput()
		in.Vector.Score = 93.0
		decision, err := m.Evaluate(context.Background(), snap, in)
		require.NoError(t, err)
		assert.Equal(t, id.GradeRestricted, decision.Grade)
	})

	t.Run("score below restricted band fails RIFT_6", func(t *testing.T) {
		in := passingInput()
		in.Vector.Score = 92.49
		_, err := m.Evaluate(context.Background(), snap, in)
		var failure *ComplianceFailure
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, Rift6, failure.Level)
	})
}

// scriptedApprover answers with a fixed verdict after an optional delay.
type scriptedApprover struct {
	approve bool
	delay   time.Duration
}

func (a *scriptedApprover) Approve(ctx context.Context, _ string) (bool, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	return a.approve, nil
}

func TestOversightGate(t *testing.T) {
	oversight := func() *Snapshot {
		snap := defaultSnapshot()
		snap.Response = ResponseMaximumOversight
		return snap
	}

	t.Run("skipped outside maximum oversight", func(t *testing.T) {
		m := NewMachine(nil)
		_, err := m.Evaluate(context.Background(), defaultSnapshot(), passingInput())
		require.NoError(t, err)
	})

	t.Run("quorum reached passes", func(t *testing.T) {
		coordinator, err := NewCoordinator([]Approver{
			&scriptedApprover{approve: true},
			&scriptedApprover{approve: true},
			&scriptedApprover{approve: false},
		}, 2)
		require.NoError(t, err)

		m := NewMachine(coordinator)
		decision, err := m.Evaluate(context.Background(), oversight(), passingInput())
		require.NoError(t, err)
		assert.Equal(t, id.GradeFull, decision.Grade)
	})

	t.Run("quorum not reached fails RIFT_7", func(t *testing.T) {
		coordinator, err := NewCoordinator([]Approver{
			&scriptedApprover{approve: true},
			&scriptedApprover{approve: false},
			&scriptedApprover{approve: false},
		}, 2)
		require.NoError(t, err)

		m := NewMachine(coordinator)
		_, err = m.Evaluate(context.Background(), oversight(), passingInput())
		var failure *ComplianceFailure
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, Rift7, failure.Level)
	})

	t.Run("window expiry surfaces approval timeout", func(t *testing.T) {
		coordinator, err := NewCoordinator([]Approver{
			&scriptedApprover{approve: true, delay: time.Second},
		}, 1, WithApprovalTimeout(20*time.Millisecond))
		require.NoError(t, err)

		m := NewMachine(coordinator)
		_, err = m.Evaluate(context.Background(), oversight(), passingInput())
		require.ErrorIs(t, err, ErrApprovalTimeout)
	})

	t.Run("caller cancellation is not an approval timeout", func(t *testing.T) {
		coordinator, err := NewCoordinator([]Approver{
			&scriptedApprover{approve: true, delay: time.Second},
		}, 1, WithApprovalTimeout(time.Minute))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		m := NewMachine(coordinator)
		_, err = m.Evaluate(ctx, oversight(), passingInput())
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrApprovalTimeout)
	})

	t.Run("oversight without coordinator fails closed", func(t *testing.T) {
		m := NewMachine(nil)
		_, err := m.Evaluate(context.Background(), oversight(), passingInput())
		var failure *ComplianceFailure
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, Rift7, failure.Level)
	})
}

func TestNewCoordinator_Invariants(t *testing.T) {
	t.Run("zero quorum rejected", func(t *testing.T) {
		_, err := NewCoordinator([]Approver{&scriptedApprover{}}, 0)
		require.Error(t, err)
	})

	t.Run("quorum above approver count rejected", func(t *testing.T) {
		_, err := NewCoordinator([]Approver{&scriptedApprover{}}, 2)
		require.Error(t, err)
	})
}
