package governance

import "time"

// ThreatSnapshot is the periodic input from the external risk-assessment
// feed.
type ThreatSnapshot struct {
	// Level is the reported threat level, 0 (quiet) to 10 (active incident).
	Level float64
	// EntropyDeviation is the rolling deviation of profile entropy from the
	// population baseline.
	EntropyDeviation float64
	// ObservedAt is when the feed produced this reading.
	ObservedAt time.Time
}

// Vector is the multidimensional compliance score recomputed for every
// operation. The composite Score drives the policy bands; the individual
// components drive their own gates.
type Vector struct {
	EntropyDeviation float64
	ThreatLevel      float64
	AuditHealth      float64 // 1.0 healthy, 0.0 chain unverifiable
	Decoherence      float64 // residual noise proportion of this attempt
	Score            float64 // composite, 0..100
}

// ComputeVector folds the pinned snapshot's threat reading and the attempt's
// own decoherence and audit health into a compliance vector. The weights are
// policy; the formula is deterministic so identical inputs always score the
// same.
func ComputeVector(decoherence float64, auditHealthy bool, snap *Snapshot) Vector {
	v := Vector{
		EntropyDeviation: snap.Threat.EntropyDeviation,
		ThreatLevel:      snap.Threat.Level,
		Decoherence:      decoherence,
	}
	if auditHealthy {
		v.AuditHealth = 1.0
	}

	score := 100.0
	score -= 8.0 * v.EntropyDeviation
	score -= 2.0 * v.ThreatLevel
	score -= 15.0 * (1.0 - v.AuditHealth)
	score -= 20.0 * v.Decoherence
	if score < 0 {
		score = 0
	}
	v.Score = score
	return v
}
