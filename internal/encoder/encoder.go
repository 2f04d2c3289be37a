// Package encoder implements the deterministic dual-channel split of a
// canonical lattice element into a signal channel (the result consumed by the
// identity binder) and a residual noise channel retained for forensics or
// reintegration. The split is lossless: Combine(result, residue) reconstructs
// the canonical preimage exactly.
package encoder

import (
	"errors"

	"riftgate/internal/lattice"
	dErrors "riftgate/pkg/domain-errors"
)

// ErrExcessiveNoise reports a decoherence level outside the configured
// tolerance window. Callers may retry a bounded number of times with a fresh
// capture, then must escalate to manual review.
var ErrExcessiveNoise = errors.New("excessive noise")

// Constraints carry the per-attempt encoding policy. They are configuration,
// not constants.
type Constraints struct {
	// Tolerance is the maximum admissible decoherence level (residual noise
	// proportion, 0..1).
	Tolerance float64
	// NegligibleThreshold is the residue magnitude below which the residue is
	// discarded instead of stored.
	NegligibleThreshold float64
}

// DefaultConstraints returns the stock encoding policy.
func DefaultConstraints() Constraints {
	return Constraints{
		Tolerance:           0.25,
		NegligibleThreshold: 0.01,
	}
}

// Output is the dual-channel pair. Result is the canonical signal; Residue is
// everything canonicalization stripped.
type Output struct {
	Result  lattice.Element
	Residue Residue
}

// Residue is the noise channel: the stripped element plus its scalar
// decoherence level relative to the preimage.
type Residue struct {
	Element     lattice.Element
	Decoherence float64
}

// Encoder splits validated elements. It is fully deterministic: identical
// input always yields identical output.
type Encoder struct {
	engine *lattice.Engine
}

// New constructs an encoder over the given canonicalization engine.
func New(engine *lattice.Engine) (*Encoder, error) {
	if engine == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lattice engine is required")
	}
	return &Encoder{engine: engine}, nil
}

// Encode canonicalizes x and separates signal from residue. The decoherence
// level bounds the noise proportion; outside the tolerance window the attempt
// fails with ErrExcessiveNoise and no channels are returned.
func (e *Encoder) Encode(x lattice.Element, constraints Constraints) (Output, error) {
	if x.IsZero() {
		return Output{}, dErrors.New(dErrors.CodeInvalidInput, "cannot encode the zero element")
	}

	result := e.engine.Canonicalize(x)
	residue := lattice.Subtract(x, result)
	decoherence := noiseProportion(x, residue)

	if decoherence > constraints.Tolerance {
		return Output{}, ErrExcessiveNoise
	}

	return Output{
		Result: result,
		Residue: Residue{
			Element:     residue,
			Decoherence: decoherence,
		},
	}, nil
}

// Combine reconstructs the canonical preimage from the two channels. The
// round-trip invariant Combine(Encode(x)) == x holds for every successful
// encoding.
func Combine(result lattice.Element, residue Residue) lattice.Element {
	return lattice.Add(result, residue.Element)
}

// noiseProportion is the residue energy over the preimage energy. The zero
// preimage is rejected before this is ever computed.
func noiseProportion(x, residue lattice.Element) float64 {
	var total, noise uint64
	for i := 0; i < lattice.NumDimensions; i++ {
		total += uint64(x.Dim(i))
		noise += uint64(residue.Dim(i))
	}
	if total == 0 {
		return 0
	}
	return float64(noise) / float64(total)
}
