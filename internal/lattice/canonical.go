package lattice

import (
	dErrors "riftgate/pkg/domain-errors"
)

// DefaultNoiseBits is the width of the low-order magnitude band treated as
// acquisition noise during canonicalization. The value is policy, not a law of
// the algebra; the encoder widens it when retrying noisy captures.
const DefaultNoiseBits = 6

// Engine canonicalizes elements for a configured noise band. Meet and Join
// are pure package functions; the engine only carries canonicalization policy.
type Engine struct {
	noiseBits uint
}

// Option configures an Engine.
type Option func(*Engine)

// WithNoiseBits overrides the canonicalization noise band width.
func WithNoiseBits(bits uint) Option {
	return func(e *Engine) {
		if bits < 32 {
			e.noiseBits = bits
		}
	}
}

// NewEngine constructs a canonicalization engine with default policy.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{noiseBits: DefaultNoiseBits}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// NoiseBits returns the configured noise band width.
func (e *Engine) NoiseBits() uint { return e.noiseBits }

// Canonicalize strips the identified noise component from x: each dimension
// is floored to its noise-band boundary. The result precedes x in the partial
// order, and the operation is idempotent:
//
//	Canonicalize(Canonicalize(x)) == Canonicalize(x)
func (e *Engine) Canonicalize(x Element) Element {
	return CanonicalizeBits(x, e.noiseBits)
}

// CanonicalizeBits floors every dimension to the boundary of a noise band of
// the given width. Exposed so the encoder can widen the band per retry.
func CanonicalizeBits(x Element, bits uint) Element {
	mask := ^uint32(0) << bits
	var out Element
	for i := range x.dims {
		out.dims[i] = x.dims[i] & mask
	}
	return out
}

// ValidateDistributive checks a∧(b∨c) == (a∧b)∨(a∧c) for the given triple.
// It is mandatory before any transform that combines three or more elements,
// such as profile segment recombination. A failure means the inputs are not
// inside the configured distributive domain.
func ValidateDistributive(a, b, c Element) error {
	left := Meet(a, Join(b, c))
	right := Join(Meet(a, b), Meet(a, c))
	if !left.Equal(right) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"distributive law violated for element triple")
	}
	return nil
}

// Recombine joins profile segments into a single element. With three or more
// segments the distributive check runs first and aborts the attempt on
// failure.
func Recombine(segments []Element) (Element, error) {
	if len(segments) == 0 {
		return Element{}, dErrors.New(dErrors.CodeInvalidInput, "no profile segments to recombine")
	}
	if len(segments) >= 3 {
		if err := ValidateDistributive(segments[0], segments[1], segments[2]); err != nil {
			return Element{}, err
		}
	}
	out := segments[0]
	for _, seg := range segments[1:] {
		out = Join(out, seg)
	}
	return out, nil
}
