// Package lattice implements the canonicalization algebra over cognitive
// profile elements. Elements live in a finite distributive lattice ordered
// componentwise per dimension; meet and join are the algebra the rest of the
// pipeline is built on, and canonicalization strips the identified noise
// component while preserving order structure.
package lattice

import (
	"encoding/binary"
	"math"

	dErrors "riftgate/pkg/domain-errors"
)

const (
	// NumDimensions is the number of ordered cognitive dimensions per element.
	NumDimensions = 8

	// MaxMagnitude bounds each dimension. Values above it violate the
	// configured partial order domain.
	MaxMagnitude = 1 << 20
)

// Element is a value in the profile lattice: one quantized magnitude per
// cognitive dimension. Elements are immutable; operations return new values.
type Element struct {
	dims [NumDimensions]uint32
}

// New validates magnitudes against the domain bound and builds an Element.
// Inputs outside the partial order domain fail with invalid_input.
func New(magnitudes []uint32) (Element, error) {
	if len(magnitudes) != NumDimensions {
		return Element{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"invalid lattice element: expected %d dimensions, got %d", NumDimensions, len(magnitudes))
	}
	var e Element
	for i, m := range magnitudes {
		if m > MaxMagnitude {
			return Element{}, dErrors.Newf(dErrors.CodeInvalidInput,
				"invalid lattice element: dimension %d magnitude %d exceeds domain bound", i, m)
		}
		e.dims[i] = m
	}
	return e, nil
}

// FromFeatures quantizes a normalized feature segment into an Element.
// Features must be finite values in [0,1]; anything else is outside the
// partial order and rejected.
func FromFeatures(features []float64) (Element, error) {
	if len(features) != NumDimensions {
		return Element{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"invalid lattice element: expected %d features, got %d", NumDimensions, len(features))
	}
	magnitudes := make([]uint32, NumDimensions)
	for i, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 1 {
			return Element{}, dErrors.Newf(dErrors.CodeInvalidInput,
				"invalid lattice element: feature %d out of range", i)
		}
		magnitudes[i] = uint32(math.Round(f * MaxMagnitude))
	}
	return New(magnitudes)
}

// Dim returns the magnitude of dimension i.
func (e Element) Dim(i int) uint32 { return e.dims[i] }

// Equal reports componentwise equality.
func (e Element) Equal(other Element) bool { return e.dims == other.dims }

// Leq reports whether e precedes other in the partial order (componentwise).
func (e Element) Leq(other Element) bool {
	for i := range e.dims {
		if e.dims[i] > other.dims[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether every dimension is zero (the lattice bottom).
func (e Element) IsZero() bool { return e == Element{} }

// Bytes returns the canonical big-endian serialization of the element. The
// binder and the ledger both hash this form, so it must stay stable.
func (e Element) Bytes() []byte {
	buf := make([]byte, 4*NumDimensions)
	for i, m := range e.dims {
		binary.BigEndian.PutUint32(buf[4*i:], m)
	}
	return buf
}

// Meet returns the greatest lower bound of a and b (componentwise minimum).
// Commutative, associative, idempotent.
func Meet(a, b Element) Element {
	var out Element
	for i := range out.dims {
		out.dims[i] = min(a.dims[i], b.dims[i])
	}
	return out
}

// Join returns the least upper bound of a and b (componentwise maximum).
// Commutative, associative, idempotent.
func Join(a, b Element) Element {
	var out Element
	for i := range out.dims {
		out.dims[i] = max(a.dims[i], b.dims[i])
	}
	return out
}

// Subtract returns the componentwise difference a-b for a ≥ b. It is the
// residue extraction used by the dual-channel encoder; callers must only pass
// b = Canonicalize-family outputs of a, which are always ≤ a.
func Subtract(a, b Element) Element {
	var out Element
	for i := range out.dims {
		out.dims[i] = a.dims[i] - b.dims[i]
	}
	return out
}

// Add returns the componentwise sum, saturating at the domain bound. It is
// the inverse of Subtract for the encoder's lossless split.
func Add(a, b Element) Element {
	var out Element
	for i := range out.dims {
		sum := uint64(a.dims[i]) + uint64(b.dims[i])
		if sum > MaxMagnitude {
			sum = MaxMagnitude
		}
		out.dims[i] = uint32(sum)
	}
	return out
}
