// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params implements the randomized parameters of the augmentation nodes.
//
// A Parameter is a scalar value source: Fixed (a constant), Uniform (drawn from an inclusive
// range) or Custom (drawn by a caller supplied function). Parameters that draw random values
// get their random number generator from a Factory.
//
// A BatchArray samples one value per sample slot of a batch, on every Refresh, and mirrors
// them into a device-visible array bound to the node's kernel.
package params

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/gopjrt/dtypes"
)

// Kind of Parameter.
type Kind int

const (
	KindFixed Kind = iota
	KindUniform
	KindCustom
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "Fixed"
	case KindUniform:
		return "Uniform"
	case KindCustom:
		return "Custom"
	default:
		return "Kind(?)"
	}
}

// Parameter is a scalar value source, sampled once per sample slot.
type Parameter[T dtypes.NumberNotComplex] interface {
	// Sample returns one value.
	Sample() T

	// Kind of the parameter.
	Kind() Kind

	// Bounds returns the declared range of the values returned by Sample, if known.
	Bounds() (lo, hi T, ok bool)
}

// draw samples p, checking the declared bounds of parameters that support it (see Custom.CheckedSample).
func draw[T dtypes.NumberNotComplex](p Parameter[T]) (T, error) {
	if checked, ok := p.(interface{ CheckedSample() (T, error) }); ok {
		return checked.CheckedSample()
	}
	return p.Sample(), nil
}

// isFloat returns whether T is a floating point type.
func isFloat[T dtypes.NumberNotComplex]() bool {
	var one T = 1
	return one/2 != 0
}

// isSigned returns whether T is a signed type.
func isSigned[T dtypes.NumberNotComplex]() bool {
	var zero T
	return zero-1 < 0
}

// checkRange returns an errs.ErrInvalidRange error if lo > hi, or either is NaN.
func checkRange[T dtypes.NumberNotComplex](lo, hi T) error {
	if lo > hi || lo != lo || hi != hi {
		return errs.Errorf(errs.ErrInvalidRange, "range [%v, %v]", lo, hi)
	}
	return nil
}

// Fixed is a Parameter that always returns the same value.
type Fixed[T dtypes.NumberNotComplex] struct {
	value T
}

var _ Parameter[float32] = (*Fixed[float32])(nil)

// NewFixed returns a Parameter that always returns value.
func NewFixed[T dtypes.NumberNotComplex](value T) *Fixed[T] {
	return &Fixed[T]{value: value}
}

// Sample implements Parameter.
func (p *Fixed[T]) Sample() T { return p.value }

// Kind implements Parameter.
func (p *Fixed[T]) Kind() Kind { return KindFixed }

// Bounds implements Parameter.
func (p *Fixed[T]) Bounds() (lo, hi T, ok bool) { return p.value, p.value, true }

// Value returns the fixed value.
func (p *Fixed[T]) Value() T { return p.value }

// Uniform is a Parameter drawn uniformly from [lo, hi].
//
// For integer types every value in the inclusive range [lo, hi] can be drawn.
// For floating point types values are drawn from [lo, hi) -- or exactly lo if lo == hi.
type Uniform[T dtypes.NumberNotComplex] struct {
	rng    *rand.Rand
	lo, hi T
}

var _ Parameter[float32] = (*Uniform[float32])(nil)

// NewUniform returns a Parameter drawn uniformly from [lo, hi], using a generator from the factory.
// It fails with errs.ErrInvalidRange if lo > hi.
func NewUniform[T dtypes.NumberNotComplex](f *Factory, lo, hi T) (*Uniform[T], error) {
	p := &Uniform[T]{rng: f.NewRand()}
	if err := p.SetRange(lo, hi); err != nil {
		return nil, err
	}
	return p, nil
}

// SetRange changes the range of values. It takes effect on the next Sample.
// It fails with errs.ErrInvalidRange if lo > hi, in which case the previous range is kept.
func (p *Uniform[T]) SetRange(lo, hi T) error {
	if err := checkRange(lo, hi); err != nil {
		return err
	}
	p.lo, p.hi = lo, hi
	return nil
}

// Kind implements Parameter.
func (p *Uniform[T]) Kind() Kind { return KindUniform }

// Bounds implements Parameter.
func (p *Uniform[T]) Bounds() (lo, hi T, ok bool) { return p.lo, p.hi, true }

// Sample implements Parameter.
func (p *Uniform[T]) Sample() T {
	return sampleUniform(p.rng, p.lo, p.hi)
}

// sampleUniform draws a value from [lo, hi], see Uniform.
func sampleUniform[T dtypes.NumberNotComplex](rng *rand.Rand, lo, hi T) T {
	if lo == hi {
		return lo
	}
	if isFloat[T]() {
		v := T(float64(lo) + rng.Float64()*(float64(hi)-float64(lo)))
		// Rounding to a narrower float type may land outside the range.
		return min(max(v, lo), hi)
	}
	if isSigned[T]() {
		lo64, hi64 := int64(lo), int64(hi)
		span := uint64(hi64) - uint64(lo64)
		if span == math.MaxUint64 {
			return T(int64(rng.Uint64()))
		}
		return T(int64(uint64(lo64) + rng.Uint64N(span+1)))
	}
	lo64, hi64 := uint64(lo), uint64(hi)
	span := hi64 - lo64
	if span == math.MaxUint64 {
		return T(rng.Uint64())
	}
	return T(lo64 + rng.Uint64N(span+1))
}

// Custom is a Parameter drawn by a caller-supplied sampling function.
type Custom[T dtypes.NumberNotComplex] struct {
	rng     *rand.Rand
	fn      func(rng *rand.Rand) T
	lo, hi  T
	bounded bool
}

var _ Parameter[float32] = (*Custom[float32])(nil)

// NewCustom returns a Parameter sampled with fn, which is given a generator from the factory.
func NewCustom[T dtypes.NumberNotComplex](f *Factory, fn func(rng *rand.Rand) T) *Custom[T] {
	return &Custom[T]{rng: f.NewRand(), fn: fn}
}

// NewCustomFromValues returns a Parameter that draws one of the values, with probabilities
// proportional to the frequencies.
//
// It fails with errs.ErrInvalidRange if values is empty, if the lengths don't match, if a frequency is
// negative (or NaN), or if they add up to 0.
func NewCustomFromValues[T dtypes.NumberNotComplex](f *Factory, values []T, frequencies []float64) (*Custom[T], error) {
	if len(values) == 0 || len(values) != len(frequencies) {
		return nil, errs.Errorf(errs.ErrInvalidRange, "%d values with %d frequencies", len(values), len(frequencies))
	}
	cumulative := make([]float64, len(frequencies))
	var total float64
	for ii, freq := range frequencies {
		if !(freq >= 0) || math.IsInf(freq, 0) {
			return nil, errs.Errorf(errs.ErrInvalidRange, "invalid frequency %g for value %v", freq, values[ii])
		}
		total += freq
		cumulative[ii] = total
	}
	if total <= 0 {
		return nil, errs.Errorf(errs.ErrInvalidRange, "frequencies add up to %g", total)
	}
	values = slices.Clone(values)
	p := NewCustom(f, func(rng *rand.Rand) T {
		idx := sort.SearchFloat64s(cumulative, rng.Float64()*total)
		// rng.Float64()*total < total, so idx < len(values) except for rounding.
		return values[min(idx, len(values)-1)]
	})
	p.lo, p.hi, p.bounded = slices.Min(values), slices.Max(values), true
	return p, nil
}

// WithBounds declares the range of values the sampling function returns.
// It fails with errs.ErrInvalidRange if lo > hi.
func (p *Custom[T]) WithBounds(lo, hi T) (*Custom[T], error) {
	if err := checkRange(lo, hi); err != nil {
		return nil, err
	}
	p.lo, p.hi, p.bounded = lo, hi, true
	return p, nil
}

// Kind implements Parameter.
func (p *Custom[T]) Kind() Kind { return KindCustom }

// Bounds implements Parameter. It returns ok=false if no bounds were declared.
func (p *Custom[T]) Bounds() (lo, hi T, ok bool) { return p.lo, p.hi, p.bounded }

// Sample implements Parameter.
func (p *Custom[T]) Sample() T {
	return p.fn(p.rng)
}

// CheckedSample returns a sample, or an errs.ErrInvalidRange error if the sampling function returned a value
// outside the declared bounds.
func (p *Custom[T]) CheckedSample() (T, error) {
	v := p.fn(p.rng)
	if p.bounded && !(v >= p.lo && v <= p.hi) {
		return v, errs.Errorf(errs.ErrInvalidRange, "custom parameter sampled %v, outside of declared bounds [%v, %v]",
			v, p.lo, p.hi)
	}
	return v, nil
}
