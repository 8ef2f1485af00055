// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	p := NewFixed[float32](0.5)
	for range 10 {
		require.Equal(t, float32(0.5), p.Sample())
	}
	assert.Equal(t, KindFixed, p.Kind())
	lo, hi, ok := p.Bounds()
	assert.True(t, ok)
	assert.Equal(t, lo, hi)
}

func TestUniformInRange(t *testing.T) {
	f := NewFactory(0)
	t.Run("float32", func(t *testing.T) {
		p := must.M1(NewUniform[float32](f, 0.1, 0.3))
		for range 10_000 {
			v := p.Sample()
			require.True(t, v >= 0.1 && v <= 0.3, "sampled %g", v)
		}
	})
	t.Run("uint32", func(t *testing.T) {
		p := must.M1(NewUniform[uint32](f, 0, 1))
		var counts [2]int
		for range 10_000 {
			v := p.Sample()
			require.LessOrEqual(t, v, uint32(1))
			counts[v]++
		}
		// Both ends of the inclusive range are drawn.
		assert.Greater(t, counts[0], 4000)
		assert.Greater(t, counts[1], 4000)
	})
	t.Run("int8 negative", func(t *testing.T) {
		p := must.M1(NewUniform[int8](f, -128, -126))
		seen := map[int8]bool{}
		for range 1000 {
			v := p.Sample()
			require.True(t, v >= -128 && v <= -126, "sampled %d", v)
			seen[v] = true
		}
		assert.Len(t, seen, 3)
	})
	t.Run("full uint64 range", func(t *testing.T) {
		p := must.M1(NewUniform[uint64](f, 0, math.MaxUint64))
		_ = p.Sample()
	})
	t.Run("degenerate range", func(t *testing.T) {
		p := must.M1(NewUniform[float64](f, 2, 2))
		assert.Equal(t, 2.0, p.Sample())
	})
}

func TestUniformSetRange(t *testing.T) {
	f := NewFactory(1)
	_, err := NewUniform[float32](f, 1, 0)
	require.ErrorIs(t, err, errs.ErrInvalidRange)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	p := must.M1(NewUniform[float32](f, 0, 1))
	require.NoError(t, p.SetRange(10, 20))
	for range 100 {
		v := p.Sample()
		require.True(t, v >= 10 && v <= 20)
	}

	// Failed SetRange keeps the previous range.
	require.ErrorIs(t, p.SetRange(5, 4), errs.ErrInvalidRange)
	require.ErrorIs(t, p.SetRange(float32(math.NaN()), 4), errs.ErrInvalidRange)
	lo, hi, _ := p.Bounds()
	assert.Equal(t, float32(10), lo)
	assert.Equal(t, float32(20), hi)
}

func TestFactoryDeterminism(t *testing.T) {
	sample := func(seed uint64) []float64 {
		f := NewFactory(seed)
		p1 := must.M1(NewUniform[float64](f, 0, 1))
		p2 := must.M1(NewUniform[float64](f, 0, 1))
		return []float64{p1.Sample(), p1.Sample(), p2.Sample(), p2.Sample()}
	}
	a, b := sample(7), sample(7)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[:2], a[2:], "parameters of the same factory should have independent streams")
	assert.NotEqual(t, a, sample(8))
	assert.Equal(t, uint64(7), NewFactory(7).Seed())
}

func TestNilFactory(t *testing.T) {
	var f *Factory
	p := must.M1(NewUniform[int32](f, -3, 3))
	for range 100 {
		v := p.Sample()
		require.True(t, v >= -3 && v <= 3, "sampled %d", v)
	}
	c := NewRandomCrop(f)
	area, _, _, _ := c.Params()
	assert.Equal(t, KindUniform, area.Kind())
	assert.Equal(t, 7, NewCustom(f, func(*rand.Rand) int { return 7 }).Sample())
}

func TestCustom(t *testing.T) {
	f := NewFactory(3)
	p := NewCustom(f, func(rng *rand.Rand) int32 { return 5 })
	assert.Equal(t, KindCustom, p.Kind())
	assert.Equal(t, int32(5), p.Sample())
	_, _, ok := p.Bounds()
	assert.False(t, ok)
	v, err := p.CheckedSample()
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)

	p = must.M1(p.WithBounds(0, 3))
	_, err = p.CheckedSample()
	require.ErrorIs(t, err, errs.ErrInvalidRange)

	_, err = p.WithBounds(3, 0)
	require.ErrorIs(t, err, errs.ErrInvalidRange)
}

func TestCustomFromValues(t *testing.T) {
	f := NewFactory(4)
	p := must.M1(NewCustomFromValues(f, []uint32{1, 2, 3}, []float64{1, 0, 3}))
	lo, hi, ok := p.Bounds()
	require.True(t, ok)
	assert.Equal(t, uint32(1), lo)
	assert.Equal(t, uint32(3), hi)

	counts := map[uint32]int{}
	const n = 10_000
	for range n {
		counts[must.M1(p.CheckedSample())]++
	}
	assert.Zero(t, counts[2], "value with frequency 0 should never be drawn")
	assert.InDelta(t, 0.25, float64(counts[1])/n, 0.03)
	assert.InDelta(t, 0.75, float64(counts[3])/n, 0.03)

	for _, tc := range []struct {
		name   string
		values []uint32
		freqs  []float64
	}{
		{"empty", nil, nil},
		{"length mismatch", []uint32{1, 2}, []float64{1}},
		{"negative", []uint32{1, 2}, []float64{1, -1}},
		{"NaN", []uint32{1}, []float64{math.NaN()}},
		{"zero total", []uint32{1, 2}, []float64{0, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCustomFromValues(f, tc.values, tc.freqs)
			require.ErrorIs(t, err, errs.ErrInvalidRange)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Uniform", KindUniform.String())
	assert.Equal(t, "Kind(?)", Kind(17).String())
}
