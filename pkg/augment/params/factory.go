// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"math/rand/v2"
	"sync"
)

// Factory is the random distribution source: it hands out independent random number generators
// to the parameters created from it.
//
// Each generator is a PCG stream seeded with the factory seed and a per-factory sequence number,
// so two factories with the same seed, used to create the same parameters in the same order,
// produce the same samples.
//
// A Factory is passed explicitly to whatever creates parameters -- there is no global factory.
type Factory struct {
	seed uint64

	mu      sync.Mutex
	streams uint64
}

// NewFactory returns a Factory with the given seed.
func NewFactory(seed uint64) *Factory {
	return &Factory{seed: seed}
}

// NewRandomFactory returns a Factory with a random seed.
func NewRandomFactory() *Factory {
	return NewFactory(rand.Uint64())
}

// Seed used by the factory.
func (f *Factory) Seed() uint64 {
	return f.seed
}

// NewRand returns a new random number generator, independent of the previous ones.
//
// A nil Factory hands out randomly seeded generators.
func (f *Factory) NewRand() *rand.Rand {
	if f == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams++
	return rand.New(rand.NewPCG(f.seed, f.streams))
}
