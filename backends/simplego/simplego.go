// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable backend for the
// augmentation graph.
//
// Buffers live in Go memory, and the kernels are implemented with github.com/disintegration/imaging,
// working one sample at a time, with the samples of a batch processed in parallel.
//
// Configuration (after "go:" in AUGMENT_BACKEND) is a comma-separated list of options:
//
//   - "parallelism=N": maximum number of samples processed concurrently by one kernel.
//     0 (or negative) means runtime.NumCPU(). 1 means sequential execution.
package simplego

import (
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/errs"
)

// BackendName to be used in AUGMENT_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the constructor for the "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend, from the given configuration.
func New(config string) (backends.Backend, error) {
	b := newBackend()
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "parallelism":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, errs.Errorf(errs.ErrConfiguration, "backend %q: invalid parallelism %q", BackendName, value)
			}
			if n > 0 {
				b.parallelism = n
			}
		default:
			return nil, errs.Errorf(errs.ErrConfiguration, "backend %q: unknown configuration option %q", BackendName, option)
		}
	}
	return b, nil
}

func newBackend() *Backend {
	return &Backend{parallelism: runtime.NumCPU()}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	// bufferPools are a map to pools of buffers that can be reused.
	// The underlying type is map[bufferPoolKey]*sync.Pool.
	bufferPools sync.Map

	// parallelism is the limit of samples processed concurrently by a kernel.
	parallelism int

	mu        sync.Mutex
	finalized bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return "SimpleGo (go)"
}

// String implement backends.Backend.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend"
}

// NumDevices return the number of devices available for this Backend.
func (b *Backend) NumDevices() backends.DeviceNum {
	return 1
}

// Parallelism returns the maximum number of samples processed concurrently by one kernel.
func (b *Backend) Parallelism() int {
	return b.parallelism
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities
}

// NewGraph creates a new empty graph.
func (b *Backend) NewGraph(name string) backends.Graph {
	return &Graph{
		backend: b,
		name:    name,
	}
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = true
	b.bufferPools.Clear()
}

// IsFinalized returns true if the backend was finalized.
func (b *Backend) IsFinalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}
