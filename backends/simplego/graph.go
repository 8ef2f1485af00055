// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph implements backends.Graph: an ordered list of kernel invocations.
type Graph struct {
	backend *Backend
	name    string

	mu          sync.Mutex
	invocations []*Invocation
	finalized   bool
}

var _ backends.Graph = (*Graph)(nil)

// Invocation implements backends.Invocation.
type Invocation struct {
	graph   *Graph
	id      uuid.UUID
	binding backends.Binding
}

var _ backends.Invocation = (*Invocation)(nil)

// ID uniquely identifies the invocation.
func (inv *Invocation) ID() uuid.UUID { return inv.id }

// Kernel returns the type of kernel invoked.
func (inv *Invocation) Kernel() backends.KernelType { return inv.binding.Kernel }

// Release removes the invocation from its graph. It is idempotent.
func (inv *Invocation) Release() error {
	g := inv.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invocations = slices.DeleteFunc(g.invocations, func(other *Invocation) bool { return other == inv })
	return nil
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Backend that owns the graph.
func (g *Graph) Backend() backends.Backend { return g.backend }

// AddKernel validates the binding, checking the buffers dtypes and sizes, and appends a new invocation.
func (g *Graph) AddKernel(binding backends.Binding) (backends.Invocation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finalized {
		return nil, errs.Errorf(errs.ErrAllocation, "graph %q: AddKernel(%s) on a finalized graph", g.name, binding.Kernel)
	}
	if err := binding.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "graph %q", g.name)
	}
	if !Capabilities.Kernels[binding.Kernel] {
		return nil, errs.Errorf(errs.ErrAllocation, "graph %q: kernel %s not supported by backend %q",
			g.name, binding.Kernel, BackendName)
	}
	if err := g.checkBinding(&binding); err != nil {
		return nil, errs.Errorf(errs.ErrAllocation, "graph %q: kernel %s: %v", g.name, binding.Kernel, err)
	}
	binding.Arrays = maps.Clone(binding.Arrays)
	inv := &Invocation{
		graph:   g,
		id:      uuid.New(),
		binding: binding,
	}
	g.invocations = append(g.invocations, inv)
	klog.V(1).Infof("graph %q: added kernel %s (invocation %s)", g.name, binding.Kernel, inv.id)
	return inv, nil
}

// checkBinding verifies the buffers belong to this backend and have the expected dtypes and lengths.
func (g *Graph) checkBinding(binding *backends.Binding) error {
	checkLength := func(what string, buffer backends.Buffer, dtype dtypes.DType, length int) error {
		buf, err := g.backend.checkBuffer(buffer)
		if err != nil {
			return errors.WithMessage(err, what)
		}
		if buf.dtype != dtype || buf.length != length {
			return errors.Errorf("%s: wanted %s[%d], got %s[%d]", what, dtype, length, buf.dtype, buf.length)
		}
		return nil
	}
	src, dst := binding.SrcDesc, binding.DstDesc
	if err := checkLength("source pixels", binding.Src, dtypes.Uint8, src.SampleSize()*src.BatchSize); err != nil {
		return err
	}
	if err := checkLength("destination pixels", binding.Dst, dtypes.Uint8, dst.SampleSize()*dst.BatchSize); err != nil {
		return err
	}
	for _, role := range backends.RequiredRoles(binding.Kernel) {
		length := src.BatchSize
		switch role {
		case backends.RoleDstROIWidth, backends.RoleDstROIHeight, backends.RoleSequenceOrder:
			length = dst.BatchSize
		}
		if err := checkLength(role.String(), binding.Arrays[role], dtypes.Uint32, length); err != nil {
			return err
		}
	}
	switch binding.Kernel {
	case backends.KernelFlip, backends.KernelResizeCrop:
		if src.BatchSize != dst.BatchSize || src.Channels != dst.Channels {
			return errors.Errorf("source %+v and destination %+v must have the same batch size and channels", src, dst)
		}
	case backends.KernelSequenceRearrange:
		if src.Width != dst.Width || src.Height != dst.Height || src.Channels != dst.Channels {
			return errors.Errorf("source %+v and destination %+v must have the same sample geometry", src, dst)
		}
	}
	return nil
}

// Invocations returns the live invocations, in execution order.
func (g *Graph) Invocations() []backends.Invocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	invocations := make([]backends.Invocation, len(g.invocations))
	for ii, inv := range g.invocations {
		invocations[ii] = inv
	}
	return invocations
}

// Execute runs every live invocation once, in order.
//
// Kernel panics are converted to errors, and the context is checked between invocations.
func (g *Graph) Execute(ctx context.Context) error {
	g.mu.Lock()
	if g.finalized {
		g.mu.Unlock()
		return errors.Errorf("graph %q: Execute on a finalized graph", g.name)
	}
	invocations := slices.Clone(g.invocations)
	g.mu.Unlock()

	for _, inv := range invocations {
		if err := ctx.Err(); err != nil {
			return errors.WithMessagef(err, "graph %q interrupted before kernel %s", g.name, inv.binding.Kernel)
		}
		var err error
		if exception := exceptions.TryCatch[error](func() { err = g.executeKernel(ctx, &inv.binding) }); exception != nil {
			err = exception
		}
		if err != nil {
			return errors.WithMessagef(err, "graph %q: kernel %s (invocation %s) failed", g.name, inv.binding.Kernel, inv.id)
		}
	}
	return nil
}

// executeKernel dispatches the binding to its kernel implementation.
func (g *Graph) executeKernel(ctx context.Context, binding *backends.Binding) error {
	switch binding.Kernel {
	case backends.KernelFlip:
		return execFlip(ctx, g.backend, binding)
	case backends.KernelResizeCrop:
		return execResizeCrop(ctx, g.backend, binding)
	case backends.KernelSequenceRearrange:
		return execSequenceRearrange(ctx, g.backend, binding)
	default:
		return errors.Errorf("kernel %s not implemented", binding.Kernel)
	}
}

// Finalize releases all invocations and makes the graph invalid.
func (g *Graph) Finalize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invocations = nil
	g.finalized = true
	return nil
}
