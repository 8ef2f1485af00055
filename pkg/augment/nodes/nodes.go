// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nodes implements the augmentation nodes: transform stages with a build/refresh lifecycle,
// each bound to exactly one kernel invocation of a backends.Graph.
//
// The lifecycle of every Node is:
//
//  1. Creation and configuration (the node's Init methods), at pipeline assembly time.
//  2. Build, once: allocates the node's device arrays and binds its kernel invocation. A failed Build
//     releases whatever was allocated and leaves the node unbuilt. A second Build is a no-op.
//  3. Refresh, once per batch, before the graph is executed: re-samples the node's random parameters,
//     uploads them, and propagates the per-sample ROI to the output batch.
//  4. Finalize: releases the device arrays and the kernel invocation together.
//
// Nodes don't own their input and output batches: they must outlive the node.
package nodes

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Node is one transform stage of the pipeline.
type Node interface {
	// Name of the node, for debugging.
	Name() string

	// Kernel invoked by the node.
	Kernel() backends.KernelType

	// Inputs returns the batches read by the node.
	Inputs() []*images.Batch

	// Outputs returns the batches written by the node.
	Outputs() []*images.Batch

	// Build allocates the node's device arrays and adds its kernel invocation to graph.
	// A second call is a no-op.
	Build(graph backends.Graph) error

	// IsBuilt returns whether Build succeeded.
	IsBuilt() bool

	// Refresh prepares the node for the next batch. It fails with errs.ErrNotBuilt before Build.
	Refresh() error

	// Invocation bound at Build, or nil if not built.
	Invocation() backends.Invocation

	// Memory returns the bytes used on device by the node's own arrays (not counting its batches).
	Memory() uintptr

	// Finalize releases the node's device arrays and its kernel invocation.
	Finalize() error
}

// base holds what is common to all nodes.
type base struct {
	name          string
	kernel        backends.KernelType
	input, output *images.Batch
	invocation    backends.Invocation
}

func newBase(kernel backends.KernelType, name string, input, output *images.Batch) (base, error) {
	if input == nil || output == nil {
		return base{}, errs.Errorf(errs.ErrConfiguration, "node %q (%s) requires an input and an output batch", name, kernel)
	}
	if input == output {
		return base{}, errs.Errorf(errs.ErrConfiguration, "node %q (%s) can't use batch %q as both input and output",
			name, kernel, input.Name())
	}
	return base{name: name, kernel: kernel, input: input, output: output}, nil
}

// Name implements Node.
func (b *base) Name() string { return b.name }

// Kernel implements Node.
func (b *base) Kernel() backends.KernelType { return b.kernel }

// Inputs implements Node.
func (b *base) Inputs() []*images.Batch { return []*images.Batch{b.input} }

// Outputs implements Node.
func (b *base) Outputs() []*images.Batch { return []*images.Batch{b.output} }

// IsBuilt implements Node.
func (b *base) IsBuilt() bool { return b.invocation != nil }

// Invocation implements Node.
func (b *base) Invocation() backends.Invocation { return b.invocation }

// checkBuilt returns an errs.ErrNotBuilt error if the node is not built.
func (b *base) checkBuilt(method string) error {
	if !b.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "node %q (%s).%s()", b.name, b.kernel, method)
	}
	return nil
}

// checkNotBuilt returns an errs.ErrLateConfiguration error if the node is already built.
func (b *base) checkNotBuilt(method string) error {
	if b.IsBuilt() {
		return errs.Errorf(errs.ErrLateConfiguration, "node %q (%s).%s() called after Build()", b.name, b.kernel, method)
	}
	return nil
}

// newBinding returns a binding with the pixel buffers and descriptions of the input and output batches,
// and the source ROI arrays of the input.
func (b *base) newBinding() (backends.Binding, error) {
	binding := backends.Binding{
		Kernel:  b.kernel,
		SrcDesc: b.input.Info().Desc(),
		DstDesc: b.output.Info().Desc(),
		Arrays:  make(map[backends.ArrayRole]backends.Buffer),
	}
	var err error
	if binding.Src, err = b.input.PixelBuffer(); err != nil {
		return binding, err
	}
	if binding.Dst, err = b.output.PixelBuffer(); err != nil {
		return binding, err
	}
	if binding.Arrays[backends.RoleSrcROIWidth], err = b.input.ROIWidthBuffer(); err != nil {
		return binding, err
	}
	if binding.Arrays[backends.RoleSrcROIHeight], err = b.input.ROIHeightBuffer(); err != nil {
		return binding, err
	}
	return binding, nil
}

// bind adds the kernel invocation to the graph.
func (b *base) bind(graph backends.Graph, binding backends.Binding) error {
	if graph == nil {
		return errs.Errorf(errs.ErrAllocation, "node %q (%s): nil graph", b.name, b.kernel)
	}
	invocation, err := graph.AddKernel(binding)
	if err != nil {
		return errors.WithMessagef(err, "node %q", b.name)
	}
	b.invocation = invocation
	klog.V(1).Infof("node %q (%s) built: invocation %s in graph %q", b.name, b.kernel, invocation.ID(), graph.Name())
	return nil
}

// release removes the kernel invocation from its graph.
func (b *base) release() error {
	if b.invocation == nil {
		return nil
	}
	invocation := b.invocation
	b.invocation = nil
	if err := invocation.Release(); err != nil {
		klog.Warningf("node %q (%s): failed to release invocation %s: %v", b.name, b.kernel, invocation.ID(), err)
		return err
	}
	return nil
}

// firstError returns the first non-nil error.
func firstError(errList ...error) error {
	for _, err := range errList {
		if err != nil {
			return err
		}
	}
	return nil
}
