// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"context"

	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/google/uuid"
)

// KernelType is an enum of the batched kernels a backend can execute.
type KernelType int

//go:generate go tool enumer -type=KernelType -trimprefix=Kernel -output=gen_kerneltype_enumer.go graph.go

const (
	KernelInvalid KernelType = iota

	// KernelFlip flips each sample's ROI along the per-sample axis (see RoleFlipAxis).
	KernelFlip

	// KernelResizeCrop crops each sample's [x1,x2)x[y1,y2) rectangle and resizes it into the destination ROI.
	KernelResizeCrop

	// KernelSequenceRearrange copies whole frames of each sequence following RoleSequenceOrder.
	KernelSequenceRearrange
)

// ArrayRole names the per-sample arrays a kernel invocation reads.
type ArrayRole int

const (
	RoleSrcROIWidth ArrayRole = iota
	RoleSrcROIHeight
	RoleDstROIWidth
	RoleDstROIHeight
	RoleX1
	RoleY1
	RoleX2
	RoleY2
	RoleFlipAxis
	RoleSequenceOrder
)

var arrayRoleNames = [...]string{
	"SrcROIWidth", "SrcROIHeight", "DstROIWidth", "DstROIHeight",
	"X1", "Y1", "X2", "Y2", "FlipAxis", "SequenceOrder",
}

// String implements fmt.Stringer.
func (r ArrayRole) String() string {
	if r < 0 || int(r) >= len(arrayRoleNames) {
		return "ArrayRole(?)"
	}
	return arrayRoleNames[r]
}

// requiredRoles per kernel type.
var requiredRoles = map[KernelType][]ArrayRole{
	KernelFlip: {RoleSrcROIWidth, RoleSrcROIHeight, RoleDstROIWidth, RoleDstROIHeight, RoleFlipAxis},
	KernelResizeCrop: {RoleSrcROIWidth, RoleSrcROIHeight, RoleDstROIWidth, RoleDstROIHeight,
		RoleX1, RoleY1, RoleX2, RoleY2},
	KernelSequenceRearrange: {RoleSrcROIWidth, RoleSrcROIHeight, RoleDstROIWidth, RoleDstROIHeight, RoleSequenceOrder},
}

// RequiredRoles returns the arrays the given kernel needs bound.
func RequiredRoles(kernel KernelType) []ArrayRole {
	return requiredRoles[kernel]
}

// ImageDesc describes the capacity geometry of a batch of images stored in a pixel Buffer.
//
// Pixels are stored as uint8, NHWC, each sample at a stride of Height*Width*Channels.
// The valid region of each sample (its ROI) is the top-left corner of its slot.
type ImageDesc struct {
	Width, Height, Channels, BatchSize int
}

// SampleSize is the number of pixel values of one sample slot.
func (d ImageDesc) SampleSize() int { return d.Width * d.Height * d.Channels }

// Binding holds everything needed to create one kernel invocation: the kernel type, the
// source and destination pixel buffers and the per-sample arrays.
//
// The Binding only references the buffers: they are owned by the nodes and images that
// created them, and they must outlive the invocation.
type Binding struct {
	Kernel   KernelType
	Src, Dst Buffer
	SrcDesc  ImageDesc
	DstDesc  ImageDesc
	Arrays   map[ArrayRole]Buffer

	// SequenceLength and NewSequenceLength are the number of frames per sequence in
	// the source and destination, used only by KernelSequenceRearrange.
	SequenceLength, NewSequenceLength int
}

// Validate checks that the binding has the buffers and arrays its kernel needs.
// It returns an errs.ErrAllocation error otherwise, since the invocation can't be created.
func (b *Binding) Validate() error {
	roles, found := requiredRoles[b.Kernel]
	if !found {
		return errs.Errorf(errs.ErrAllocation, "unknown kernel %s", b.Kernel)
	}
	if b.Src == nil || b.Dst == nil {
		return errs.Errorf(errs.ErrAllocation, "kernel %s: source and destination buffers must be given", b.Kernel)
	}
	if b.SrcDesc.SampleSize() <= 0 || b.DstDesc.SampleSize() <= 0 {
		return errs.Errorf(errs.ErrAllocation, "kernel %s: invalid image geometry src=%+v, dst=%+v",
			b.Kernel, b.SrcDesc, b.DstDesc)
	}
	for _, role := range roles {
		if b.Arrays[role] == nil {
			return errs.Errorf(errs.ErrAllocation, "kernel %s: missing array %s", b.Kernel, role)
		}
	}
	if b.Kernel == KernelSequenceRearrange {
		if b.SequenceLength <= 0 || b.NewSequenceLength <= 0 ||
			b.SrcDesc.BatchSize%b.SequenceLength != 0 ||
			b.DstDesc.BatchSize != b.SrcDesc.BatchSize/b.SequenceLength*b.NewSequenceLength {
			return errs.Errorf(errs.ErrAllocation, "kernel %s: sequence lengths %d->%d don't match batch sizes %d->%d",
				b.Kernel, b.SequenceLength, b.NewSequenceLength, b.SrcDesc.BatchSize, b.DstDesc.BatchSize)
		}
	}
	return nil
}

// Invocation is a kernel bound into a Graph. It is executed once per Graph.Execute, until released.
type Invocation interface {
	// ID uniquely identifies the invocation.
	ID() uuid.UUID

	// Kernel returns the type of kernel invoked.
	Kernel() KernelType

	// Release removes the invocation from its graph. It is idempotent.
	Release() error
}

// Graph is a collection of kernel invocations that are executed together, once per batch.
//
// Invocations are added at build time (Graph.AddKernel) and executed in insertion order,
// against whatever the contents of the bound buffers are at the time of Graph.Execute.
type Graph interface {
	// Name of the graph, for debugging.
	Name() string

	// Backend that owns the graph.
	Backend() Backend

	// AddKernel validates the binding and adds a new kernel invocation to the graph.
	AddKernel(binding Binding) (Invocation, error)

	// Invocations returns the live (not released) invocations, in execution order.
	Invocations() []Invocation

	// Execute runs every live invocation once, in order.
	// It returns once all kernels finished, or on the first error.
	Execute(ctx context.Context) error

	// Finalize releases all invocations and makes the graph invalid.
	Finalize() error
}
