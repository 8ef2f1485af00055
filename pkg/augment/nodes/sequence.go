// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"slices"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/arrays"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/pkg/errors"
)

// SequenceRearrange reorders the frames within each video sequence of a batch.
//
// The input batch holds sequenceCount sequences of sequenceLength frames each, and the output holds
// sequenceCount sequences of newSequenceLength frames: output frame j of every sequence is the input frame
// newOrder[j] of the same sequence. Frames can be dropped or repeated.
//
// The order is static: it is uploaded once at Build, and Refresh only propagates the frames ROIs.
type SequenceRearrange struct {
	base
	newOrder                          []uint32
	sequenceLength, newSequenceLength int
	sequenceCount                     int
	order                             arrays.Array[uint32]
}

var _ Node = (*SequenceRearrange)(nil)

// NewSequenceRearrange creates a SequenceRearrange node reading frames from input and writing into output.
// Init must be called before Build.
func NewSequenceRearrange(name string, input, output *images.Batch) (*SequenceRearrange, error) {
	b, err := newBase(backends.KernelSequenceRearrange, name, input, output)
	if err != nil {
		return nil, err
	}
	return &SequenceRearrange{base: b}, nil
}

// Init sets the new order of the frames of each sequence.
//
// It fails with errs.ErrInvalidOrder if newSequenceLength != len(newOrder), if any of the lengths or
// the sequenceCount is zero, or if an index is not in [0, sequenceLength). And with errs.ErrLateConfiguration
// if called after Build.
func (n *SequenceRearrange) Init(newOrder []uint32, newSequenceLength, sequenceLength, sequenceCount int) error {
	if err := n.checkNotBuilt("Init"); err != nil {
		return err
	}
	if newSequenceLength != len(newOrder) {
		return errs.Errorf(errs.ErrInvalidOrder, "node %q: new sequence length %d != length of new order %v",
			n.name, newSequenceLength, newOrder)
	}
	if newSequenceLength <= 0 || sequenceLength <= 0 || sequenceCount <= 0 {
		return errs.Errorf(errs.ErrInvalidOrder, "node %q: new sequence length=%d, sequence length=%d, sequence count=%d must be > 0",
			n.name, newSequenceLength, sequenceLength, sequenceCount)
	}
	for ii, index := range newOrder {
		if int(index) >= sequenceLength {
			return errs.Errorf(errs.ErrInvalidOrder, "node %q: new order index #%d is %d, must be in [0, %d)",
				n.name, ii, index, sequenceLength)
		}
	}
	n.newOrder = slices.Clone(newOrder)
	n.newSequenceLength = newSequenceLength
	n.sequenceLength = sequenceLength
	n.sequenceCount = sequenceCount
	return nil
}

// Build implements Node.
//
// It fails with errs.ErrConfiguration if Init wasn't called, or if the input and output batch sizes don't
// match the sequence lengths and count.
func (n *SequenceRearrange) Build(graph backends.Graph) error {
	if n.IsBuilt() {
		return nil
	}
	if n.newOrder == nil {
		return errs.Errorf(errs.ErrConfiguration, "node %q: Init() must be called before Build()", n.name)
	}
	if inFrames := n.input.Info().BatchSize; inFrames != n.sequenceLength*n.sequenceCount {
		return errs.Errorf(errs.ErrConfiguration, "node %q: input batch %q has %d frames, expected %d sequences of %d frames",
			n.name, n.input.Name(), inFrames, n.sequenceCount, n.sequenceLength)
	}
	if outFrames := n.output.Info().BatchSize; outFrames != n.newSequenceLength*n.sequenceCount {
		return errs.Errorf(errs.ErrConfiguration, "node %q: output batch %q has %d frames, expected %d sequences of %d frames",
			n.name, n.output.Name(), outFrames, n.sequenceCount, n.newSequenceLength)
	}
	if err := n.build(graph); err != nil {
		_ = n.Finalize()
		return errors.WithMessagef(err, "node %q: Build()", n.name)
	}
	return nil
}

func (n *SequenceRearrange) build(graph backends.Graph) error {
	if graph == nil {
		return errs.Errorf(errs.ErrAllocation, "nil graph")
	}
	if err := n.order.Build(graph.Backend(), n.newSequenceLength*n.sequenceCount); err != nil {
		return err
	}
	host := n.order.Host()
	for sequence := range n.sequenceCount {
		copy(host[sequence*n.newSequenceLength:], n.newOrder)
	}
	if err := n.order.Sync(); err != nil {
		return err
	}
	binding, err := n.newBinding()
	if err != nil {
		return err
	}
	binding.SequenceLength = n.sequenceLength
	binding.NewSequenceLength = n.newSequenceLength
	if binding.Arrays[backends.RoleDstROIWidth], err = n.output.ROIWidthBuffer(); err != nil {
		return err
	}
	if binding.Arrays[backends.RoleDstROIHeight], err = n.output.ROIHeightBuffer(); err != nil {
		return err
	}
	if binding.Arrays[backends.RoleSequenceOrder], err = n.order.Buffer(); err != nil {
		return err
	}
	return n.bind(graph, binding)
}

// Refresh implements Node: the order is left untouched, and each output frame gets the ROI of the
// input frame it is copied from.
func (n *SequenceRearrange) Refresh() error {
	if err := n.checkBuilt("Refresh"); err != nil {
		return err
	}
	order := n.order.Host()
	for frame, index := range order {
		sequence := frame / n.newSequenceLength
		srcFrame := sequence*n.sequenceLength + int(index)
		if err := n.output.SetROI(frame, n.input.ROI(srcFrame)); err != nil {
			return errors.WithMessagef(err, "node %q", n.name)
		}
	}
	return n.output.SyncROI()
}

// Order returns the replicated frame order bound to the kernel: one entry per output frame.
// It is nil before Build.
func (n *SequenceRearrange) Order() []uint32 {
	return n.order.Host()
}

// Memory implements Node.
func (n *SequenceRearrange) Memory() uintptr {
	return n.order.Memory()
}

// Finalize implements Node.
func (n *SequenceRearrange) Finalize() error {
	return firstError(n.release(), n.order.Finalize())
}
