// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/augment/params"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/pkg/errors"
)

// FlipAxis selects how a sample is flipped.
type FlipAxis uint32

//go:generate go tool enumer -type=FlipAxis -trimprefix=Flip -output=gen_flipaxis_enumer.go flip.go

const (
	FlipNone FlipAxis = iota
	FlipHorizontal
	FlipVertical
	// FlipBoth flips horizontally and vertically, the same as a 180 degrees rotation.
	FlipBoth
)

// Flip flips each sample along an axis drawn per sample from a parameter.
type Flip struct {
	base
	axis *params.BatchArray[uint32]
}

var _ Node = (*Flip)(nil)

// NewFlip creates a Flip node reading from input and writing into output.
//
// Until Init or InitParam is called, each sample is flipped horizontally with probability 1/2.
func NewFlip(f *params.Factory, name string, input, output *images.Batch) (*Flip, error) {
	b, err := newBase(backends.KernelFlip, name, input, output)
	if err != nil {
		return nil, err
	}
	param, err := params.NewUniform(f, uint32(FlipNone), uint32(FlipHorizontal))
	if err != nil {
		return nil, err
	}
	n := &Flip{base: b}
	n.axis = params.NewBatchArray[uint32](param).WithValidator(func(v uint32) error {
		if !FlipAxis(v).IsAFlipAxis() {
			return errs.Errorf(errs.ErrInvalidRange, "node %q: invalid flip axis %d", name, v)
		}
		return nil
	})
	return n, nil
}

// Init flips every sample along the same axis.
// It fails with errs.ErrLateConfiguration if called after Build.
func (n *Flip) Init(axis FlipAxis) error {
	if !axis.IsAFlipAxis() {
		return errs.Errorf(errs.ErrInvalidRange, "node %q: invalid flip axis %s", n.name, axis)
	}
	return n.InitParam(params.NewFixed(uint32(axis)))
}

// InitParam sets the parameter the flip axis is drawn from. Its values must be FlipAxis values.
//
// It fails with errs.ErrInvalidRange if the parameter declares bounds outside the FlipAxis values, and
// with errs.ErrLateConfiguration if called after Build.
func (n *Flip) InitParam(axis params.Parameter[uint32]) error {
	if err := n.checkNotBuilt("Init"); err != nil {
		return err
	}
	if axis == nil {
		return errs.Errorf(errs.ErrConfiguration, "node %q: nil flip axis parameter", n.name)
	}
	if _, hi, ok := axis.Bounds(); ok && !FlipAxis(hi).IsAFlipAxis() {
		return errs.Errorf(errs.ErrInvalidRange, "node %q: flip axis parameter bounded by %d, max is %d (%s)",
			n.name, hi, FlipBoth, FlipBoth)
	}
	n.axis.SetParam(axis)
	return nil
}

// Build implements Node.
func (n *Flip) Build(graph backends.Graph) error {
	if n.IsBuilt() {
		return nil
	}
	if !n.input.Info().Capacity().Fits(n.output.Info().Capacity()) {
		return errs.Errorf(errs.ErrGeometry, "node %q: input batch %q capacity %s doesn't fit output batch %q capacity %s",
			n.name, n.input.Name(), n.input.Info().Capacity(), n.output.Name(), n.output.Info().Capacity())
	}
	if err := n.build(graph); err != nil {
		_ = n.Finalize()
		return errors.WithMessagef(err, "node %q: Build()", n.name)
	}
	return nil
}

func (n *Flip) build(graph backends.Graph) error {
	if graph == nil {
		return errs.Errorf(errs.ErrAllocation, "nil graph")
	}
	if err := n.axis.Build(graph.Backend(), n.input.Info().BatchSize); err != nil {
		return err
	}
	binding, err := n.newBinding()
	if err != nil {
		return err
	}
	// Flipping doesn't change the shape: the destination ROI is the source ROI.
	binding.Arrays[backends.RoleDstROIWidth] = binding.Arrays[backends.RoleSrcROIWidth]
	binding.Arrays[backends.RoleDstROIHeight] = binding.Arrays[backends.RoleSrcROIHeight]
	if binding.Arrays[backends.RoleFlipAxis], err = n.axis.Buffer(); err != nil {
		return err
	}
	return n.bind(graph, binding)
}

// Refresh implements Node: it draws a new flip axis for every sample and passes the input ROIs through to
// the output.
func (n *Flip) Refresh() error {
	if err := n.checkBuilt("Refresh"); err != nil {
		return err
	}
	if err := n.axis.Refresh(); err != nil {
		return errors.WithMessagef(err, "node %q", n.name)
	}
	for ii := range n.input.Info().BatchSize {
		if err := n.output.SetROI(ii, n.input.ROI(ii)); err != nil {
			return errors.WithMessagef(err, "node %q", n.name)
		}
	}
	return n.output.SyncROI()
}

// Axes returns the flip axis of each sample drawn by the last Refresh.
func (n *Flip) Axes() []FlipAxis {
	host := n.axis.Host()
	axes := make([]FlipAxis, len(host))
	for ii, v := range host {
		axes[ii] = FlipAxis(v)
	}
	return axes
}

// Memory implements Node.
func (n *Flip) Memory() uintptr {
	return n.axis.Memory()
}

// Finalize implements Node.
func (n *Flip) Finalize() error {
	return firstError(n.release(), n.axis.Finalize())
}
