// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/augment/params"
	"github.com/gomlx/augment/pkg/core/arrays"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/gomlx/augment/pkg/core/roi"
	"github.com/pkg/errors"
)

// CropResize crops a random rectangle of each input sample and resizes it to a fixed destination size.
//
// The crop rectangle of each sample is derived on every Refresh from its current input ROI and four
// parameters: the fraction of the input area to cover, the aspect ratio (width/height) of the crop, and the
// horizontal and vertical drift of the crop within the input (0 is left/top, 1 is right/bottom).
type CropResize struct {
	base
	crop                  *params.RandomCrop
	dstWidth, dstHeight   int
	dstWidths, dstHeights arrays.Array[uint32]
}

var _ Node = (*CropResize)(nil)

// NewCropResize creates a CropResize node reading from input and writing samples of dstWidth x dstHeight
// into output.
//
// Until Init or InitParams is called it uses the params.RandomCrop default ranges, drawn from the factory.
func NewCropResize(f *params.Factory, name string, input, output *images.Batch, dstWidth, dstHeight int) (*CropResize, error) {
	b, err := newBase(backends.KernelResizeCrop, name, input, output)
	if err != nil {
		return nil, err
	}
	return &CropResize{
		base:      b,
		crop:      params.NewRandomCrop(f),
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
	}, nil
}

// Init sets fixed values for the crop parameters.
// It fails with errs.ErrLateConfiguration if called after Build.
func (n *CropResize) Init(area, aspectRatio, xDrift, yDrift float32) error {
	return n.InitParams(params.NewFixed(area), params.NewFixed(aspectRatio), params.NewFixed(xDrift), params.NewFixed(yDrift))
}

// InitParams sets the parameters the crop is drawn from. A nil parameter keeps the current one.
// It fails with errs.ErrLateConfiguration if called after Build.
func (n *CropResize) InitParams(area, aspectRatio, xDrift, yDrift params.Parameter[float32]) error {
	if err := n.checkNotBuilt("Init"); err != nil {
		return err
	}
	n.crop.SetParams(area, aspectRatio, xDrift, yDrift)
	return nil
}

// Destination returns the destination width and height.
func (n *CropResize) Destination() (width, height int) {
	return n.dstWidth, n.dstHeight
}

// Build implements Node.
//
// It fails with errs.ErrInvalidDestination if the destination width or height is zero or
// doesn't fit the output batch.
func (n *CropResize) Build(graph backends.Graph) error {
	if n.IsBuilt() {
		return nil
	}
	if n.dstWidth <= 0 || n.dstHeight <= 0 {
		return errs.Errorf(errs.ErrInvalidDestination, "node %q: destination %dx%d", n.name, n.dstWidth, n.dstHeight)
	}
	dst := roi.Dims{Width: uint32(n.dstWidth), Height: uint32(n.dstHeight)}
	if !dst.Fits(n.output.Info().Capacity()) {
		return errs.Errorf(errs.ErrInvalidDestination, "node %q: destination %s doesn't fit output batch %q capacity %s",
			n.name, dst, n.output.Name(), n.output.Info().Capacity())
	}
	if err := n.build(graph, dst); err != nil {
		_ = n.Finalize()
		return errors.WithMessagef(err, "node %q: Build()", n.name)
	}
	return nil
}

func (n *CropResize) build(graph backends.Graph, dst roi.Dims) error {
	if graph == nil {
		return errs.Errorf(errs.ErrAllocation, "nil graph")
	}
	backend := graph.Backend()
	batchSize := n.input.Info().BatchSize
	if err := n.crop.Build(backend, batchSize); err != nil {
		return err
	}
	if err := n.dstWidths.Build(backend, batchSize); err != nil {
		return err
	}
	if err := n.dstHeights.Build(backend, batchSize); err != nil {
		return err
	}
	// Destination shape never changes: uploaded once.
	n.dstWidths.Fill(dst.Width)
	n.dstHeights.Fill(dst.Height)
	if err := firstError(n.dstWidths.Sync(), n.dstHeights.Sync()); err != nil {
		return err
	}

	binding, err := n.newBinding()
	if err != nil {
		return err
	}
	if binding.Arrays[backends.RoleDstROIWidth], err = n.dstWidths.Buffer(); err != nil {
		return err
	}
	if binding.Arrays[backends.RoleDstROIHeight], err = n.dstHeights.Buffer(); err != nil {
		return err
	}
	x1, y1, x2, y2, err := n.crop.Buffers()
	if err != nil {
		return err
	}
	binding.Arrays[backends.RoleX1] = x1
	binding.Arrays[backends.RoleY1] = y1
	binding.Arrays[backends.RoleX2] = x2
	binding.Arrays[backends.RoleY2] = y2
	return n.bind(graph, binding)
}

// Refresh implements Node.
//
// It reads the current input ROIs, derives and uploads one crop rectangle per sample, and sets the
// output ROIs to the destination size.
func (n *CropResize) Refresh() error {
	if err := n.checkBuilt("Refresh"); err != nil {
		return err
	}
	if err := n.crop.SetImageDimensions(n.input.ROIWidths(), n.input.ROIHeights()); err != nil {
		return errors.WithMessagef(err, "node %q", n.name)
	}
	if err := n.crop.Refresh(); err != nil {
		return errors.WithMessagef(err, "node %q", n.name)
	}
	dst := roi.Dims{Width: uint32(n.dstWidth), Height: uint32(n.dstHeight)}
	for ii := range n.output.Info().BatchSize {
		if err := n.output.SetROI(ii, dst); err != nil {
			return errors.WithMessagef(err, "node %q", n.name)
		}
	}
	return n.output.SyncROI()
}

// Rect returns the crop rectangle of sample i derived by the last Refresh.
func (n *CropResize) Rect(i int) roi.Rect {
	return n.crop.Rect(i)
}

// Memory implements Node.
func (n *CropResize) Memory() uintptr {
	return n.crop.Memory() + n.dstWidths.Memory() + n.dstHeights.Memory()
}

// Finalize implements Node.
func (n *CropResize) Finalize() error {
	return firstError(n.release(), n.crop.Finalize(), n.dstWidths.Finalize(), n.dstHeights.Finalize())
}
