// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/arrays"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/roi"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Default ranges of the RandomCrop parameters.
var (
	DefaultCropArea        = [2]float32{0.08, 1}
	DefaultCropAspectRatio = [2]float32{3.0 / 4.0, 4.0 / 3.0}
	DefaultCropDrift       = [2]float32{0, 1}
)

// RandomCrop derives, on each Refresh, one crop rectangle per sample slot from four parameters
// (area, aspect ratio, x drift and y drift), and holds them in four device arrays (X1, Y1, X2, Y2)
// with exclusive end coordinates.
type RandomCrop struct {
	area, aspectRatio, xDrift, yDrift Parameter[float32]

	x1, y1, x2, y2 arrays.Array[uint32]

	widths, heights []uint32
	rects           []roi.Rect
}

// NewRandomCrop creates an unbuilt RandomCrop with the default parameters, drawn from the factory.
func NewRandomCrop(f *Factory) *RandomCrop {
	c := &RandomCrop{}
	c.area = mustUniform(f, DefaultCropArea)
	c.aspectRatio = mustUniform(f, DefaultCropAspectRatio)
	c.xDrift = mustUniform(f, DefaultCropDrift)
	c.yDrift = mustUniform(f, DefaultCropDrift)
	return c
}

func mustUniform(f *Factory, r [2]float32) *Uniform[float32] {
	p, err := NewUniform(f, r[0], r[1])
	if err != nil {
		// Only used with the package's own constant ranges.
		panic(err)
	}
	return p
}

// SetParams replaces the four parameters. A nil parameter keeps the current one.
func (c *RandomCrop) SetParams(area, aspectRatio, xDrift, yDrift Parameter[float32]) {
	if area != nil {
		c.area = area
	}
	if aspectRatio != nil {
		c.aspectRatio = aspectRatio
	}
	if xDrift != nil {
		c.xDrift = xDrift
	}
	if yDrift != nil {
		c.yDrift = yDrift
	}
}

// Params returns the four parameters: area, aspect ratio, x drift and y drift.
func (c *RandomCrop) Params() (area, aspectRatio, xDrift, yDrift Parameter[float32]) {
	return c.area, c.aspectRatio, c.xDrift, c.yDrift
}

// coords lists the four coordinate arrays in X1, Y1, X2, Y2 order.
func (c *RandomCrop) coords() [4]*arrays.Array[uint32] {
	return [4]*arrays.Array[uint32]{&c.x1, &c.y1, &c.x2, &c.y2}
}

// Build allocates the four coordinate arrays. On failure, the ones already allocated are released.
// It is a no-op if already built.
func (c *RandomCrop) Build(backend backends.Backend, capacity int) error {
	if c.IsBuilt() {
		return nil
	}
	for _, a := range c.coords() {
		if err := a.Build(backend, capacity); err != nil {
			_ = c.Finalize()
			return errors.WithMessage(err, "RandomCrop.Build()")
		}
	}
	c.widths = make([]uint32, capacity)
	c.heights = make([]uint32, capacity)
	c.rects = make([]roi.Rect, capacity)
	klog.V(1).Infof("RandomCrop built with %d slots", capacity)
	return nil
}

// IsBuilt returns whether Build was successfully called.
func (c *RandomCrop) IsBuilt() bool {
	return c.y2.IsBuilt()
}

// Capacity is the number of slots, fixed at Build.
func (c *RandomCrop) Capacity() int {
	return len(c.rects)
}

// Memory returns the bytes used on device by the four arrays.
func (c *RandomCrop) Memory() uintptr {
	var total uintptr
	for _, a := range c.coords() {
		total += a.Memory()
	}
	return total
}

// SetImageDimensions sets the input dimensions of every slot, used by the next Refresh.
// widths and heights must have exactly Capacity elements.
func (c *RandomCrop) SetImageDimensions(widths, heights []uint32) error {
	if !c.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "RandomCrop.SetImageDimensions()")
	}
	if len(widths) != len(c.widths) || len(heights) != len(c.heights) {
		return errs.Errorf(errs.ErrGeometry, "RandomCrop.SetImageDimensions(): got %d widths and %d heights for %d slots",
			len(widths), len(heights), len(c.widths))
	}
	copy(c.widths, widths)
	copy(c.heights, heights)
	return nil
}

// Refresh samples the four parameters for every slot, derives the crop rectangles with roi.DeriveCrop
// and uploads the four coordinate arrays.
//
// If any slot fails (degenerate input dimensions, non-positive area or aspect ratio), nothing is uploaded
// and the previous rectangles are kept. The four arrays are then uploaded one after the other: if an
// upload fails, the device arrays may be partially updated and the batch must be considered invalid.
func (c *RandomCrop) Refresh() error {
	if !c.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "RandomCrop.Refresh()")
	}
	rects := make([]roi.Rect, len(c.rects))
	for ii := range rects {
		var values [4]float32
		for jj, p := range [4]Parameter[float32]{c.area, c.aspectRatio, c.xDrift, c.yDrift} {
			var err error
			if values[jj], err = draw(p); err != nil {
				return errors.WithMessagef(err, "RandomCrop.Refresh(), slot #%d", ii)
			}
		}
		in := roi.Dims{Width: c.widths[ii], Height: c.heights[ii]}
		rect, err := roi.DeriveCrop(in, float64(values[0]), float64(values[1]), float64(values[2]), float64(values[3]))
		if err != nil {
			return errors.WithMessagef(err, "RandomCrop.Refresh(), slot #%d", ii)
		}
		rects[ii] = rect
	}
	copy(c.rects, rects)
	x1, y1, x2, y2 := c.x1.Host(), c.y1.Host(), c.x2.Host(), c.y2.Host()
	for ii, rect := range c.rects {
		x1[ii], y1[ii], x2[ii], y2[ii] = rect.X1, rect.Y1, rect.X2, rect.Y2
	}
	for _, a := range c.coords() {
		if err := a.Sync(); err != nil {
			return errors.WithMessage(err, "RandomCrop.Refresh()")
		}
	}
	return nil
}

// Rect returns the rectangle derived for slot i by the last Refresh.
func (c *RandomCrop) Rect(i int) roi.Rect {
	return c.rects[i]
}

// Buffers returns the device arrays X1, Y1, X2, Y2. It fails with errs.ErrNotBuilt before Build.
func (c *RandomCrop) Buffers() (x1, y1, x2, y2 backends.Buffer, err error) {
	var buffers [4]backends.Buffer
	for ii, a := range c.coords() {
		if buffers[ii], err = a.Buffer(); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return buffers[0], buffers[1], buffers[2], buffers[3], nil
}

// Finalize releases the four device arrays.
func (c *RandomCrop) Finalize() error {
	var firstErr error
	for _, a := range c.coords() {
		if err := a.Finalize(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.widths, c.heights, c.rects = nil, nil, nil
	return firstErr
}
