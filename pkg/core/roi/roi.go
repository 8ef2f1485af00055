// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package roi holds the region-of-interest (ROI) bookkeeping of a batch of samples.
//
// Samples in a batch may have heterogeneous native sizes: each one is stored at the top-left
// corner of a fixed capacity slot, and its ROI (Dims) tells which part of the slot is valid.
// All coordinates are in source-image pixels.
package roi

import (
	"fmt"
	"math"

	"github.com/gomlx/augment/pkg/core/errs"
)

// Dims is the width and height of a sample's valid region.
type Dims struct {
	Width, Height uint32
}

// String implements fmt.Stringer.
func (d Dims) String() string { return fmt.Sprintf("%dx%d", d.Width, d.Height) }

// Valid returns whether both dimensions are > 0.
func (d Dims) Valid() bool { return d.Width > 0 && d.Height > 0 }

// Fits returns whether d fits inside the capacity.
func (d Dims) Fits(capacity Dims) bool {
	return d.Width <= capacity.Width && d.Height <= capacity.Height
}

// Rect is a crop rectangle, with exclusive end coordinates: it covers [X1, X2) x [Y1, Y2).
type Rect struct {
	X1, Y1, X2, Y2 uint32
}

// String implements fmt.Stringer.
func (r Rect) String() string { return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2) }

// Width of the rectangle.
func (r Rect) Width() uint32 { return r.X2 - r.X1 }

// Height of the rectangle.
func (r Rect) Height() uint32 { return r.Y2 - r.Y1 }

// Inside returns whether the rectangle is non-empty and lies entirely inside an ROI of the given dimensions.
func (r Rect) Inside(d Dims) bool {
	return r.X1 < r.X2 && r.Y1 < r.Y2 && r.X2 <= d.Width && r.Y2 <= d.Height
}

// DeriveCrop returns the crop rectangle for a sample of input dimensions `in`:
//
//   - area is the fraction of the input area to cover.
//   - aspect is the crop's width/height ratio.
//   - xDrift and yDrift position the crop in the remaining slack (input - crop): 0 is left/top,
//     1 is right/bottom, 0.5 is centered. They are clamped to [0, 1].
//
// If the requested crop doesn't fit the input in either axis, it is scaled down, preserving its aspect
// ratio, until it does. The result is never empty and always lies inside the input.
//
// It returns an errs.ErrGeometry error if the input is degenerate, or if area or aspect are not finite
// positive values.
func DeriveCrop(in Dims, area, aspect, xDrift, yDrift float64) (Rect, error) {
	if !in.Valid() {
		return Rect{}, errs.Errorf(errs.ErrGeometry, "crop of degenerate input ROI %s", in)
	}
	if !(area > 0) || math.IsInf(area, 0) || !(aspect > 0) || math.IsInf(aspect, 0) {
		return Rect{}, errs.Errorf(errs.ErrGeometry, "crop of input ROI %s with area=%g, aspect ratio=%g", in, area, aspect)
	}
	inWidth, inHeight := float64(in.Width), float64(in.Height)
	cropArea := area * inWidth * inHeight
	cropWidth := math.Sqrt(cropArea * aspect)
	cropHeight := math.Sqrt(cropArea / aspect)
	if cropWidth > inWidth || cropHeight > inHeight {
		scale := min(inWidth/cropWidth, inHeight/cropHeight)
		cropWidth *= scale
		cropHeight *= scale
	}
	width := clampDim(cropWidth, in.Width)
	height := clampDim(cropHeight, in.Height)
	x1 := uint32(math.Round(clampUnit(xDrift) * float64(in.Width-width)))
	y1 := uint32(math.Round(clampUnit(yDrift) * float64(in.Height-height)))
	return Rect{X1: x1, Y1: y1, X2: x1 + width, Y2: y1 + height}, nil
}

// clampDim rounds v and clamps it to [1, limit].
func clampDim(v float64, limit uint32) uint32 {
	v = math.Round(v)
	if !(v >= 1) {
		return 1
	}
	if v >= float64(limit) {
		return limit
	}
	return uint32(v)
}

// clampUnit clamps v to [0, 1]. NaN becomes 0.
func clampUnit(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return min(v, 1)
}
