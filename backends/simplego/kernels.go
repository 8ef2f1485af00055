// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Flip axis values, as stored in the backends.RoleFlipAxis array.
const (
	flipNone uint32 = iota
	flipHorizontal
	flipVertical
	flipBoth
)

// kernelArrays holds the typed flat views of a binding's pixel buffers and arrays.
type kernelArrays struct {
	src, dst []uint8
	arrays   map[backends.ArrayRole][]uint32
}

func loadKernelArrays(b *Backend, binding *backends.Binding) (*kernelArrays, error) {
	ka := &kernelArrays{arrays: make(map[backends.ArrayRole][]uint32)}
	var err error
	if ka.src, err = flatOf[uint8](b, binding.Src); err != nil {
		return nil, errors.WithMessage(err, "source pixels")
	}
	if ka.dst, err = flatOf[uint8](b, binding.Dst); err != nil {
		return nil, errors.WithMessage(err, "destination pixels")
	}
	for _, role := range backends.RequiredRoles(binding.Kernel) {
		if ka.arrays[role], err = flatOf[uint32](b, binding.Arrays[role]); err != nil {
			return nil, errors.WithMessage(err, role.String())
		}
	}
	return ka, nil
}

// forEachSample runs fn for every sample index in [0, n), with at most b.parallelism running concurrently.
func forEachSample(ctx context.Context, b *Backend, n int, fn func(sample int) error) error {
	if b.parallelism <= 1 {
		for sample := range n {
			if err := fn(sample); err != nil {
				return err
			}
		}
		return nil
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for sample := range n {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return fn(sample)
		})
	}
	return g.Wait()
}

// sampleROI returns the ROI of a sample, checking it fits the capacity.
func sampleROI(desc backends.ImageDesc, widths, heights []uint32, sample int) (width, height int, err error) {
	width, height = int(widths[sample]), int(heights[sample])
	if width <= 0 || height <= 0 || width > desc.Width || height > desc.Height {
		err = errors.Errorf("sample #%d: ROI %dx%d invalid for capacity %dx%d", sample, width, height, desc.Width, desc.Height)
	}
	return
}

// execFlip flips each sample ROI following its axis value.
func execFlip(ctx context.Context, b *Backend, binding *backends.Binding) error {
	ka, err := loadKernelArrays(b, binding)
	if err != nil {
		return err
	}
	widths, heights := ka.arrays[backends.RoleSrcROIWidth], ka.arrays[backends.RoleSrcROIHeight]
	axes := ka.arrays[backends.RoleFlipAxis]
	return forEachSample(ctx, b, binding.SrcDesc.BatchSize, func(sample int) error {
		width, height, err := sampleROI(binding.SrcDesc, widths, heights, sample)
		if err != nil {
			return err
		}
		img := images.ToNRGBA(ka.src, binding.SrcDesc, sample, width, height)
		switch axes[sample] {
		case flipNone:
		case flipHorizontal:
			img = imaging.FlipH(img)
		case flipVertical:
			img = imaging.FlipV(img)
		case flipBoth:
			img = imaging.Rotate180(img)
		default:
			return errors.Errorf("sample #%d: invalid flip axis %d", sample, axes[sample])
		}
		images.FromNRGBA(img, ka.dst, binding.DstDesc, sample)
		return nil
	})
}

// execResizeCrop crops each sample's [x1,x2)x[y1,y2) rectangle and resizes it to the destination ROI.
func execResizeCrop(ctx context.Context, b *Backend, binding *backends.Binding) error {
	ka, err := loadKernelArrays(b, binding)
	if err != nil {
		return err
	}
	srcWidths, srcHeights := ka.arrays[backends.RoleSrcROIWidth], ka.arrays[backends.RoleSrcROIHeight]
	dstWidths, dstHeights := ka.arrays[backends.RoleDstROIWidth], ka.arrays[backends.RoleDstROIHeight]
	x1s, y1s := ka.arrays[backends.RoleX1], ka.arrays[backends.RoleY1]
	x2s, y2s := ka.arrays[backends.RoleX2], ka.arrays[backends.RoleY2]
	return forEachSample(ctx, b, binding.SrcDesc.BatchSize, func(sample int) error {
		width, height, err := sampleROI(binding.SrcDesc, srcWidths, srcHeights, sample)
		if err != nil {
			return err
		}
		dstWidth, dstHeight, err := sampleROI(binding.DstDesc, dstWidths, dstHeights, sample)
		if err != nil {
			return errors.WithMessage(err, "destination")
		}
		rect := image.Rect(int(x1s[sample]), int(y1s[sample]), int(x2s[sample]), int(y2s[sample]))
		if rect.Empty() || rect.Max.X > width || rect.Max.Y > height {
			return errors.Errorf("sample #%d: crop %v outside of ROI %dx%d", sample, rect, width, height)
		}
		img := images.ToNRGBA(ka.src, binding.SrcDesc, sample, width, height)
		img = imaging.Crop(img, rect)
		img = imaging.Resize(img, dstWidth, dstHeight, imaging.Linear)
		images.FromNRGBA(img, ka.dst, binding.DstDesc, sample)
		return nil
	})
}

// execSequenceRearrange copies whole frames: destination frame s*newLen+j is the source frame s*seqLen+order[s*newLen+j].
func execSequenceRearrange(ctx context.Context, b *Backend, binding *backends.Binding) error {
	ka, err := loadKernelArrays(b, binding)
	if err != nil {
		return err
	}
	order := ka.arrays[backends.RoleSequenceOrder]
	seqLen, newLen := binding.SequenceLength, binding.NewSequenceLength
	frameSize := binding.SrcDesc.SampleSize()
	return forEachSample(ctx, b, binding.DstDesc.BatchSize, func(frame int) error {
		sequence := frame / newLen
		index := int(order[frame])
		if index >= seqLen {
			return errors.Errorf("frame #%d: order index %d >= sequence length %d", frame, index, seqLen)
		}
		srcFrame := sequence*seqLen + index
		copy(ka.dst[frame*frameSize:(frame+1)*frameSize], ka.src[srcFrame*frameSize:(srcFrame+1)*frameSize])
		return nil
	})
}
