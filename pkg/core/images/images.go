// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package images implements Batch, the container of a batch of images (or video frames) stored in
// device-visible buffers, together with their per-sample regions of interest (ROI).
//
// Pixels are uint8 in NHWC layout: every sample owns a slot of Info.Height x Info.Width x Info.Channels
// pixels (its capacity), and its valid content is the top-left ROI of the slot.
package images

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/arrays"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/roi"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Info describes the capacity geometry of a Batch.
type Info struct {
	// Width, Height and Channels of each sample slot. Channels must be 1 (gray), 3 (RGB) or 4 (RGBA).
	Width, Height, Channels int

	// BatchSize is the number of sample slots.
	BatchSize int
}

// Validate returns an errs.ErrConfiguration error if the geometry is invalid.
func (info Info) Validate() error {
	if info.Width <= 0 || info.Height <= 0 || info.BatchSize <= 0 {
		return errs.Errorf(errs.ErrConfiguration, "invalid image geometry %s", info)
	}
	switch info.Channels {
	case 1, 3, 4:
	default:
		return errs.Errorf(errs.ErrConfiguration, "invalid number of channels %d, only 1, 3 or 4 are supported", info.Channels)
	}
	return nil
}

// String implements fmt.Stringer.
func (info Info) String() string {
	return fmt.Sprintf("[%d]%dx%dx%d", info.BatchSize, info.Height, info.Width, info.Channels)
}

// Desc returns the backends.ImageDesc used in kernel bindings.
func (info Info) Desc() backends.ImageDesc {
	return backends.ImageDesc{Width: info.Width, Height: info.Height, Channels: info.Channels, BatchSize: info.BatchSize}
}

// Capacity returns the dimensions of one sample slot.
func (info Info) Capacity() roi.Dims {
	return roi.Dims{Width: uint32(info.Width), Height: uint32(info.Height)}
}

// Batch holds the pixels and ROIs of a batch of samples.
//
// The host copies are the source of truth for the loader (Load, SetROI) and must be pushed with Upload or
// SyncROI; after kernels write the pixels, Download fetches them back for Image.
type Batch struct {
	name            string
	info            Info
	pixels          arrays.Array[uint8]
	widths, heights arrays.Array[uint32]
}

// New allocates a Batch on the backend. All ROIs start as the full capacity.
func New(backend backends.Backend, name string, info Info) (*Batch, error) {
	if err := info.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "images.New(%q)", name)
	}
	b := &Batch{name: name, info: info}
	err := b.pixels.Build(backend, info.BatchSize*info.Desc().SampleSize())
	if err == nil {
		err = b.widths.Build(backend, info.BatchSize)
	}
	if err == nil {
		err = b.heights.Build(backend, info.BatchSize)
	}
	if err != nil {
		_ = b.Finalize()
		return nil, errors.WithMessagef(err, "images.New(%q)", name)
	}
	b.widths.Fill(uint32(info.Width))
	b.heights.Fill(uint32(info.Height))
	if err = b.SyncROI(); err != nil {
		_ = b.Finalize()
		return nil, errors.WithMessagef(err, "images.New(%q)", name)
	}
	klog.V(1).Infof("images.New(%q): %s, %s on device", name, info, humanize.Bytes(uint64(b.Memory())))
	return b, nil
}

// Name of the batch, for debugging.
func (b *Batch) Name() string { return b.name }

// Info returns the capacity geometry of the batch.
func (b *Batch) Info() Info { return b.info }

// Memory returns the bytes used on device by the batch.
func (b *Batch) Memory() uintptr {
	return b.pixels.Memory() + b.widths.Memory() + b.heights.Memory()
}

// ROI returns the host copy of the ROI of sample i.
func (b *Batch) ROI(i int) roi.Dims {
	return roi.Dims{Width: b.widths.Host()[i], Height: b.heights.Host()[i]}
}

// SetROI sets the host copy of the ROI of sample i. Use SyncROI (or Upload) to push it to the device.
//
// It fails with errs.ErrGeometry if the dims are empty or don't fit the slot capacity.
func (b *Batch) SetROI(i int, dims roi.Dims) error {
	if i < 0 || i >= b.info.BatchSize {
		return errs.Errorf(errs.ErrGeometry, "batch %q: sample #%d out of range [0, %d)", b.name, i, b.info.BatchSize)
	}
	if !dims.Valid() || !dims.Fits(b.info.Capacity()) {
		return errs.Errorf(errs.ErrGeometry, "batch %q: ROI %s invalid for capacity %s", b.name, dims, b.info.Capacity())
	}
	b.widths.Host()[i] = dims.Width
	b.heights.Host()[i] = dims.Height
	return nil
}

// ROIWidths returns the host copy of the ROI widths, one per sample.
func (b *Batch) ROIWidths() []uint32 { return b.widths.Host() }

// ROIHeights returns the host copy of the ROI heights, one per sample.
func (b *Batch) ROIHeights() []uint32 { return b.heights.Host() }

// SyncROI uploads the ROI widths and heights.
func (b *Batch) SyncROI() error {
	if err := b.widths.Sync(); err != nil {
		return errors.WithMessagef(err, "batch %q ROI widths", b.name)
	}
	if err := b.heights.Sync(); err != nil {
		return errors.WithMessagef(err, "batch %q ROI heights", b.name)
	}
	return nil
}

// PixelBuffer returns the device buffer with the pixels.
func (b *Batch) PixelBuffer() (backends.Buffer, error) { return b.pixels.Buffer() }

// ROIWidthBuffer returns the device buffer with the ROI widths.
func (b *Batch) ROIWidthBuffer() (backends.Buffer, error) { return b.widths.Buffer() }

// ROIHeightBuffer returns the device buffer with the ROI heights.
func (b *Batch) ROIHeightBuffer() (backends.Buffer, error) { return b.heights.Buffer() }

// Load writes img into slot i of the host pixels and sets its ROI.
//
// Images larger than the slot capacity are downsized to fit, preserving their aspect ratio.
// The rest of the slot is cleared.
func (b *Batch) Load(i int, img image.Image) error {
	if !b.pixels.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "batch %q: Load()", b.name)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return errs.Errorf(errs.ErrGeometry, "batch %q: Load(#%d) of an empty image", b.name, i)
	}
	var nrgba *image.NRGBA
	if bounds.Dx() > b.info.Width || bounds.Dy() > b.info.Height {
		nrgba = imaging.Fit(img, b.info.Width, b.info.Height, imaging.Lanczos)
	} else {
		nrgba = imaging.Clone(img)
	}
	dims := roi.Dims{Width: uint32(nrgba.Bounds().Dx()), Height: uint32(nrgba.Bounds().Dy())}
	if err := b.SetROI(i, dims); err != nil {
		return err
	}
	FromNRGBA(nrgba, b.pixels.Host(), b.info.Desc(), i)
	return nil
}

// Upload pushes the host pixels and ROIs to the device.
func (b *Batch) Upload() error {
	if err := b.pixels.Sync(); err != nil {
		return errors.WithMessagef(err, "batch %q pixels", b.name)
	}
	return b.SyncROI()
}

// Download fetches the device pixels and ROIs back into the host copies.
func (b *Batch) Download() error {
	if err := b.pixels.Download(); err != nil {
		return errors.WithMessagef(err, "batch %q pixels", b.name)
	}
	if err := b.widths.Download(); err != nil {
		return errors.WithMessagef(err, "batch %q ROI widths", b.name)
	}
	if err := b.heights.Download(); err != nil {
		return errors.WithMessagef(err, "batch %q ROI heights", b.name)
	}
	return nil
}

// Image returns the ROI of sample i, from the host copy of the pixels, as a new image.
func (b *Batch) Image(i int) (*image.NRGBA, error) {
	if !b.pixels.IsBuilt() {
		return nil, errs.Errorf(errs.ErrNotBuilt, "batch %q: Image()", b.name)
	}
	if i < 0 || i >= b.info.BatchSize {
		return nil, errs.Errorf(errs.ErrGeometry, "batch %q: sample #%d out of range [0, %d)", b.name, i, b.info.BatchSize)
	}
	dims := b.ROI(i)
	if !dims.Valid() || !dims.Fits(b.info.Capacity()) {
		return nil, errs.Errorf(errs.ErrGeometry, "batch %q: sample #%d has invalid ROI %s", b.name, i, dims)
	}
	return ToNRGBA(b.pixels.Host(), b.info.Desc(), i, int(dims.Width), int(dims.Height)), nil
}

// Finalize releases the pixel and ROI device buffers together.
func (b *Batch) Finalize() error {
	var firstErr error
	for _, err := range []error{b.pixels.Finalize(), b.widths.Finalize(), b.heights.Finalize()} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ToNRGBA converts the top-left width x height region of a sample slot to an NRGBA image.
// Gray and RGB samples get an opaque alpha channel.
func ToNRGBA(pix []uint8, desc backends.ImageDesc, sample, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	base := sample * desc.SampleSize()
	channels := desc.Channels
	for y := range height {
		row := pix[base+y*desc.Width*channels:]
		out := img.Pix[y*img.Stride:]
		for x := range width {
			p := row[x*channels : x*channels+channels]
			o := out[x*4 : x*4+4]
			switch channels {
			case 1:
				o[0], o[1], o[2], o[3] = p[0], p[0], p[0], 255
			case 3:
				o[0], o[1], o[2], o[3] = p[0], p[1], p[2], 255
			default:
				copy(o, p[:4])
			}
		}
	}
	return img
}

// FromNRGBA writes the image into the top-left corner of a sample slot, clearing the rest of the slot.
// Content beyond the slot capacity is dropped. Gray samples take the luminance of the pixels.
func FromNRGBA(img *image.NRGBA, pix []uint8, desc backends.ImageDesc, sample int) {
	base := sample * desc.SampleSize()
	slot := pix[base : base+desc.SampleSize()]
	clear(slot)
	channels := desc.Channels
	bounds := img.Bounds()
	width, height := min(bounds.Dx(), desc.Width), min(bounds.Dy(), desc.Height)
	for y := range height {
		row := slot[y*desc.Width*channels:]
		in := img.Pix[y*img.Stride:]
		for x := range width {
			p := row[x*channels : x*channels+channels]
			i := in[x*4 : x*4+4]
			switch channels {
			case 1:
				p[0] = color.GrayModel.Convert(color.NRGBA{R: i[0], G: i[1], B: i[2], A: 255}).(color.Gray).Y
			case 3:
				p[0], p[1], p[2] = i[0], i[1], i[2]
			default:
				copy(p, i)
			}
		}
	}
}
