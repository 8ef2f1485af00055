// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nodes

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/backends/simplego"
	"github.com/gomlx/augment/pkg/augment/params"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/gomlx/augment/pkg/core/roi"
	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T) backends.Graph {
	backend := must.M1(simplego.New(""))
	t.Cleanup(backend.Finalize)
	return backend.NewGraph(t.Name())
}

func newBatch(t *testing.T, graph backends.Graph, name string, info images.Info) *images.Batch {
	b := must.M1(images.New(graph.Backend(), name, info))
	t.Cleanup(func() { _ = b.Finalize() })
	return b
}

// solid returns an image of the given size and color.
func solid(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestFlipLifecycle(t *testing.T) {
	graph := newGraph(t)
	info := images.Info{Width: 4, Height: 4, Channels: 3, BatchSize: 2}
	input, output := newBatch(t, graph, "input", info), newBatch(t, graph, "output", info)
	n := must.M1(NewFlip(params.NewFactory(0), "flip", input, output))

	require.ErrorIs(t, n.Refresh(), errs.ErrNotBuilt)
	assert.False(t, n.IsBuilt())
	assert.Nil(t, n.Invocation())

	require.NoError(t, n.Build(graph))
	invocation := n.Invocation()
	require.NotNil(t, invocation)
	assert.Equal(t, backends.KernelFlip, invocation.Kernel())
	memory := n.Memory()

	// Second build is a no-op.
	require.NoError(t, n.Build(graph))
	assert.Len(t, graph.Invocations(), 1)
	assert.Equal(t, invocation.ID(), n.Invocation().ID())
	assert.Equal(t, memory, n.Memory())

	require.ErrorIs(t, n.Init(FlipVertical), errs.ErrLateConfiguration)
	require.NoError(t, n.Refresh())
	for _, axis := range n.Axes() {
		assert.Contains(t, []FlipAxis{FlipNone, FlipHorizontal}, axis)
	}

	require.NoError(t, n.Finalize())
	assert.False(t, n.IsBuilt())
	assert.Empty(t, graph.Invocations())
}

func TestFlipInit(t *testing.T) {
	graph := newGraph(t)
	info := images.Info{Width: 3, Height: 2, Channels: 1, BatchSize: 2}
	input, output := newBatch(t, graph, "input", info), newBatch(t, graph, "output", info)
	f := params.NewFactory(1)
	n := must.M1(NewFlip(f, "flip", input, output))

	require.ErrorIs(t, n.Init(FlipAxis(4)), errs.ErrInvalidRange)
	require.ErrorIs(t, n.InitParam(must.M1(params.NewUniform[uint32](f, 0, 7))), errs.ErrInvalidRange)
	require.NoError(t, n.InitParam(must.M1(params.NewUniform[uint32](f, 0, 3))))
	require.NoError(t, n.Init(FlipHorizontal))

	// Gray pixels 0..5 in a 3x2 image, flipped horizontally.
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(gray.Pix, []uint8{0, 1, 2, 3, 4, 5})
	require.NoError(t, input.Load(0, gray))
	require.NoError(t, input.Load(1, gray))
	require.NoError(t, input.SetROI(1, roi.Dims{Width: 2, Height: 2}))
	require.NoError(t, input.Upload())

	require.NoError(t, n.Build(graph))
	require.NoError(t, n.Refresh())
	require.NoError(t, graph.Execute(context.Background()))
	require.NoError(t, output.Download())
	assert.Equal(t, input.ROI(1), output.ROI(1))

	img0 := must.M1(output.Image(0))
	img1 := must.M1(output.Image(1))
	r, _, _, _ := img0.At(0, 0).RGBA()
	assert.Equal(t, uint32(2*0x101), r)
	r, _, _, _ = img1.At(0, 1).RGBA()
	assert.Equal(t, uint32(4*0x101), r, "only the 2x2 ROI of sample #1 is flipped")
}

func TestCropResize(t *testing.T) {
	graph := newGraph(t)
	input := newBatch(t, graph, "input", images.Info{Width: 200, Height: 200, Channels: 3, BatchSize: 2})
	output := newBatch(t, graph, "output", images.Info{Width: 32, Height: 32, Channels: 3, BatchSize: 2})
	f := params.NewFactory(2)

	// Left half red, right half blue.
	img := solid(200, 100, color.NRGBA{R: 255, A: 255})
	for y := range 100 {
		for x := 100; x < 200; x++ {
			img.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
		}
	}
	require.NoError(t, input.Load(0, img))
	require.NoError(t, input.Load(1, solid(50, 80, color.NRGBA{G: 255, A: 255})))
	require.NoError(t, input.Upload())

	n := must.M1(NewCropResize(f, "crop", input, output, 16, 8))
	require.ErrorIs(t, n.Refresh(), errs.ErrNotBuilt)
	require.NoError(t, n.Init(1, 1, 0.5, 0.5))
	require.NoError(t, n.Build(graph))
	require.ErrorIs(t, n.Init(1, 1, 0, 0), errs.ErrLateConfiguration)
	require.NoError(t, n.Refresh())

	// Largest centered square inside 200x100.
	assert.Equal(t, roi.Rect{X1: 50, Y1: 0, X2: 150, Y2: 100}, n.Rect(0))
	assert.Equal(t, roi.Rect{X1: 0, Y1: 15, X2: 50, Y2: 65}, n.Rect(1))
	assert.Equal(t, roi.Dims{Width: 16, Height: 8}, output.ROI(0))

	require.NoError(t, graph.Execute(context.Background()))
	require.NoError(t, output.Download())
	out0 := must.M1(output.Image(0))
	require.Equal(t, image.Rect(0, 0, 16, 8), out0.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out0.NRGBAAt(0, 4))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out0.NRGBAAt(15, 4))
	out1 := must.M1(output.Image(1))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out1.NRGBAAt(8, 4))

	// Random crops are always inside the input ROI.
	require.NoError(t, n.Finalize())
	n = must.M1(NewCropResize(f, "crop", input, output, 16, 8))
	require.NoError(t, n.Build(graph))
	for range 50 {
		require.NoError(t, n.Refresh())
		for ii := range 2 {
			require.True(t, n.Rect(ii).Inside(input.ROI(ii)))
		}
		require.NoError(t, graph.Execute(context.Background()))
	}
	require.NoError(t, n.Finalize())
}

func TestCropResizeInvalidDestination(t *testing.T) {
	graph := newGraph(t)
	info := images.Info{Width: 8, Height: 8, Channels: 3, BatchSize: 1}
	input, output := newBatch(t, graph, "input", info), newBatch(t, graph, "output", info)
	f := params.NewFactory(3)
	for _, dst := range [][2]int{{0, 4}, {4, 0}, {9, 4}} {
		n := must.M1(NewCropResize(f, "crop", input, output, dst[0], dst[1]))
		err := n.Build(graph)
		require.ErrorIs(t, err, errs.ErrInvalidDestination, "destination %v", dst)
		require.ErrorIs(t, err, errs.ErrConfiguration)
		assert.False(t, n.IsBuilt())
	}
	assert.Empty(t, graph.Invocations())
}

func TestSequenceRearrange(t *testing.T) {
	graph := newGraph(t)
	info := images.Info{Width: 2, Height: 2, Channels: 1, BatchSize: 12}
	input, output := newBatch(t, graph, "input", info), newBatch(t, graph, "output", info)

	n := must.M1(NewSequenceRearrange("rearrange", input, output))
	require.ErrorIs(t, n.Build(graph), errs.ErrConfiguration)
	require.ErrorIs(t, n.Init([]uint32{3}, 1, 3, 4), errs.ErrInvalidOrder)
	require.ErrorIs(t, n.Init([]uint32{2, 0}, 3, 3, 4), errs.ErrInvalidOrder)
	require.ErrorIs(t, n.Init([]uint32{0}, 1, 3, 0), errs.ErrInvalidOrder)
	require.ErrorIs(t, n.Init(nil, 0, 3, 4), errs.ErrInvalidOrder)
	require.NoError(t, n.Init([]uint32{2, 0, 1}, 3, 3, 4))
	require.NoError(t, n.Build(graph))
	require.ErrorIs(t, n.Init([]uint32{0, 1, 2}, 3, 3, 4), errs.ErrLateConfiguration)

	want := []uint32{2, 0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1}
	if diff := cmp.Diff(want, n.Order()); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	device := make([]uint32, 12)
	require.NoError(t, graph.Backend().BufferToFlatData(must.M1(n.order.Buffer()), device))
	assert.Equal(t, want, device)

	// Frame i is filled with value i, and has ROI 1x1 for even frames.
	for frame := range 12 {
		gray := image.NewGray(image.Rect(0, 0, 2, 2))
		for ii := range gray.Pix {
			gray.Pix[ii] = uint8(frame)
		}
		require.NoError(t, input.Load(frame, gray))
		if frame%2 == 0 {
			require.NoError(t, input.SetROI(frame, roi.Dims{Width: 1, Height: 1}))
		}
	}
	require.NoError(t, input.Upload())
	require.NoError(t, n.Refresh())
	require.NoError(t, graph.Execute(context.Background()))
	require.NoError(t, output.Download())
	for frame := range 12 {
		srcFrame := frame/3*3 + int(want[frame])
		img := must.M1(output.Image(frame))
		assert.Equal(t, uint8(srcFrame), img.Pix[0], "frame #%d", frame)
		assert.Equal(t, input.ROI(srcFrame), output.ROI(frame), "frame #%d", frame)
	}

	// Order is static across refreshes.
	require.NoError(t, n.Refresh())
	assert.Equal(t, want, n.Order())
	require.NoError(t, n.Finalize())
}

func TestSequenceRearrangeBatchMismatch(t *testing.T) {
	graph := newGraph(t)
	input := newBatch(t, graph, "input", images.Info{Width: 2, Height: 2, Channels: 1, BatchSize: 6})
	output := newBatch(t, graph, "output", images.Info{Width: 2, Height: 2, Channels: 1, BatchSize: 4})
	n := must.M1(NewSequenceRearrange("rearrange", input, output))
	require.NoError(t, n.Init([]uint32{1, 0}, 2, 3, 2))
	require.NoError(t, n.Build(graph))
	require.NoError(t, n.Finalize())

	n = must.M1(NewSequenceRearrange("rearrange", input, output))
	require.NoError(t, n.Init([]uint32{1, 0, 2}, 3, 3, 2))
	require.ErrorIs(t, n.Build(graph), errs.ErrConfiguration)
	assert.False(t, n.IsBuilt())
}

func TestNewNodeErrors(t *testing.T) {
	graph := newGraph(t)
	info := images.Info{Width: 2, Height: 2, Channels: 1, BatchSize: 1}
	input := newBatch(t, graph, "input", info)
	_, err := NewFlip(params.NewFactory(0), "flip", input, nil)
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = NewSequenceRearrange("rearrange", input, input)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestNilFactory(t *testing.T) {
	graph := newGraph(t)
	info := images.Info{Width: 4, Height: 4, Channels: 3, BatchSize: 2}
	input := newBatch(t, graph, "input", info)
	flipped := newBatch(t, graph, "flipped", info)
	cropped := newBatch(t, graph, "cropped", info)
	flip := must.M1(NewFlip(nil, "flip", input, flipped))
	crop := must.M1(NewCropResize(nil, "crop", input, cropped, 2, 2))
	for _, node := range []Node{flip, crop} {
		require.NoError(t, node.Build(graph))
		require.NoError(t, node.Refresh())
		require.NoError(t, node.Finalize())
	}
}

func TestFlipAxisString(t *testing.T) {
	assert.Equal(t, "Horizontal", FlipHorizontal.String())
	assert.Equal(t, "FlipAxis(9)", FlipAxis(9).String())
	axis, err := FlipAxisString("vertical")
	require.NoError(t, err)
	assert.Equal(t, FlipVertical, axis)
}
