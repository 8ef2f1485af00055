// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"context"
	"testing"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upload creates a buffer with the given values.
func upload[T uint8 | uint32](t *testing.T, values ...T) backends.Buffer {
	t.Helper()
	buffer := must.M1(backend.NewBuffer(0, dtypes.FromGenericsType[T](), len(values)))
	require.NoError(t, backend.BufferUpload(buffer, values))
	t.Cleanup(func() { _ = backend.BufferFinalize(buffer) })
	return buffer
}

func download[T uint8 | uint32](t *testing.T, buffer backends.Buffer) []T {
	t.Helper()
	flat := make([]T, must.M1(backend.BufferLength(buffer)))
	require.NoError(t, backend.BufferToFlatData(buffer, flat))
	return flat
}

func newTestGraph(t *testing.T) backends.Graph {
	graph := backend.NewGraph(t.Name())
	t.Cleanup(func() { _ = graph.Finalize() })
	return graph
}

func TestFlipKernel(t *testing.T) {
	desc := backends.ImageDesc{Width: 3, Height: 2, Channels: 1, BatchSize: 2}
	src := upload[uint8](t,
		1, 2, 3, 4, 5, 6,
		1, 2, 9, 4, 5, 9)
	dst := upload(t, make([]uint8, 12)...)
	widths, heights := upload[uint32](t, 3, 2), upload[uint32](t, 2, 2)
	axes := upload[uint32](t, 1, 2)
	graph := newTestGraph(t)
	inv := must.M1(graph.AddKernel(backends.Binding{
		Kernel: backends.KernelFlip, Src: src, Dst: dst, SrcDesc: desc, DstDesc: desc,
		Arrays: map[backends.ArrayRole]backends.Buffer{
			backends.RoleSrcROIWidth: widths, backends.RoleSrcROIHeight: heights,
			backends.RoleDstROIWidth: widths, backends.RoleDstROIHeight: heights,
			backends.RoleFlipAxis: axes,
		},
	}))
	assert.Equal(t, backends.KernelFlip, inv.Kernel())
	require.NoError(t, graph.Execute(context.Background()))

	// Second sample has a 2x2 ROI: values outside of it are cleared.
	assert.Equal(t, []uint8{
		3, 2, 1, 6, 5, 4,
		4, 5, 0, 1, 2, 0,
	}, download[uint8](t, dst))

	// Both axes.
	require.NoError(t, backend.BufferUpload(axes, []uint32{3, 0}))
	require.NoError(t, graph.Execute(context.Background()))
	assert.Equal(t, []uint8{
		6, 5, 4, 3, 2, 1,
		1, 2, 0, 4, 5, 0,
	}, download[uint8](t, dst))

	// Invalid axis value fails at execution.
	require.NoError(t, backend.BufferUpload(axes, []uint32{7, 0}))
	require.Error(t, graph.Execute(context.Background()))
}

func TestResizeCropKernel(t *testing.T) {
	srcDesc := backends.ImageDesc{Width: 4, Height: 2, Channels: 3, BatchSize: 1}
	dstDesc := backends.ImageDesc{Width: 3, Height: 3, Channels: 3, BatchSize: 1}
	pixels := make([]uint8, 0, srcDesc.SampleSize())
	for range srcDesc.Height {
		pixels = append(pixels, 100, 0, 0, 100, 0, 0, 0, 200, 0, 0, 200, 0)
	}
	src := upload(t, pixels...)
	dst := upload(t, make([]uint8, dstDesc.SampleSize())...)
	graph := newTestGraph(t)
	must.M1(graph.AddKernel(backends.Binding{
		Kernel: backends.KernelResizeCrop, Src: src, Dst: dst, SrcDesc: srcDesc, DstDesc: dstDesc,
		Arrays: map[backends.ArrayRole]backends.Buffer{
			backends.RoleSrcROIWidth: upload[uint32](t, 4), backends.RoleSrcROIHeight: upload[uint32](t, 2),
			backends.RoleDstROIWidth: upload[uint32](t, 3), backends.RoleDstROIHeight: upload[uint32](t, 2),
			backends.RoleX1: upload[uint32](t, 2), backends.RoleY1: upload[uint32](t, 0),
			backends.RoleX2: upload[uint32](t, 4), backends.RoleY2: upload[uint32](t, 2),
		},
	}))
	require.NoError(t, graph.Execute(context.Background()))
	got := download[uint8](t, dst)
	for y := range 3 {
		for x := range 3 {
			p := got[(y*3+x)*3 : (y*3+x)*3+3]
			if y < 2 {
				assert.Equal(t, []uint8{0, 200, 0}, p, "pixel (%d, %d)", x, y)
			} else {
				assert.Equal(t, []uint8{0, 0, 0}, p, "pixel (%d, %d) is outside the ROI", x, y)
			}
		}
	}
}

func TestSequenceRearrangeKernel(t *testing.T) {
	srcDesc := backends.ImageDesc{Width: 1, Height: 1, Channels: 1, BatchSize: 4}
	dstDesc := backends.ImageDesc{Width: 1, Height: 1, Channels: 1, BatchSize: 6}
	src := upload[uint8](t, 10, 11, 20, 21)
	dst := upload(t, make([]uint8, 6)...)
	ones := upload[uint32](t, 1, 1, 1, 1)
	dstOnes := upload[uint32](t, 1, 1, 1, 1, 1, 1)
	graph := newTestGraph(t)
	binding := backends.Binding{
		Kernel: backends.KernelSequenceRearrange, Src: src, Dst: dst, SrcDesc: srcDesc, DstDesc: dstDesc,
		Arrays: map[backends.ArrayRole]backends.Buffer{
			backends.RoleSrcROIWidth: ones, backends.RoleSrcROIHeight: ones,
			backends.RoleDstROIWidth: dstOnes, backends.RoleDstROIHeight: dstOnes,
			backends.RoleSequenceOrder: upload[uint32](t, 1, 0, 1, 1, 0, 1),
		},
		SequenceLength:    2,
		NewSequenceLength: 3,
	}
	must.M1(graph.AddKernel(binding))
	require.NoError(t, graph.Execute(context.Background()))
	assert.Equal(t, []uint8{11, 10, 11, 21, 20, 21}, download[uint8](t, dst))

	// Batch sizes must match the sequence lengths.
	binding.NewSequenceLength = 2
	_, err := graph.AddKernel(binding)
	require.ErrorIs(t, err, errs.ErrAllocation)
}

func TestGraph(t *testing.T) {
	desc := backends.ImageDesc{Width: 2, Height: 1, Channels: 1, BatchSize: 1}
	one, two := upload[uint32](t, 1), upload[uint32](t, 2)
	binding := backends.Binding{
		Kernel: backends.KernelFlip, Src: upload[uint8](t, 1, 2), Dst: upload[uint8](t, 0, 0),
		SrcDesc: desc, DstDesc: desc,
		Arrays: map[backends.ArrayRole]backends.Buffer{
			backends.RoleSrcROIWidth: two, backends.RoleSrcROIHeight: one,
			backends.RoleDstROIWidth: two, backends.RoleDstROIHeight: one,
			backends.RoleFlipAxis: one,
		},
	}
	graph := newTestGraph(t)
	assert.Equal(t, t.Name(), graph.Name())
	assert.Equal(t, backend, graph.Backend())

	t.Run("invalid bindings", func(t *testing.T) {
		missing := binding
		missing.Arrays = map[backends.ArrayRole]backends.Buffer{backends.RoleFlipAxis: one}
		_, err := graph.AddKernel(missing)
		require.ErrorIs(t, err, errs.ErrAllocation)

		wrongLength := binding
		wrongLength.DstDesc.Width = 3
		_, err = graph.AddKernel(wrongLength)
		require.ErrorIs(t, err, errs.ErrAllocation)

		wrongDType := binding
		wrongDType.Src = upload[uint32](t, 1, 2)
		_, err = graph.AddKernel(wrongDType)
		require.ErrorIs(t, err, errs.ErrAllocation)

		unknown := binding
		unknown.Kernel = backends.KernelInvalid
		_, err = graph.AddKernel(unknown)
		require.ErrorIs(t, err, errs.ErrAllocation)
		assert.Empty(t, graph.Invocations())
	})

	first := must.M1(graph.AddKernel(binding))
	second := must.M1(graph.AddKernel(binding))
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, []backends.Invocation{first, second}, graph.Invocations())

	// Changes to the binding after AddKernel don't affect the invocation.
	binding.Arrays[backends.RoleFlipAxis] = nil
	require.NoError(t, graph.Execute(context.Background()))
	assert.Equal(t, []uint8{2, 1}, download[uint8](t, binding.Dst))

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())
	assert.Equal(t, []backends.Invocation{second}, graph.Invocations())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, graph.Execute(ctx), context.Canceled)

	require.NoError(t, graph.Finalize())
	assert.Empty(t, graph.Invocations())
	require.Error(t, graph.Execute(context.Background()))
	binding.Arrays[backends.RoleFlipAxis] = one
	_, err := graph.AddKernel(binding)
	require.ErrorIs(t, err, errs.ErrAllocation)
}
