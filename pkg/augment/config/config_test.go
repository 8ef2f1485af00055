// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/backends/simplego"
	"github.com/gomlx/augment/pkg/augment/nodes"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageConfig = `
backend: "go:parallelism=2"
seed: 42
batch_size: 4
input: {width: 64, height: 48, channels: 3}
nodes:
  - name: crop
    type: crop_resize
    width: 16
    height: 16
    area: {uniform: [0.5, 1.0]}
    aspect_ratio: {fixed: 1.0}
  - name: flip
    type: flip
    axis: {values: [0, 1, 2, 3], frequencies: [1, 1, 1, 1]}
`

const videoConfig = `
seed: 7
batch_size: 6
input: {width: 8, height: 8, channels: 1, sequence_length: 3}
nodes:
  - name: reverse
    type: sequence_rearrange
    new_order: [2, 1, 0, 0]
  - name: flip
    type: flip
    axis: {fixed: 2}
`

func newBackend(t *testing.T, cfg *Config) backends.Backend {
	backend := must.M1(NewBackend(cfg))
	t.Cleanup(backend.Finalize)
	return backend
}

func TestParse(t *testing.T) {
	cfg := must.M1(Parse([]byte(imageConfig)))
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 4, cfg.BatchSize)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, []float64{0.5, 1.0}, cfg.Nodes[0].Area.Uniform)
	assert.Equal(t, 1.0, *cfg.Nodes[0].AspectRatio.Fixed)

	// Marshal and parse back.
	again := must.M1(Parse(must.M1(cfg.Marshal())))
	assert.Equal(t, cfg, again)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(imageConfig), 0o644))
	assert.Equal(t, cfg, must.M1(Load(path)))
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	const input = "batch_size: 2\ninput: {width: 8, height: 8, channels: 3}\n"
	for _, tc := range []struct {
		name, yaml string
		kind       error
	}{
		{"unknown field", input + "bogus: 1\nnodes: [{name: f, type: flip}]", errs.ErrConfiguration},
		{"no nodes", input, errs.ErrConfiguration},
		{"zero batch", "batch_size: 0\ninput: {width: 8, height: 8, channels: 3}\nnodes: [{name: f, type: flip}]", errs.ErrConfiguration},
		{"bad channels", "batch_size: 1\ninput: {width: 8, height: 8, channels: 2}\nnodes: [{name: f, type: flip}]", errs.ErrConfiguration},
		{"unknown type", input + "nodes: [{name: f, type: rotate}]", errs.ErrConfiguration},
		{"duplicate name", input + "nodes: [{name: f, type: flip}, {name: f, type: flip}]", errs.ErrConfiguration},
		{"reserved name", input + "nodes: [{name: input, type: flip}]", errs.ErrConfiguration},
		{"zero destination", input + "nodes: [{name: c, type: crop_resize, width: 0, height: 4}]", errs.ErrInvalidDestination},
		{"two param kinds", input + "nodes: [{name: f, type: flip, axis: {fixed: 1, uniform: [0, 1]}}]", errs.ErrConfiguration},
		{"bad uniform", input + "nodes: [{name: f, type: flip, axis: {uniform: [0]}}]", errs.ErrInvalidRange},
		{"no order", input + "nodes: [{name: s, type: sequence_rearrange}]", errs.ErrInvalidOrder},
		{"bad sequence length", "batch_size: 4\ninput: {width: 8, height: 8, channels: 3, sequence_length: 3}\nnodes: [{name: f, type: flip}]", errs.ErrConfiguration},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestBuildImagePipeline(t *testing.T) {
	cfg := must.M1(Parse([]byte(imageConfig)))
	backend := newBackend(t, cfg)
	assert.Contains(t, backend.Name(), simplego.BackendName)
	p := must.M1(Build(backend, cfg))
	defer func() { require.NoError(t, p.Finalize()) }()

	require.Len(t, p.Nodes(), 2)
	crop := p.Nodes()[0].(*nodes.CropResize)
	assert.Equal(t, "crop", crop.Name())
	assert.Equal(t, "crop", crop.Outputs()[0].Name())
	assert.Equal(t, "flip", p.Outputs()[0].Name())

	samples := make([]image.Image, 4)
	for ii := range samples {
		samples[ii] = imaging.New(40+ii*5, 30, color.NRGBA{R: 200, G: uint8(ii), A: 255})
	}
	require.NoError(t, p.Run(context.Background(), samples))
	for ii := range 4 {
		rect := crop.Rect(ii)
		assert.True(t, rect.Inside(p.Input().ROI(ii)))
		assert.InDelta(t, rect.Width(), rect.Height(), 1, "aspect ratio is fixed to 1")
	}
	out := must.M1(p.Output(0))
	img := must.M1(out.Image(3))
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 200, G: 3, A: 255}, img.NRGBAAt(8, 8))
}

func TestBuildVideoPipeline(t *testing.T) {
	cfg := must.M1(Parse([]byte(videoConfig)))
	backend := newBackend(t, cfg)
	p := must.M1(Build(backend, cfg))
	defer func() { require.NoError(t, p.Finalize()) }()

	// 2 sequences of 3 frames become 2 sequences of 4 frames.
	reverse := p.Nodes()[0].(*nodes.SequenceRearrange)
	assert.Equal(t, []uint32{2, 1, 0, 0, 2, 1, 0, 0}, reverse.Order())
	assert.Equal(t, 8, p.Batch("reverse").Info().BatchSize)
	assert.Equal(t, 8, p.Batch("flip").Info().BatchSize)

	samples := make([]image.Image, 6)
	for ii := range samples {
		samples[ii] = imaging.New(8, 8, color.NRGBA{R: uint8(10 * ii), G: uint8(10 * ii), B: uint8(10 * ii), A: 255})
	}
	require.NoError(t, p.Run(context.Background(), samples))
	out := must.M1(p.Output(0))
	for frame, src := range []int{2, 1, 0, 0, 5, 4, 3, 3} {
		img := must.M1(out.Image(frame))
		assert.Equal(t, uint8(10*src), img.Pix[0], "frame #%d", frame)
	}
}

func TestBuildErrors(t *testing.T) {
	cfg := must.M1(Parse([]byte(videoConfig)))
	backend := newBackend(t, cfg)

	noSeqLen := *cfg
	noSeqLen.Input.SequenceLength = 0
	_, err := Build(backend, &noSeqLen)
	require.ErrorIs(t, err, errs.ErrInvalidOrder)

	badOrder := *cfg
	badOrder.Nodes = []NodeConfig{{Name: "s", Type: TypeSequenceRearrange, NewOrder: []uint32{3}}}
	_, err = Build(backend, &badOrder)
	require.ErrorIs(t, err, errs.ErrInvalidOrder)

	unknownInput := *cfg
	unknownInput.Nodes = []NodeConfig{{Name: "f", Type: TypeFlip, Input: "nowhere"}}
	_, err = Build(backend, &unknownInput)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	badAxis := *cfg
	badAxis.Nodes = []NodeConfig{{Name: "f", Type: TypeFlip, Axis: &ParamConfig{Uniform: []float64{0, 5}}}}
	_, err = Build(backend, &badAxis)
	require.ErrorIs(t, err, errs.ErrInvalidRange)
}
