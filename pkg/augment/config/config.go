// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config describes augmentation pipelines in YAML, and builds them.
//
// Example:
//
//	backend: "go:parallelism=4"
//	seed: 42
//	batch_size: 8
//	input: {width: 640, height: 480, channels: 3}
//	nodes:
//	  - name: crop
//	    type: crop_resize
//	    width: 224
//	    height: 224
//	    area: {uniform: [0.08, 1.0]}
//	    aspect_ratio: {fixed: 1.0}
//	  - name: flip
//	    type: flip
//	    axis: {values: [0, 1, 2], frequencies: [2, 1, 1]}
//
// Each node reads the output of the previous node (or the input, for the first one), unless "input" names
// another batch. Its output batch is named after the node, unless "output" is given.
package config

import (
	"bytes"
	"os"
	"slices"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/augment/nodes"
	"github.com/gomlx/augment/pkg/augment/params"
	"github.com/gomlx/augment/pkg/augment/pipeline"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// InputName is the name of the pipeline input batch.
const InputName = "input"

// Node types.
const (
	TypeCropResize        = "crop_resize"
	TypeFlip              = "flip"
	TypeSequenceRearrange = "sequence_rearrange"
)

// Config describes a pipeline.
type Config struct {
	// Backend configuration, as in backends.NewWithConfig. If empty, backends.New is used, which
	// honors the $AUGMENT_BACKEND environment variable.
	Backend string `yaml:"backend,omitempty"`

	// Seed of the random parameters. If 0, a random seed is used.
	Seed uint64 `yaml:"seed,omitempty"`

	// BatchSize is the number of samples (images or frames) per batch.
	BatchSize int `yaml:"batch_size"`

	Input InputConfig  `yaml:"input"`
	Nodes []NodeConfig `yaml:"nodes"`
}

// InputConfig describes the capacity of the input batch.
type InputConfig struct {
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	Channels int `yaml:"channels"`

	// SequenceLength is the number of frames per sequence, for video inputs.
	SequenceLength int `yaml:"sequence_length,omitempty"`
}

// NodeConfig describes one node. Which fields are used depends on Type.
type NodeConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Input  string `yaml:"input,omitempty"`
	Output string `yaml:"output,omitempty"`

	// crop_resize
	Width       int          `yaml:"width,omitempty"`
	Height      int          `yaml:"height,omitempty"`
	Area        *ParamConfig `yaml:"area,omitempty"`
	AspectRatio *ParamConfig `yaml:"aspect_ratio,omitempty"`
	XDrift      *ParamConfig `yaml:"x_drift,omitempty"`
	YDrift      *ParamConfig `yaml:"y_drift,omitempty"`

	// flip
	Axis *ParamConfig `yaml:"axis,omitempty"`

	// sequence_rearrange: SequenceLength defaults to the input's.
	NewOrder       []uint32 `yaml:"new_order,omitempty"`
	SequenceLength int      `yaml:"sequence_length,omitempty"`
}

// ParamConfig describes a parameter: exactly one of Fixed, Uniform or Values (with Frequencies) must be set.
type ParamConfig struct {
	Fixed       *float64  `yaml:"fixed,omitempty"`
	Uniform     []float64 `yaml:"uniform,omitempty"`
	Values      []float64 `yaml:"values,omitempty"`
	Frequencies []float64 `yaml:"frequencies,omitempty"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pipeline configuration %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "pipeline configuration %q", path)
	}
	return cfg, nil
}

// Parse parses and validates a YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, errs.Errorf(errs.ErrConfiguration, "failed to parse YAML: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal returns the YAML representation of the configuration.
func (cfg *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate checks the configuration for errors that don't require building it.
func (cfg *Config) Validate() error {
	if cfg.BatchSize <= 0 {
		return errs.Errorf(errs.ErrConfiguration, "batch_size must be > 0, got %d", cfg.BatchSize)
	}
	if err := cfg.inputInfo().Validate(); err != nil {
		return errors.WithMessage(err, "input")
	}
	if seqLen := cfg.Input.SequenceLength; seqLen < 0 || (seqLen > 0 && cfg.BatchSize%seqLen != 0) {
		return errs.Errorf(errs.ErrConfiguration, "input sequence_length %d must divide batch_size %d", seqLen, cfg.BatchSize)
	}
	if len(cfg.Nodes) == 0 {
		return errs.Errorf(errs.ErrConfiguration, "no nodes configured")
	}
	names := []string{InputName}
	for ii, node := range cfg.Nodes {
		if node.Name == "" {
			return errs.Errorf(errs.ErrConfiguration, "node #%d has no name", ii)
		}
		if slices.Contains(names, node.Name) {
			return errs.Errorf(errs.ErrConfiguration, "node #%d: name %q used more than once", ii, node.Name)
		}
		names = append(names, node.Name)
		if err := node.validate(); err != nil {
			return errors.WithMessagef(err, "node #%d (%q)", ii, node.Name)
		}
	}
	return nil
}

func (cfg *Config) inputInfo() images.Info {
	return images.Info{Width: cfg.Input.Width, Height: cfg.Input.Height, Channels: cfg.Input.Channels, BatchSize: cfg.BatchSize}
}

func (node *NodeConfig) validate() error {
	var paramConfigs []*ParamConfig
	switch node.Type {
	case TypeCropResize:
		if node.Width <= 0 || node.Height <= 0 {
			return errs.Errorf(errs.ErrInvalidDestination, "crop_resize width=%d and height=%d must be > 0", node.Width, node.Height)
		}
		paramConfigs = []*ParamConfig{node.Area, node.AspectRatio, node.XDrift, node.YDrift}
	case TypeFlip:
		paramConfigs = []*ParamConfig{node.Axis}
	case TypeSequenceRearrange:
		if len(node.NewOrder) == 0 {
			return errs.Errorf(errs.ErrInvalidOrder, "sequence_rearrange requires new_order")
		}
	default:
		return errs.Errorf(errs.ErrConfiguration, "unknown node type %q, valid types are %q", node.Type,
			[]string{TypeCropResize, TypeFlip, TypeSequenceRearrange})
	}
	for _, pc := range paramConfigs {
		if pc == nil {
			continue
		}
		if err := pc.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (pc *ParamConfig) validate() error {
	count := 0
	if pc.Fixed != nil {
		count++
	}
	if pc.Uniform != nil {
		count++
		if len(pc.Uniform) != 2 {
			return errs.Errorf(errs.ErrInvalidRange, "uniform must be a [lo, hi] pair, got %v", pc.Uniform)
		}
	}
	if pc.Values != nil {
		count++
	}
	if pc.Frequencies != nil && pc.Values == nil {
		return errs.Errorf(errs.ErrConfiguration, "frequencies given without values")
	}
	if count != 1 {
		return errs.Errorf(errs.ErrConfiguration, "exactly one of fixed, uniform or values must be given")
	}
	return nil
}

// newParam creates the parameter described by pc. It returns nil for a nil pc.
func newParam[T dtypes.NumberNotComplex](f *params.Factory, pc *ParamConfig) (params.Parameter[T], error) {
	if pc == nil {
		return nil, nil
	}
	if err := pc.validate(); err != nil {
		return nil, err
	}
	switch {
	case pc.Fixed != nil:
		return params.NewFixed(T(*pc.Fixed)), nil
	case pc.Uniform != nil:
		return params.NewUniform(f, T(pc.Uniform[0]), T(pc.Uniform[1]))
	default:
		values := make([]T, len(pc.Values))
		for ii, v := range pc.Values {
			values[ii] = T(v)
		}
		frequencies := pc.Frequencies
		if frequencies == nil {
			frequencies = make([]float64, len(values))
			for ii := range frequencies {
				frequencies[ii] = 1
			}
		}
		return params.NewCustomFromValues(f, values, frequencies)
	}
}

// NewBackend returns the backend selected by the configuration.
func NewBackend(cfg *Config) (backends.Backend, error) {
	if cfg.Backend == "" {
		return backends.New()
	}
	return backends.NewWithConfig(cfg.Backend)
}

// Build creates and builds the pipeline described by the configuration, on the given backend.
// The caller owns the backend: it is not finalized by Pipeline.Finalize.
func Build(backend backends.Backend, cfg *Config) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var factory *params.Factory
	if cfg.Seed != 0 {
		factory = params.NewFactory(cfg.Seed)
	}
	p, err := pipeline.New(backend, cfg.BatchSize, factory)
	if err != nil {
		return nil, err
	}
	if err := assemble(p, cfg); err != nil {
		_ = p.Finalize()
		return nil, err
	}
	if err := p.Build(); err != nil {
		_ = p.Finalize()
		return nil, err
	}
	klog.V(1).Infof("pipeline %s built from configuration with %d nodes", p.ID(), len(cfg.Nodes))
	return p, nil
}

// assemble creates the batches and nodes of the pipeline.
func assemble(p *pipeline.Pipeline, cfg *Config) error {
	input, err := p.NewInput(InputName, cfg.inputInfo())
	if err != nil {
		return err
	}
	// Sequence length of each batch, for sequence_rearrange nodes.
	seqLengths := map[string]int{InputName: cfg.Input.SequenceLength}
	previous := input
	for _, nc := range cfg.Nodes {
		in := previous
		if nc.Input != "" {
			if in = p.Batch(nc.Input); in == nil {
				return errs.Errorf(errs.ErrConfiguration, "node %q: unknown input %q", nc.Name, nc.Input)
			}
		}
		outName := nc.Output
		if outName == "" {
			outName = nc.Name
		}
		inInfo := in.Info()
		var node nodes.Node
		var out *images.Batch
		switch nc.Type {
		case TypeCropResize:
			outInfo := images.Info{Width: nc.Width, Height: nc.Height, Channels: inInfo.Channels, BatchSize: inInfo.BatchSize}
			if out, err = p.NewImage(outName, outInfo); err != nil {
				return err
			}
			seqLengths[outName] = seqLengths[in.Name()]
			node, err = newCropResize(p, &nc, in, out)
		case TypeFlip:
			if out, err = p.NewImage(outName, inInfo); err != nil {
				return err
			}
			seqLengths[outName] = seqLengths[in.Name()]
			node, err = newFlip(p, &nc, in, out)
		case TypeSequenceRearrange:
			seqLen := nc.SequenceLength
			if seqLen == 0 {
				seqLen = seqLengths[in.Name()]
			}
			if seqLen <= 0 || inInfo.BatchSize%seqLen != 0 {
				return errs.Errorf(errs.ErrInvalidOrder, "node %q: sequence length %d doesn't divide the %d frames of batch %q",
					nc.Name, seqLen, inInfo.BatchSize, in.Name())
			}
			count := inInfo.BatchSize / seqLen
			outInfo := inInfo
			outInfo.BatchSize = count * len(nc.NewOrder)
			if out, err = p.NewImage(outName, outInfo); err != nil {
				return err
			}
			seqLengths[outName] = len(nc.NewOrder)
			node, err = newSequenceRearrange(&nc, in, out, seqLen, count)
		}
		if err != nil {
			return err
		}
		if err = p.Add(node); err != nil {
			return err
		}
		previous = out
	}
	return nil
}

func newCropResize(p *pipeline.Pipeline, nc *NodeConfig, in, out *images.Batch) (nodes.Node, error) {
	n, err := nodes.NewCropResize(p.Factory(), nc.Name, in, out, nc.Width, nc.Height)
	if err != nil {
		return nil, err
	}
	var ps [4]params.Parameter[float32]
	for ii, pc := range []*ParamConfig{nc.Area, nc.AspectRatio, nc.XDrift, nc.YDrift} {
		if ps[ii], err = newParam[float32](p.Factory(), pc); err != nil {
			return nil, errors.WithMessagef(err, "node %q", nc.Name)
		}
	}
	if err = n.InitParams(ps[0], ps[1], ps[2], ps[3]); err != nil {
		return nil, err
	}
	return n, nil
}

func newFlip(p *pipeline.Pipeline, nc *NodeConfig, in, out *images.Batch) (nodes.Node, error) {
	n, err := nodes.NewFlip(p.Factory(), nc.Name, in, out)
	if err != nil {
		return nil, err
	}
	axis, err := newParam[uint32](p.Factory(), nc.Axis)
	if err != nil {
		return nil, errors.WithMessagef(err, "node %q", nc.Name)
	}
	if axis != nil {
		if err = n.InitParam(axis); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func newSequenceRearrange(nc *NodeConfig, in, out *images.Batch, seqLen, count int) (nodes.Node, error) {
	n, err := nodes.NewSequenceRearrange(nc.Name, in, out)
	if err != nil {
		return nil, err
	}
	if err = n.Init(nc.NewOrder, len(nc.NewOrder), seqLen, count); err != nil {
		return nil, err
	}
	return n, nil
}
