// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline assembles augmentation nodes into a graph and produces batches with them.
//
// A Pipeline owns its image batches and its backends.Graph. The typical use is:
//
//	p, err := pipeline.New(backend, batchSize, params.NewFactory(seed))
//	input, err := p.NewInput("input", images.Info{Width: 640, Height: 480, Channels: 3})
//	cropped, err := p.NewImage("cropped", images.Info{Width: 224, Height: 224, Channels: 3, BatchSize: batchSize})
//	crop, err := nodes.NewCropResize(p.Factory(), "crop", input, cropped, 224, 224)
//	err = p.Add(crop)
//	err = p.Build()
//	for ... {
//		err = p.Run(ctx, samples)
//		out, err := p.Output(0)
//		...
//	}
//	err = p.Finalize()
package pipeline

import (
	"context"
	"image"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/augment/nodes"
	"github.com/gomlx/augment/pkg/augment/params"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/augment/pkg/core/images"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pipeline sequences nodes over a backends.Graph.
type Pipeline struct {
	id        uuid.UUID
	backend   backends.Backend
	batchSize int
	factory   *params.Factory
	graph     backends.Graph

	input   *images.Batch
	batches []*images.Batch
	nodes   []nodes.Node

	built      bool
	numBatches int
}

// New creates an empty Pipeline producing batches of batchSize samples.
//
// If factory is nil, a factory with a random seed is used.
func New(backend backends.Backend, batchSize int, factory *params.Factory) (*Pipeline, error) {
	if backend == nil || backend.IsFinalized() {
		return nil, errs.Errorf(errs.ErrConfiguration, "pipeline.New(): nil or finalized backend")
	}
	if batchSize <= 0 {
		return nil, errs.Errorf(errs.ErrConfiguration, "pipeline.New(): batch size must be > 0, got %d", batchSize)
	}
	if factory == nil {
		factory = params.NewRandomFactory()
	}
	p := &Pipeline{
		id:        uuid.New(),
		backend:   backend,
		batchSize: batchSize,
		factory:   factory,
	}
	p.graph = backend.NewGraph("pipeline-" + p.id.String())
	klog.V(1).Infof("pipeline %s: created on backend %q, batch size %d, seed %d", p.id, backend.Name(), batchSize, factory.Seed())
	return p, nil
}

// ID uniquely identifies the pipeline.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// Backend used by the pipeline.
func (p *Pipeline) Backend() backends.Backend { return p.backend }

// BatchSize is the number of samples fed to Run.
func (p *Pipeline) BatchSize() int { return p.batchSize }

// Factory the pipeline's random parameters should be created from.
func (p *Pipeline) Factory() *params.Factory { return p.factory }

// Graph holding the nodes kernel invocations.
func (p *Pipeline) Graph() backends.Graph { return p.graph }

// NewInput creates the batch the samples given to Run are loaded into.
// info.BatchSize can be left as 0, in which case the pipeline batch size is used.
func (p *Pipeline) NewInput(name string, info images.Info) (*images.Batch, error) {
	if p.input != nil {
		return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: input %q already created", p.id, p.input.Name())
	}
	if info.BatchSize == 0 {
		info.BatchSize = p.batchSize
	}
	if info.BatchSize != p.batchSize {
		return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: input %q batch size %d != pipeline batch size %d",
			p.id, name, info.BatchSize, p.batchSize)
	}
	b, err := p.NewImage(name, info)
	if err != nil {
		return nil, err
	}
	p.input = b
	return b, nil
}

// NewImage creates an intermediate or output batch, owned by the pipeline.
func (p *Pipeline) NewImage(name string, info images.Info) (*images.Batch, error) {
	if p.built {
		return nil, errs.Errorf(errs.ErrLateConfiguration, "pipeline %s: NewImage(%q) after Build()", p.id, name)
	}
	if p.Batch(name) != nil {
		return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: batch %q already exists", p.id, name)
	}
	b, err := images.New(p.backend, name, info)
	if err != nil {
		return nil, errors.WithMessagef(err, "pipeline %s", p.id)
	}
	p.batches = append(p.batches, b)
	return b, nil
}

// Input returns the input batch, or nil if not created yet.
func (p *Pipeline) Input() *images.Batch { return p.input }

// Batch returns the batch with the given name, or nil if there is none.
func (p *Pipeline) Batch(name string) *images.Batch {
	for _, b := range p.batches {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// Images returns all the batches owned by the pipeline, in creation order.
func (p *Pipeline) Images() []*images.Batch { return p.batches }

// Add a node to the pipeline. The node's batches must have been created by the pipeline.
// The order nodes are added doesn't matter: Build orders them by their inputs and outputs.
func (p *Pipeline) Add(node nodes.Node) error {
	if p.built {
		return errs.Errorf(errs.ErrLateConfiguration, "pipeline %s: Add() after Build()", p.id)
	}
	if node == nil {
		return errs.Errorf(errs.ErrConfiguration, "pipeline %s: Add(nil)", p.id)
	}
	if slices.Contains(p.nodes, node) {
		return errs.Errorf(errs.ErrConfiguration, "pipeline %s: node %q added twice", p.id, node.Name())
	}
	for _, b := range slices.Concat(node.Inputs(), node.Outputs()) {
		if !slices.Contains(p.batches, b) {
			return errs.Errorf(errs.ErrConfiguration, "pipeline %s: node %q uses batch %q not created by the pipeline",
				p.id, node.Name(), b.Name())
		}
	}
	p.nodes = append(p.nodes, node)
	return nil
}

// Nodes returns the nodes of the pipeline: in execution order after Build, in insertion order before.
func (p *Pipeline) Nodes() []nodes.Node { return p.nodes }

// IsBuilt returns whether Build succeeded.
func (p *Pipeline) IsBuilt() bool { return p.built }

// Build orders the nodes so that every batch is written before it is read, and builds each of them.
//
// It fails with errs.ErrConfiguration if there is no input or no node, if a batch is written by more than one
// node (or the input is written by a node), if a batch is read but never written, or if the nodes form a cycle.
// If a node fails to build, the ones already built are finalized and the pipeline remains unbuilt.
// A second call is a no-op.
func (p *Pipeline) Build() error {
	if p.built {
		return nil
	}
	if p.input == nil {
		return errs.Errorf(errs.ErrConfiguration, "pipeline %s: no input batch", p.id)
	}
	if len(p.nodes) == 0 {
		return errs.Errorf(errs.ErrConfiguration, "pipeline %s: no nodes", p.id)
	}
	ordered, err := p.sortNodes()
	if err != nil {
		return err
	}
	for ii, node := range ordered {
		if err := node.Build(p.graph); err != nil {
			for _, built := range ordered[:ii] {
				_ = built.Finalize()
			}
			return errors.WithMessagef(err, "pipeline %s: Build()", p.id)
		}
	}
	p.nodes = ordered
	p.built = true
	klog.V(1).Infof("pipeline %s: built %d nodes, %s on device", p.id, len(p.nodes), humanize.Bytes(uint64(p.Memory())))
	return nil
}

// sortNodes returns the nodes in topological order, stable with respect to the insertion order.
func (p *Pipeline) sortNodes() ([]nodes.Node, error) {
	producers := make(map[*images.Batch]nodes.Node)
	for _, node := range p.nodes {
		for _, out := range node.Outputs() {
			if out == p.input {
				return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: node %q writes into the input batch %q",
					p.id, node.Name(), out.Name())
			}
			if other, found := producers[out]; found {
				return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: batch %q written by both nodes %q and %q",
					p.id, out.Name(), other.Name(), node.Name())
			}
			producers[out] = node
		}
	}
	for _, node := range p.nodes {
		for _, in := range node.Inputs() {
			if _, found := producers[in]; !found && in != p.input {
				return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: node %q reads batch %q, which is never written",
					p.id, node.Name(), in.Name())
			}
		}
	}

	ready := map[*images.Batch]bool{p.input: true}
	pending := slices.Clone(p.nodes)
	ordered := make([]nodes.Node, 0, len(pending))
	for len(pending) > 0 {
		idx := slices.IndexFunc(pending, func(node nodes.Node) bool {
			for _, in := range node.Inputs() {
				if !ready[in] {
					return false
				}
			}
			return true
		})
		if idx == -1 {
			names := make([]string, len(pending))
			for ii, node := range pending {
				names[ii] = node.Name()
			}
			return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: cycle among nodes %q", p.id, names)
		}
		node := pending[idx]
		pending = slices.Delete(pending, idx, idx+1)
		ordered = append(ordered, node)
		for _, out := range node.Outputs() {
			ready[out] = true
		}
	}
	return ordered, nil
}

// Run produces one batch from the given samples: they are loaded into the input batch and uploaded, every
// node is refreshed in order, and then the graph is executed.
//
// len(samples) must be equal to the batch size. If anything fails, the batch is invalid and the error is
// returned: there is no partial success.
func (p *Pipeline) Run(ctx context.Context, samples []image.Image) error {
	if !p.built {
		return errs.Errorf(errs.ErrNotBuilt, "pipeline %s: Run()", p.id)
	}
	if len(samples) != p.batchSize {
		return errs.Errorf(errs.ErrConfiguration, "pipeline %s: Run() with %d samples, batch size is %d",
			p.id, len(samples), p.batchSize)
	}
	for ii, sample := range samples {
		if err := p.input.Load(ii, sample); err != nil {
			return errors.WithMessagef(err, "pipeline %s: batch #%d", p.id, p.numBatches)
		}
	}
	if err := p.input.Upload(); err != nil {
		return errors.WithMessagef(err, "pipeline %s: batch #%d", p.id, p.numBatches)
	}
	for _, node := range p.nodes {
		if err := node.Refresh(); err != nil {
			return errors.WithMessagef(err, "pipeline %s: batch #%d", p.id, p.numBatches)
		}
	}
	if err := p.graph.Execute(ctx); err != nil {
		return errors.WithMessagef(err, "pipeline %s: batch #%d", p.id, p.numBatches)
	}
	p.numBatches++
	klog.V(2).Infof("pipeline %s: batch #%d done", p.id, p.numBatches-1)
	return nil
}

// Batches returns the number of batches successfully produced by Run.
func (p *Pipeline) Batches() int { return p.numBatches }

// Outputs returns the batches written by a node and not read by any other, in creation order.
func (p *Pipeline) Outputs() []*images.Batch {
	var outputs []*images.Batch
	for _, b := range p.batches {
		var written, read bool
		for _, node := range p.nodes {
			written = written || slices.Contains(node.Outputs(), b)
			read = read || slices.Contains(node.Inputs(), b)
		}
		if written && !read {
			outputs = append(outputs, b)
		}
	}
	return outputs
}

// Output downloads the i-th batch of Outputs from the device and returns it. Use images.Batch.Image to
// access its samples.
func (p *Pipeline) Output(i int) (*images.Batch, error) {
	if !p.built {
		return nil, errs.Errorf(errs.ErrNotBuilt, "pipeline %s: Output()", p.id)
	}
	outputs := p.Outputs()
	if i < 0 || i >= len(outputs) {
		return nil, errs.Errorf(errs.ErrConfiguration, "pipeline %s: Output(%d), there are %d outputs", p.id, i, len(outputs))
	}
	if err := outputs[i].Download(); err != nil {
		return nil, errors.WithMessagef(err, "pipeline %s: Output(%d)", p.id, i)
	}
	return outputs[i], nil
}

// Memory returns the bytes used on device by the batches and the nodes.
func (p *Pipeline) Memory() uintptr {
	var total uintptr
	for _, b := range p.batches {
		total += b.Memory()
	}
	for _, node := range p.nodes {
		total += node.Memory()
	}
	return total
}

// Finalize releases the nodes, the graph and the batches. The backend is not finalized.
func (p *Pipeline) Finalize() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, node := range p.nodes {
		keep(node.Finalize())
	}
	keep(p.graph.Finalize())
	for _, b := range p.batches {
		keep(b.Finalize())
	}
	p.nodes, p.batches, p.input = nil, nil, nil
	p.built = false
	if firstErr != nil {
		klog.Warningf("pipeline %s: Finalize(): %v", p.id, firstErr)
	}
	return firstErr
}
