// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI tools to run augmentation pipelines from the command line.
package commandline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/augment/pkg/augment/pipeline"
	"github.com/gomlx/augment/pkg/core/images"
)

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableBorderColor  = "#705090"
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == len(headers)-1:
				return rightAlignedStyle
			}
			return normalStyle
		})
}

func batchNames(batches []*images.Batch) string {
	names := make([]string, len(batches))
	for ii, batch := range batches {
		names[ii] = batch.Name()
	}
	return strings.Join(names, ", ")
}

// SprintPipeline returns a pretty-printed description of the pipeline: its nodes (in execution order),
// its image batches and the device memory used.
func SprintPipeline(p *pipeline.Pipeline) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pipeline %s (batch size %d, seed %d) on %s\n",
		p.ID(), p.BatchSize(), p.Factory().Seed(), p.Backend().Name())

	nodesTable := newTable("Node", "Kernel", "Input", "Output", "Memory")
	for _, node := range p.Nodes() {
		nodesTable.Row(node.Name(), node.Kernel().String(),
			batchNames(node.Inputs()), batchNames(node.Outputs()), humanize.Bytes(uint64(node.Memory())))
	}
	sb.WriteString(nodesTable.String())
	sb.WriteString("\n")

	batchesTable := newTable("Batch", "Geometry", "Memory")
	for _, batch := range p.Images() {
		batchesTable.Row(batch.Name(), batch.Info().String(), humanize.Bytes(uint64(batch.Memory())))
	}
	sb.WriteString(batchesTable.String())
	fmt.Fprintf(&sb, "\nTotal device memory: %s\n", humanize.Bytes(uint64(p.Memory())))
	return sb.String()
}
