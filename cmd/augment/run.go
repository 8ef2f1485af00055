// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/augment/pkg/augment/config"
	"github.com/gomlx/augment/pkg/augment/pipeline"
	"github.com/gomlx/augment/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	flagInput    string
	flagOutput   string
	flagBatches  int
	flagProgress bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline over the images of a directory, saving the augmented outputs as PNG files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		var progress io.Writer
		if flagProgress {
			progress = cmd.OutOrStdout()
		}
		return runPipeline(ctx, cfg, flagInput, flagOutput, flagBatches, progress)
	},
}

func init() {
	runCmd.Flags().StringVar(&flagInput, "input", "", "Directory with the input images (or video frames, in order).")
	runCmd.Flags().StringVar(&flagOutput, "output", "", "Directory where to save the augmented images. If empty, outputs are not saved.")
	runCmd.Flags().IntVar(&flagBatches, "batches", 0, "Number of batches to run. 0 runs until the input images are exhausted.")
	runCmd.Flags().BoolVar(&flagProgress, "progress", true, "Display a progress bar.")
	_ = runCmd.MarkFlagRequired("input")
}

// runPipeline builds the pipeline for cfg and runs it over the images in inputDir, for at most maxBatches
// batches (0 for no limit). Outputs are saved in outputDir, if not empty. Progress is written to progress,
// if not nil.
func runPipeline(ctx context.Context, cfg *config.Config, inputDir, outputDir string, maxBatches int, progress io.Writer) error {
	source, err := pipeline.NewFileSource(inputDir)
	if err != nil {
		return err
	}
	if outputDir != "" {
		if err = os.MkdirAll(outputDir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create output directory %q", outputDir)
		}
	}
	backend, err := config.NewBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Finalize()
	p, err := config.Build(backend, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = p.Finalize() }()

	numBatches := source.Len() / p.BatchSize()
	if maxBatches > 0 {
		numBatches = min(numBatches, maxBatches)
	}
	var pBar *commandline.ProgressBar
	if progress != nil {
		pBar = commandline.NewProgressBar(progress, numBatches, func() (string, string) {
			return "Device memory", humanize.Bytes(uint64(p.Memory()))
		})
		defer pBar.Done()
	}

	for batchIdx := range numBatches {
		samples, _, err := source.Next(p.BatchSize())
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		start := time.Now()
		if err = p.Run(ctx, samples); err != nil {
			return errors.WithMessagef(err, "batch #%d", batchIdx)
		}
		if outputDir != "" {
			if err = saveOutputs(p, outputDir, batchIdx); err != nil {
				return err
			}
		}
		if pBar != nil {
			pBar.Step(len(samples), time.Since(start))
		}
	}
	klog.V(1).Infof("pipeline %s: %d batches processed", p.ID(), p.Batches())
	return nil
}

// saveOutputs downloads the pipeline outputs and saves each sample as "<batch name>-<batch #>-<sample #>.png".
func saveOutputs(p *pipeline.Pipeline, outputDir string, batchIdx int) error {
	for ii := range p.Outputs() {
		out, err := p.Output(ii)
		if err != nil {
			return err
		}
		for sample := range out.Info().BatchSize {
			img, err := out.Image(sample)
			if err != nil {
				return err
			}
			path := filepath.Join(outputDir, fmt.Sprintf("%s-%05d-%03d.png", out.Name(), batchIdx, sample))
			if err = imaging.Save(img, path); err != nil {
				return errors.Wrapf(err, "failed to save %q", path)
			}
		}
	}
	return nil
}
