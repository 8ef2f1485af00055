// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// augment runs image and video augmentation pipelines described in YAML (see package config).
//
// Usage:
//
//	augment describe --config pipeline.yaml
//	augment run --config pipeline.yaml --input images/ --output augmented/ --batches 10
package main

import (
	"flag"
	"os"

	"github.com/gomlx/augment/pkg/augment/config"
	"github.com/gomlx/augment/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/augment/backends/default"
)

var (
	flagConfig   string
	flagSettings string
)

var rootCmd = &cobra.Command{
	Use:   "augment",
	Short: "Batched, randomized image and video augmentation",
	Long: "augment builds an augmentation pipeline from a YAML configuration and runs it\n" +
		"on batches of images (or video frames) read from a directory.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML pipeline configuration file.")
	rootCmd.PersistentFlags().StringVar(&flagSettings, "set", "",
		`Overrides of the configuration, e.g.: "seed=7;batch_size=16;crop/width=128".`)
	_ = rootCmd.MarkPersistentFlagRequired("config")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(describeCmd)
}

// loadConfig reads the --config file and applies the --set overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	paramsSet, err := commandline.ParseSettings(cfg, flagSettings)
	if err != nil {
		return nil, err
	}
	if len(paramsSet) > 0 {
		klog.V(1).Infof("configuration overrides: %q", paramsSet)
		if err = cfg.Validate(); err != nil {
			return nil, errors.WithMessage(err, "after applying --set")
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
}
