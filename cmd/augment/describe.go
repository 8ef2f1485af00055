// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/gomlx/augment/pkg/augment/config"
	"github.com/gomlx/augment/ui/commandline"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Build the pipeline and describe its nodes, batches and device memory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
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
		_, err = fmt.Fprint(cmd.OutOrStdout(), commandline.SprintPipeline(p))
		return err
	},
}
