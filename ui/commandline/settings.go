// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"strconv"
	"strings"

	"github.com/gomlx/augment/pkg/augment/config"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/pkg/errors"
)

// ParseSettings overrides values of the configuration from settings -- typically the contents of a flag
// set by the user. The settings are a list separated by ";": e.g.: "seed=7;batch_size=16;crop/width=128".
//
// Supported keys:
//
//   - "backend", "seed", "batch_size".
//   - "input/width", "input/height", "input/channels", "input/sequence_length".
//   - "<node>/width", "<node>/height", "<node>/sequence_length", for the node named <node>.
//
// For integer values, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// It returns the keys set, in order. The configuration is not validated: call config.Config.Validate
// after it.
func ParseSettings(cfg *config.Config, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		setting = strings.TrimSpace(setting)
		if setting == "" {
			continue
		}
		key, value, found := strings.Cut(setting, "=")
		if !found {
			return paramsSet, errs.Errorf(errs.ErrConfiguration, "setting %q is not in the form <key>=<value>", setting)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if err = applySetting(cfg, key, value); err != nil {
			return paramsSet, errors.WithMessagef(err, "setting %q", setting)
		}
		paramsSet = append(paramsSet, key)
	}
	return paramsSet, nil
}

func applySetting(cfg *config.Config, key, value string) error {
	if key == "backend" {
		cfg.Backend = value
		return nil
	}
	if key == "seed" {
		seed, err := strconv.ParseUint(strings.ReplaceAll(value, "_", ""), 10, 64)
		if err != nil {
			return errs.Errorf(errs.ErrConfiguration, "invalid seed %q", value)
		}
		cfg.Seed = seed
		return nil
	}
	var target *int
	scope, field, scoped := strings.Cut(key, "/")
	switch {
	case !scoped && key == "batch_size":
		target = &cfg.BatchSize
	case scoped && scope == config.InputName:
		switch field {
		case "width":
			target = &cfg.Input.Width
		case "height":
			target = &cfg.Input.Height
		case "channels":
			target = &cfg.Input.Channels
		case "sequence_length":
			target = &cfg.Input.SequenceLength
		}
	case scoped:
		for ii := range cfg.Nodes {
			node := &cfg.Nodes[ii]
			if node.Name != scope {
				continue
			}
			switch field {
			case "width":
				target = &node.Width
			case "height":
				target = &node.Height
			case "sequence_length":
				target = &node.SequenceLength
			}
			break
		}
	}
	if target == nil {
		return errs.Errorf(errs.ErrConfiguration, "unknown key %q", key)
	}
	n, err := strconv.Atoi(strings.ReplaceAll(value, "_", ""))
	if err != nil {
		return errs.Errorf(errs.ErrConfiguration, "invalid integer %q for %q", value, key)
	}
	*target = n
	return nil
}
