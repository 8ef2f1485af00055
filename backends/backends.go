// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface to the compute-graph engine that executes the
// augmentation kernels, and the device-visible memory they read from and write to.
//
// The augmentation core never does pixel work itself: each Node binds exactly one kernel
// invocation into a Graph at build time, and rewrites the device arrays the invocation reads
// from before every execution. How the kernels are scheduled, and where the memory lives,
// is up to the backend.
//
// Backends register themselves (usually in an `init` function) and are created with New or
// NewWithConfig. The reference backend is the pure Go one, in backends/simplego:
//
//	import _ "github.com/gomlx/augment/backends/default"
//
//	backend, err := backends.New()
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/augment/pkg/core/errs"
	"golang.org/x/exp/maps"
)

// DeviceNum represents which device holds a buffer.
// It's up to the backend to interpret it, but it should be between 0 and Backend.NumDevices.
type DeviceNum int

// Backend is the API that needs to be implemented by an augmentation backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the SimpleGo backend.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// NumDevices return the number of devices available for this Backend.
	NumDevices() DeviceNum

	// Capabilities returns what kernels and dtypes the backend supports.
	Capabilities() Capabilities

	// DataInterface is the sub-interface that defines the API to transfer Buffer to/from devices.
	DataInterface

	// NewGraph creates a new empty graph, to which kernel invocations can be added.
	NewGraph(name string) Graph

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()

	// IsFinalized returns true if the backend was finalized.
	IsFinalized() bool
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the names of the registered backends, sorted.
func List() []string {
	names := maps.Keys(registeredConstructors)
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific.
const ConfigEnvVar = "AUGMENT_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment AUGMENT_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(ConfigEnvVar)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configurations string formated as
// "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific.
//
// If "<backend_name>" is empty, the first registered backend is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errs.Errorf(errs.ErrConfiguration,
			`no registered backends -- maybe import the default one with import _ "github.com/gomlx/augment/backends/default"?`)
	}
	backendName := config
	var backendConfig string
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errs.Errorf(errs.ErrConfiguration, "can't find backend %q for configuration %q given, registered backends are %q",
			backendName, config, List())
	}
	return constructor(backendConfig)
}
