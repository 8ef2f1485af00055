// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"testing"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var backend backends.Backend

func init() {
	klog.InitFlags(nil)
}

func setup() {
	fmt.Printf("Available backends: %q\n", backends.List())
	if os.Getenv(backends.ConfigEnvVar) == "" {
		must.M(os.Setenv(backends.ConfigEnvVar, BackendName))
	} else {
		fmt.Printf("\t$%s=%q\n", backends.ConfigEnvVar, os.Getenv(backends.ConfigEnvVar))
	}
	backend = must.M1(backends.New())
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())
}

func teardown() {
	backend.Finalize()
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run() // Run all tests in the file
	teardown()
	os.Exit(code)
}

func TestNew(t *testing.T) {
	b := must.M1(New("")).(*Backend)
	assert.Equal(t, runtime.NumCPU(), b.Parallelism())
	assert.Equal(t, backends.DeviceNum(1), b.NumDevices())
	assert.Equal(t, BackendName, b.String())

	b = must.M1(New("parallelism=3")).(*Backend)
	assert.Equal(t, 3, b.Parallelism())
	b = must.M1(New(" parallelism=0 ")).(*Backend)
	assert.Equal(t, runtime.NumCPU(), b.Parallelism())

	_, err := New("parallelism=many")
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = New("turbo=true")
	require.ErrorIs(t, err, errs.ErrConfiguration)

	b.Finalize()
	assert.True(t, b.IsFinalized())
	_, err = b.NewBuffer(0, dtypes.Uint8, 4)
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, backends.List(), BackendName)
	assert.True(t, slices.IsSorted(backends.List()))

	b := must.M1(backends.NewWithConfig("go:parallelism=2"))
	defer b.Finalize()
	assert.Equal(t, 2, b.(*Backend).Parallelism())

	// Empty name selects the first registered backend, and a config without ":" is a backend name.
	must.M1(backends.NewWithConfig(":parallelism=1")).Finalize()
	must.M1(backends.NewWithConfig(BackendName)).Finalize()

	_, err := backends.NewWithConfig("xla:cuda")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
