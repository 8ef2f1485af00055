// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities of the SimpleGo backends: the set of supported kernels and data types.
var Capabilities = backends.Capabilities{
	Kernels: map[backends.KernelType]bool{
		backends.KernelFlip:              true,
		backends.KernelResizeCrop:        true,
		backends.KernelSequenceRearrange: true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Int8:    true,
		dtypes.Int16:   true,
		dtypes.Int32:   true,
		dtypes.Int64:   true,
		dtypes.Uint8:   true,
		dtypes.Uint16:  true,
		dtypes.Uint32:  true,
		dtypes.Uint64:  true,
		dtypes.Float32: true,
		dtypes.Float64: true,
	},
}
