// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "github.com/gomlx/gopjrt/dtypes"

// Buffer represents a device-visible flat array, read (and for image pixels, written) by the kernels.
// A Buffer is always associated to a DeviceNum, even if there is only one.
//
// It is opaque from the augmentation core perspective: only the backend methods interpret it.
type Buffer any

// DataInterface is the Backend's subinterface that defines the API to allocate device arrays and
// transfer data to/from them.
type DataInterface interface {
	// NewBuffer allocates a flat array of the given dtype and length on the device.
	// The contents are zero.
	NewBuffer(deviceNum DeviceNum, dtype dtypes.DType, length int) (Buffer, error)

	// BufferUpload copies the Go flat slice (host) into the buffer (device).
	// The flat slice must be of the buffer's dtype and have exactly the buffer's length.
	BufferUpload(buffer Buffer, flat any) error

	// BufferToFlatData copies the buffer (device) into the Go flat slice (host).
	// The flat slice must be of the buffer's dtype and have exactly the buffer's length.
	BufferToFlatData(buffer Buffer, flat any) error

	// BufferDType returns the dtype of the buffer elements.
	BufferDType(buffer Buffer) (dtypes.DType, error)

	// BufferLength returns the number of elements of the buffer.
	BufferLength(buffer Buffer) (int, error)

	// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
	// freed immediately -- as opposed to waiting for a GC.
	//
	// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
	BufferFinalize(buffer Buffer) error
}
