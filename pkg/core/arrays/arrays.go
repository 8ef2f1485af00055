// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package arrays implements Array, a fixed-capacity flat array with a host (Go) copy that is
// mirrored into a device-visible backends.Buffer.
//
// The pattern is "allocate once, rewrite and re-upload on every iteration":
//
//   - Array.Build allocates both the host slice and the device buffer, at a fixed capacity.
//     It is idempotent: a second call is a no-op.
//   - The owner mutates the host slice returned by Array.Host.
//   - Array.Sync copies the full host slice to the device buffer. After Sync, host and device hold
//     the same values at every index.
//   - Array.Download copies the device buffer back to the host slice -- only useful for arrays
//     written by kernels, like image pixels.
//
// An Array never reallocates after Build: the device Buffer identity stays the same for the whole
// lifetime of the array, so kernel invocations can be bound to it once.
package arrays

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Array owns a host slice and a device buffer of the same length and dtype.
//
// The zero value is an unbuilt Array, ready for Build.
type Array[T dtypes.Supported] struct {
	backend   backends.Backend
	deviceNum backends.DeviceNum
	host      []T
	buffer    backends.Buffer
}

// New returns a new unbuilt Array. Same as using the zero value.
func New[T dtypes.Supported]() *Array[T] {
	return &Array[T]{}
}

// DType of the array elements.
func (a *Array[T]) DType() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// IsBuilt returns whether Build was successfully called (and the array not finalized).
func (a *Array[T]) IsBuilt() bool {
	return a != nil && a.buffer != nil
}

// Build allocates the host and device storage with the given capacity on device 0.
//
// It fails with errs.ErrAllocation if capacity is 0, if the backend is invalid or if the device
// buffer can't be created. If the Array is already built, it is a no-op.
func (a *Array[T]) Build(backend backends.Backend, capacity int) error {
	return a.BuildOnDevice(backend, 0, capacity)
}

// BuildOnDevice is like Build, but allows one to select the device.
func (a *Array[T]) BuildOnDevice(backend backends.Backend, deviceNum backends.DeviceNum, capacity int) error {
	if a.IsBuilt() {
		return nil
	}
	if capacity <= 0 {
		return errs.Errorf(errs.ErrAllocation, "Array[%s].Build(capacity=%d): capacity must be > 0", a.DType(), capacity)
	}
	if backend == nil || backend.IsFinalized() {
		return errs.Errorf(errs.ErrAllocation, "Array[%s].Build(capacity=%d): nil or finalized backend", a.DType(), capacity)
	}
	buffer, err := backend.NewBuffer(deviceNum, a.DType(), capacity)
	if err != nil {
		return errs.Errorf(errs.ErrAllocation, "Array[%s].Build(capacity=%d) on backend %q: %v",
			a.DType(), capacity, backend.Name(), err)
	}
	a.backend = backend
	a.deviceNum = deviceNum
	a.buffer = buffer
	a.host = make([]T, capacity)
	return nil
}

// Capacity of the array, fixed at Build time. It is 0 before Build.
func (a *Array[T]) Capacity() int {
	return len(a.host)
}

// Memory returns the number of bytes used by the device buffer.
func (a *Array[T]) Memory() uintptr {
	return uintptr(len(a.host)) * a.DType().Memory()
}

// Host returns the host copy of the values. It can be mutated, and it is only pushed to
// the device on Sync.
//
// It returns nil before Build.
func (a *Array[T]) Host() []T {
	return a.host
}

// Fill sets all host values to v. Call Sync afterward to push them to the device.
func (a *Array[T]) Fill(v T) {
	for ii := range a.host {
		a.host[ii] = v
	}
}

// Buffer returns the device handle, to be bound to kernel invocations.
// It fails with errs.ErrNotBuilt before Build.
func (a *Array[T]) Buffer() (backends.Buffer, error) {
	if !a.IsBuilt() {
		return nil, errs.Errorf(errs.ErrNotBuilt, "Array[%s].Buffer()", a.DType())
	}
	return a.buffer, nil
}

// Sync copies the full host copy to the device buffer.
// It fails with errs.ErrNotBuilt before Build.
func (a *Array[T]) Sync() error {
	if !a.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "Array[%s].Sync()", a.DType())
	}
	if err := a.backend.BufferUpload(a.buffer, a.host); err != nil {
		return errors.WithMessagef(err, "Array[%s].Sync() of %d elements", a.DType(), len(a.host))
	}
	return nil
}

// Download copies the device buffer to the host copy.
// It fails with errs.ErrNotBuilt before Build.
func (a *Array[T]) Download() error {
	if !a.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "Array[%s].Download()", a.DType())
	}
	if err := a.backend.BufferToFlatData(a.buffer, a.host); err != nil {
		return errors.WithMessagef(err, "Array[%s].Download() of %d elements", a.DType(), len(a.host))
	}
	return nil
}

// Finalize releases the device buffer and the host copy, leaving the Array unbuilt.
// It is a no-op if the array is not built.
func (a *Array[T]) Finalize() error {
	if !a.IsBuilt() {
		return nil
	}
	buffer := a.buffer
	a.buffer = nil
	a.host = nil
	if a.backend.IsFinalized() {
		// All buffers were already released by the backend.
		return nil
	}
	if err := a.backend.BufferFinalize(buffer); err != nil {
		klog.Warningf("failed to finalize Array[%s] buffer on backend %q: %v", a.DType(), a.backend.Name(), err)
		return err
	}
	return nil
}
