// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"github.com/gomlx/augment/backends"
	"github.com/gomlx/augment/pkg/core/arrays"
	"github.com/gomlx/augment/pkg/core/errs"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// BatchArray holds one sampled value per sample slot of a batch, mirrored to a device-visible
// array that can be bound to kernel invocations.
//
// Build allocates the array once; every Refresh re-samples all slots from the parameter and uploads
// them in full.
type BatchArray[T dtypes.NumberNotComplex] struct {
	param    Parameter[T]
	validate func(v T) error
	array    arrays.Array[T]
	scratch  []T
}

// NewBatchArray creates an unbuilt BatchArray sampling from param.
func NewBatchArray[T dtypes.NumberNotComplex](param Parameter[T]) *BatchArray[T] {
	return &BatchArray[T]{param: param}
}

// WithValidator sets a function used to check every sampled value. A failing value aborts the Refresh,
// which then leaves the device values untouched.
func (b *BatchArray[T]) WithValidator(validate func(v T) error) *BatchArray[T] {
	b.validate = validate
	return b
}

// Param returns the current parameter.
func (b *BatchArray[T]) Param() Parameter[T] {
	return b.param
}

// SetParam replaces the parameter. It takes effect on the next Refresh.
func (b *BatchArray[T]) SetParam(param Parameter[T]) {
	b.param = param
}

// Build allocates the host and device array with the given capacity. It is a no-op if already built.
func (b *BatchArray[T]) Build(backend backends.Backend, capacity int) error {
	if b.array.IsBuilt() {
		return nil
	}
	if err := b.array.Build(backend, capacity); err != nil {
		return err
	}
	b.scratch = make([]T, capacity)
	return nil
}

// IsBuilt returns whether Build was called successfully.
func (b *BatchArray[T]) IsBuilt() bool {
	return b.array.IsBuilt()
}

// Capacity is the number of sample slots, fixed at Build.
func (b *BatchArray[T]) Capacity() int {
	return b.array.Capacity()
}

// Memory returns the bytes used by the device array.
func (b *BatchArray[T]) Memory() uintptr {
	return b.array.Memory()
}

// Refresh draws one new value per slot and uploads all of them to the device.
//
// It fails with errs.ErrNotBuilt before Build, with errs.ErrConfiguration if no parameter was set,
// and with the validator's (or the Custom parameter's bounds check) error for an invalid sample. Nothing
// is uploaded on failure.
func (b *BatchArray[T]) Refresh() error {
	if !b.array.IsBuilt() {
		return errs.Errorf(errs.ErrNotBuilt, "BatchArray[%s].Refresh()", b.array.DType())
	}
	if b.param == nil {
		return errs.Errorf(errs.ErrConfiguration, "BatchArray[%s].Refresh(): no parameter set", b.array.DType())
	}
	for ii := range b.scratch {
		v, err := draw(b.param)
		if err != nil {
			return errors.WithMessagef(err, "BatchArray[%s].Refresh(), slot #%d", b.array.DType(), ii)
		}
		if b.validate != nil {
			if err := b.validate(v); err != nil {
				return errors.WithMessagef(err, "BatchArray[%s].Refresh(), slot #%d", b.array.DType(), ii)
			}
		}
		b.scratch[ii] = v
	}
	copy(b.array.Host(), b.scratch)
	return b.array.Sync()
}

// Host returns the host copy of the last sampled values. It is nil before Build.
func (b *BatchArray[T]) Host() []T {
	return b.array.Host()
}

// Buffer returns the device array, to be bound to a kernel invocation.
// It fails with errs.ErrNotBuilt before Build.
func (b *BatchArray[T]) Buffer() (backends.Buffer, error) {
	return b.array.Buffer()
}

// Finalize releases the device array.
func (b *BatchArray[T]) Finalize() error {
	b.scratch = nil
	return b.array.Finalize()
}
