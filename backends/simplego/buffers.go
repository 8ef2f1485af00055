// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gomlx/augment/backends"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Compile-time check:
var _ backends.DataInterface = (*Backend)(nil)

// Buffer for SimpleGo backend holds the dtype and a reference to the flat data.
type Buffer struct {
	dtype  dtypes.DType
	length int
	valid  bool

	// flat is always a slice of the underlying data type (dtype).
	flat any
}

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

// getBufferPool for given dtype/length.
func (b *Backend) getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() interface{} {
				return &Buffer{
					flat:   reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
					dtype:  dtype,
					length: length,
				}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from backend pool of buffers.
func (b *Backend) getBuffer(dtype dtypes.DType, length int) *Buffer {
	pool := b.getBufferPool(dtype, length)
	buf := pool.Get().(*Buffer)
	buf.valid = true
	return buf
}

// putBuffer back into the backend pool of buffers.
// After this any references to buffer should be dropped.
func (b *Backend) putBuffer(buffer *Buffer) {
	if buffer == nil || buffer.length <= 0 {
		return
	}
	buffer.valid = false
	pool := b.getBufferPool(buffer.dtype, buffer.length)
	pool.Put(buffer)
}

// copyFlat assumes both flat slices are of the same underlying type.
func copyFlat(flatDst, flatSrc any) {
	reflect.Copy(reflect.ValueOf(flatDst), reflect.ValueOf(flatSrc))
}

// checkBuffer returns the concrete buffer, or an error if it is not a valid buffer of this backend.
func (b *Backend) checkBuffer(backendBuffer backends.Buffer) (*Buffer, error) {
	buffer, ok := backendBuffer.(*Buffer)
	if !ok {
		return nil, errors.Errorf("buffer (%T) is not a %q backend buffer", backendBuffer, BackendName)
	}
	if buffer == nil || buffer.flat == nil || !buffer.valid {
		var issues []string
		if buffer != nil {
			if buffer.flat == nil {
				issues = append(issues, "buffer.flat was nil")
			}
			if !buffer.valid {
				issues = append(issues, "buffer was marked as invalid")
			}
		} else {
			issues = append(issues, "buffer was nil")
		}
		return nil, errors.Errorf("buffer(%p): %s -- buffer was already finalized!?", buffer, strings.Join(issues, ", "))
	}
	return buffer, nil
}

// checkFlat verifies that flat is a slice of the buffer's dtype and length.
func (buffer *Buffer) checkFlat(flat any) error {
	flatType := reflect.TypeOf(flat)
	if flatType == nil || flatType.Kind() != reflect.Slice {
		return errors.Errorf("flat data must be a slice, got %T", flat)
	}
	if dtypes.FromGoType(flatType.Elem()) != buffer.dtype {
		return errors.Errorf("flat data type (%s) does not match buffer dtype (%s)", flatType.Elem(), buffer.dtype)
	}
	if length := reflect.ValueOf(flat).Len(); length != buffer.length {
		return errors.Errorf("flat data has %d elements, buffer has %d", length, buffer.length)
	}
	return nil
}

// NewBuffer creates a zeroed buffer for the given dtype and length.
func (b *Backend) NewBuffer(deviceNum backends.DeviceNum, dtype dtypes.DType, length int) (backends.Buffer, error) {
	if b.IsFinalized() {
		return nil, errors.Errorf("backend %q has been finalized", BackendName)
	}
	if deviceNum != 0 {
		return nil, errors.Errorf("backend (%s) only supports deviceNum 0, cannot create buffer on deviceNum %d",
			b.Name(), deviceNum)
	}
	if !Capabilities.DTypes[dtype] {
		return nil, errors.Errorf("backend (%s) doesn't support dtype %s", b.Name(), dtype)
	}
	if length <= 0 {
		return nil, errors.Errorf("invalid buffer length %d", length)
	}
	buffer := b.getBuffer(dtype, length)
	reflect.ValueOf(buffer.flat).Clear()
	return buffer, nil
}

// BufferUpload copies the flat values to the buffer.
func (b *Backend) BufferUpload(backendBuffer backends.Buffer, flat any) error {
	buffer, err := b.checkBuffer(backendBuffer)
	if err != nil {
		return err
	}
	if err = buffer.checkFlat(flat); err != nil {
		return err
	}
	copyFlat(buffer.flat, flat)
	return nil
}

// BufferToFlatData transfers the flat values of the buffer to the Go flat array.
// The slice flat must have the exact number of elements of the buffer.
func (b *Backend) BufferToFlatData(backendBuffer backends.Buffer, flat any) error {
	buffer, err := b.checkBuffer(backendBuffer)
	if err != nil {
		return err
	}
	if err = buffer.checkFlat(flat); err != nil {
		return err
	}
	copyFlat(flat, buffer.flat)
	return nil
}

// BufferDType returns the dtype for the buffer.
func (b *Backend) BufferDType(backendBuffer backends.Buffer) (dtypes.DType, error) {
	buffer, err := b.checkBuffer(backendBuffer)
	if err != nil {
		return dtypes.InvalidDType, err
	}
	return buffer.dtype, nil
}

// BufferLength returns the number of elements of the buffer.
func (b *Backend) BufferLength(backendBuffer backends.Buffer) (int, error) {
	buffer, err := b.checkBuffer(backendBuffer)
	if err != nil {
		return 0, err
	}
	return buffer.length, nil
}

// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
// freed immediately.
//
// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
func (b *Backend) BufferFinalize(backendBuffer backends.Buffer) error {
	buffer, err := b.checkBuffer(backendBuffer)
	if err != nil {
		return errors.WithMessage(err, "BufferFinalize")
	}
	b.putBuffer(buffer)
	return nil
}

// flatOf returns the typed flat slice of a buffer.
func flatOf[T dtypes.Supported](b *Backend, backendBuffer backends.Buffer) ([]T, error) {
	buffer, err := b.checkBuffer(backendBuffer)
	if err != nil {
		return nil, err
	}
	flat, ok := buffer.flat.([]T)
	if !ok {
		return nil, errors.Errorf("buffer has dtype %s, wanted %s", buffer.dtype, dtypes.FromGenericsType[T]())
	}
	return flat, nil
}
