// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package errs defines the error kinds reported by the augmentation graph.
//
// Every failure is returned synchronously to the caller of the failing operation (usually
// a Node's Build or Refresh). Errors carry context with github.com/pkg/errors wrappers, and
// their kind can be tested with errors.Is:
//
//	if errors.Is(err, errs.ErrConfiguration) { ... }
//
// The specific configuration kinds (ErrInvalidRange, ErrInvalidOrder, ErrInvalidDestination
// and ErrLateConfiguration) also match ErrConfiguration.
package errs

import (
	"github.com/pkg/errors"
)

// kind is a sentinel error that optionally belongs to a parent kind.
type kind struct {
	msg    string
	parent error
}

// Error implements error.
func (k *kind) Error() string { return k.msg }

// Is makes a child kind match its parent with errors.Is.
func (k *kind) Is(target error) bool {
	return k.parent != nil && target == k.parent
}

var (
	// ErrConfiguration is returned for invalid initialization arguments.
	ErrConfiguration error = &kind{msg: "configuration error"}

	// ErrNotBuilt is returned when an operation requiring a built object is called before Build.
	ErrNotBuilt error = &kind{msg: "not built"}

	// ErrAllocation is returned when a device array or a kernel invocation could not be created.
	ErrAllocation error = &kind{msg: "allocation error"}

	// ErrGeometry is returned when a region of interest cannot be derived or doesn't fit.
	ErrGeometry error = &kind{msg: "geometry error"}

	// ErrInvalidRange is a configuration error: a range with lo > hi, or a value outside declared bounds.
	ErrInvalidRange error = &kind{msg: "invalid range", parent: ErrConfiguration}

	// ErrInvalidOrder is a configuration error for sequence rearrangement orders.
	ErrInvalidOrder error = &kind{msg: "invalid order", parent: ErrConfiguration}

	// ErrInvalidDestination is a configuration error: a zero destination dimension.
	ErrInvalidDestination error = &kind{msg: "invalid destination", parent: ErrConfiguration}

	// ErrLateConfiguration is a configuration error: a node was configured after it was built.
	ErrLateConfiguration error = &kind{msg: "late configuration", parent: ErrConfiguration}
)

// Errorf returns an error of the given kind with a formatted message and a stack trace.
//
// The message is prefixed to the kind's own message, so the kind shows up when printed.
func Errorf(k error, format string, args ...any) error {
	return errors.Wrapf(k, format, args...)
}

// Is reports whether err is of the given kind. It is a shortcut to errors.Is.
func Is(err, k error) bool {
	return errors.Is(err, k)
}
