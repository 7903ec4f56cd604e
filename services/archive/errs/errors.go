// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package errs defines the stable error taxonomy of the archive service.
//
// Every public operation of the archive returns errors that match exactly one
// of the sentinels below via errors.Is. Packages wrap the sentinels with
// enough identity (paper id, version id, chunk hash, line number) for the
// caller to act on the failure.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or out-of-declared-bounds input.
	// The caller must fix the input; the operation is not retried.
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity marks stored data that failed authentication or hash
	// verification on read. Fatal for the affected record only.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrPermission marks a policy denial for the requested capability.
	ErrPermission = errors.New("permission denied")

	// ErrConflict marks a lost optimistic-concurrency race. The caller
	// should refresh its view of the contended state and retry.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an unknown paper, version, dataset or chunk id.
	ErrNotFound = errors.New("not found")
)

// Validationf returns a new validation error with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Integrityf returns a new integrity error with a formatted detail message.
func Integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

// Permissionf returns a new permission error with a formatted detail message.
func Permissionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

// Conflictf returns a new conflict error with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf returns a new not-found error with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Wrap attaches a taxonomy kind to err. Both the kind and the original error
// remain matchable through errors.Is. A nil err returns nil.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Kind reports the taxonomy bucket of err as a stable lowercase token, or
// "internal" when err matches no sentinel. Used by the CLI and by metrics
// attributes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// IsRetryable reports whether the caller can retry the operation after
// refreshing contended state. Only conflicts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
