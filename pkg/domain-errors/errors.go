// Package derrors defines domain error codes shared across services and
// transport. Handlers translate codes to HTTP statuses in one place so
// services never import net/http.
package derrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain error.
type Code string

const (
	// CodeInvalidInput covers malformed or out-of-range caller input.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound covers lookups for entities that do not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict covers uniqueness violations such as duplicate inserts.
	CodeConflict Code = "conflict"
	// CodeUnavailable covers dependency outages and timeouts.
	CodeUnavailable Code = "unavailable"
	// CodeInternal covers unexpected failures; details are never exposed
	// to callers.
	CodeInternal Code = "internal_error"
)

// DomainError carries a code for transport translation plus a human-readable
// message for logs and (for client errors) response bodies.
type DomainError struct {
	Code    Code
	Message string
	wrapped error
}

// New constructs a DomainError with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap constructs a DomainError that preserves the underlying cause for
// errors.Is/As chains.
func Wrap(code Code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, wrapped: err}
}

func (e *DomainError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.wrapped
}

// CodeOf extracts the domain code from err, defaulting to CodeInternal for
// errors that did not originate in a service.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
