package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies command errors so callers can map them to exit codes
// or HTTP statuses without string matching.
type ErrorKind string

const (
	ErrInvalidPath  ErrorKind = "invalid-path"
	ErrInvalidState ErrorKind = "invalid-state"
	ErrNotFound     ErrorKind = "not-found"
	ErrValidation   ErrorKind = "validation"
	ErrTransport    ErrorKind = "transport"
	ErrIO           ErrorKind = "io"
	ErrCancelled    ErrorKind = "cancelled"
)

// Error is a command error with a machine-readable kind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E builds a typed Error.
func E(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Errors without a kind yield the empty string.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
