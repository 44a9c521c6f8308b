package service

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Codes are stable across releases and
// are the only error detail exposed at the subsystem boundary.
type Code string

const (
	// CodeValidation indicates bad input; the request must not be retried as-is.
	CodeValidation Code = "validation"
	// CodeConflict indicates a duplicate active indexing job for the user.
	CodeConflict Code = "conflict"
	// CodeNotFound indicates an unknown job, log, or note id.
	CodeNotFound Code = "not_found"
	// CodeForbidden indicates an ownership mismatch (e.g. feedback on another user's log).
	CodeForbidden Code = "forbidden"
	// CodeProviderUnavailable indicates an unreachable embedding/generation/rerank backend.
	CodeProviderUnavailable Code = "provider_unavailable"
	// CodeInternal indicates an unexpected failure.
	CodeInternal Code = "internal"
)

// Error is a coded error carrying a stable code and a human-readable message.
// The wrapped cause is for logs only and never crosses the API boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around a cause. A nil cause returns nil.
func Wrap(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// Forbidden creates a forbidden error.
func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

// CodeOf returns the code carried by err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the boundary-safe message for err. Uncoded errors map to
// a generic message so internal detail never leaks to callers.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
