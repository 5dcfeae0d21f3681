// Package domainerrors defines the coded error taxonomy shared by every
// engine service. Stores return sentinel errors (pkg/sentinel) and services
// translate them into coded errors here; transports map codes onto their own
// status vocabulary without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers. Codes are stable API; messages are not.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeInvalidState      Code = "invalid_state"
	CodeForbidden         Code = "forbidden"
	CodeConflict          Code = "conflict"
	CodeInternal          Code = "internal"
)

// Error is a coded error with optional structured detail. Details carry the
// specifics a caller needs to render an actionable message (attempted
// transition, missing precondition) instead of a generic failure.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail attaches a key/value pair and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New builds a coded error with a static message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause chain.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in this package.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Detail returns a structured detail value from err, or "" when absent.
func Detail(err error, key string) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details[key]
	}
	return ""
}
