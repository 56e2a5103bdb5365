// Package apperr defines the error kinds surfaced by the catalog and
// shopping list services.
//
// Services return typed errors and handlers map them to HTTP responses:
//
//	if errors.Is(err, apperr.ErrConflict) {
//	    // 409
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeForbidden              Code = "FORBIDDEN"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeValidation             Code = "VALIDATION"
	CodeInternal               Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConcurrentModification:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

var (
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict               = &Error{Code: CodeConflict, Message: "conflict"}
	ErrConcurrentModification = &Error{Code: CodeConcurrentModification, Message: "concurrent modification"}
	ErrForbidden              = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrUnauthorized           = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrValidation             = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal               = &Error{Code: CodeInternal, Message: "internal error"}
)

func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error carrying per-field messages.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// CodeOf returns the Code carried by err, or CodeInternal when err is not
// a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
