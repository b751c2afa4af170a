// Package errs defines the closed set of domain errors shared by every layer.
//
// Services return *Error values tagged with a Kind and a machine readable code.
// Transport status codes are derived from the Kind only at the HTTP boundary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Machine readable error codes
const (
	CodeInvalidSchema        = "invalid-schema"
	CodeInvalidParameter     = "invalid-parameter"
	CodeReservedName         = "reserved-name"
	CodeAlreadyExists        = "already-exists"
	CodeInvalidCredentials   = "invalid-credentials"
	CodeDisabledCredentials  = "disabled-credentials"
	CodePasswordMustChange   = "password-must-change"
	CodeForbidden            = "forbidden"
	CodeLastSuperadmin       = "last-superadmin"
	CodeGuestSignUpDisabled  = "guest-sign-up-disabled"
	CodeNotFound             = "not-found"
	CodeVersionConflict      = "version-conflict"
	CodeMappingConflict      = "mapping-conflict"
	CodeSearchWindowExceeded = "search-window-exceeded"
	CodeInternal             = "internal"
)

// Error is a tagged domain error
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Sentinels for errors.Is checks on the kind alone
var (
	ErrInternal     = &Error{Kind: KindInternal}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind. A target carrying a code
// must also match the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a 400 class error
func Validation(code, format string, args ...interface{}) *Error {
	return newError(KindValidation, code, format, args...)
}

// InvalidParameter creates a validation error for a bad request parameter
func InvalidParameter(format string, args ...interface{}) *Error {
	return newError(KindValidation, CodeInvalidParameter, format, args...)
}

// Unauthorized creates a 401 class error
func Unauthorized(code, format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, code, format, args...)
}

// Forbidden creates a 403 class error
func Forbidden(code, format string, args ...interface{}) *Error {
	return newError(KindForbidden, code, format, args...)
}

// NotFound creates a 404 class error
func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, CodeNotFound, format, args...)
}

// Conflict creates a 409 class error
func Conflict(code, format string, args ...interface{}) *Error {
	return newError(KindConflict, code, format, args...)
}

// Internal wraps an infrastructure failure
func Internal(err error, format string, args ...interface{}) *Error {
	e := newError(KindInternal, CodeInternal, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of err, KindInternal for untagged errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of err
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to a transport status code
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to send to a client. Internal
// errors never expose their wrapped cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			if e.Message != "" {
				return e.Message
			}
			return "internal server error"
		}
		return e.Message
	}
	return "internal server error"
}
