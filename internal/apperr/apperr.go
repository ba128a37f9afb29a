// Package apperr carries the closed set of error kinds the command intake
// and room manager return to callers, and their HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP surface.
type Kind string

const (
	InvalidInput Kind = "INVALID_INPUT"
	AuthFailed   Kind = "AUTH_FAILED"
	NotFound     Kind = "NOT_FOUND"
	Forbidden    Kind = "FORBIDDEN"
	Conflict     Kind = "CONFLICT"
	Unaffordable Kind = "UNAFFORDABLE"
	GameEnded    Kind = "GAME_ENDED"
	Transient    Kind = "TRANSIENT"
	Fatal        Kind = "FATAL"
)

// Error is a kinded error with an optional machine-readable code
// (e.g. REFOUND_DISABLED) beyond the kind itself.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New creates a kinded error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithCode creates a kinded error carrying a specific code.
func WithCode(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or Transient for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// CodeOf returns the machine-readable code of err, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidInput:
		return http.StatusBadRequest
	case AuthFailed:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case Unaffordable:
		return http.StatusPaymentRequired
	case GameEnded:
		return http.StatusGone
	case Fatal:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}
