// Package apperr defines the error taxonomy shared by services and HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and maps to an HTTP status.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindAuthorization  Kind = "authorization_error"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limited"
	KindExternalAPI    Kind = "external_api_error"
	KindConfiguration  Kind = "configuration_error"
	KindInternal       Kind = "internal_error"
)

// Error is a classified error. Message is safe to show to clients; Err is not.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind (and code when the target sets one), so
// errors.Is(err, apperr.ErrAuthentication) works for every authentication failure.
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

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrExternalAPI    = &Error{Kind: KindExternalAPI}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
)

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, "invalid_request", message)
}

func Authentication(code, message string) *Error {
	return New(KindAuthentication, code, message)
}

func Authorization(message string) *Error {
	return New(KindAuthorization, "forbidden", message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, "not_found", message)
}

func ExternalAPI(service string, err error) *Error {
	return Wrap(KindExternalAPI, "upstream_error", service+" request failed", err)
}

func Configuration(message string) *Error {
	return New(KindConfiguration, "configuration_error", message)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
