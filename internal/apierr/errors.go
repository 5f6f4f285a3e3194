// Package apierr defines the error taxonomy shared by the upstream client and
// the tool handlers, the translator from raw HTTP/transport failures into it,
// and the retry primitive that consults it.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindAuthentication      Kind = "authentication"
	KindPermission          Kind = "permission"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindRateLimit           Kind = "rate_limit"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindGeneric             Kind = "generic"
)

// Machine codes attached to transport failures.
const (
	CodeConnRefused = "ECONNREFUSED"
	CodeNotFound    = "ENOTFOUND"
	CodeTimeout     = "ETIMEDOUT"
	CodeNetwork     = "ENETWORK"
)

// Error is the single error type that crosses package boundaries.
// StatusCode is 0 when no HTTP response was received.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Code       string
	Details    any
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of kind with msg.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Validation returns a validation failure carrying optional field details.
func Validation(msg string, details any) *Error {
	return &Error{Kind: KindValidation, Message: msg, StatusCode: 400, Details: details}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindGeneric for errors outside the taxonomy.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindGeneric
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Wrap translates err into the taxonomy exactly once. Errors that already
// carry a Kind pass through unchanged; nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return Translate(err)
}
