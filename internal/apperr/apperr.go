// Package apperr defines the error taxonomy surfaced by the authentication
// subsystem. The transport boundary maps kinds to status codes; internal
// causes stay wrapped and never reach clients.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	// KindInternal covers unexpected failures (database, cache, crypto).
	KindInternal Kind = iota
	// KindUnauthorized covers bad credentials, invalid/expired/blacklisted
	// tokens, and missing or expired sessions.
	KindUnauthorized
	// KindNotFound covers lookups that legitimately surface a miss
	// (e.g. password-reset request for an unknown email).
	KindNotFound
	// KindConflict covers duplicate email and already-verified states.
	KindConflict
	// KindBadRequest covers rejected input such as a blocked account.
	KindBadRequest
)

// Error carries a kind, a client-safe message, and an optional internal cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the internal cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same kind. Messages are not
// compared so callers can branch on taxonomy alone.
func (e *Error) Is(target error) bool {
	var ae *Error
	if errors.As(target, &ae) {
		return e.Kind == ae.Kind
	}
	return false
}

// New returns an error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind that keeps err as its cause.
// Returns nil when err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Sentinel instances for errors.Is checks on taxonomy alone.
var (
	Unauthorized = New(KindUnauthorized, "unauthorized")
	NotFound     = New(KindNotFound, "not found")
	Conflict     = New(KindConflict, "conflict")
	BadRequest   = New(KindBadRequest, "bad request")
)
