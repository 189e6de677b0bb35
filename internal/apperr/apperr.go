// Package apperr defines the error taxonomy shared by the ledger, the
// membership state machine and the storage layer. Every error carries a
// machine-checkable Kind and a human-readable message; the RPC layer maps
// kinds onto transport codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind int

const (
	// KindInternal is the zero value: an unexpected failure.
	KindInternal Kind = iota

	// KindValidation means the input was rejected before any state changed.
	KindValidation

	// KindAuthorization means the actor lacks the role for the action.
	KindAuthorization

	// KindConflict means the state moved underneath the caller (version
	// mismatch, request already resolved). Refresh and retry.
	KindConflict

	// KindTransient means a dependency failed. Safe to retry with the same
	// idempotency key.
	KindTransient

	// KindNotFound means the referenced entity does not exist.
	KindNotFound
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrForbidden  = &Error{Kind: KindAuthorization, Message: "forbidden"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrTransient  = &Error{Kind: KindTransient, Message: "temporarily unavailable"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// holds for every conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return newf(KindValidation, format, args...)
}

// Forbidden returns a KindAuthorization error.
func Forbidden(format string, args ...any) error {
	return newf(KindAuthorization, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return newf(KindConflict, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

// Transient wraps err as a retryable failure.
func Transient(err error, format string, args ...any) error {
	e := newf(KindTransient, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
