// Package apperr defines the failure taxonomy shared by all request
// operations: not-found, authorization, validation, state-conflict
// and rate-limit failures are distinct and must stay distinct all the
// way to the caller.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindNotFound means an identifier resolved to no entity, or not
	// under the addressed parent.
	KindNotFound Kind = iota + 1
	// KindForbidden means the caller lacks ownership or staff
	// privilege for an existing entity.
	KindForbidden
	// KindValidation means malformed or missing input, an invalid enum
	// value, or a reference to a non-existent companion entity.
	KindValidation
	// KindConflict means the requested transition is illegal for the
	// entity's current state.
	KindConflict
	// KindRateLimited means a throttle bound was exceeded.
	KindRateLimited
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is a classified operation failure. Field identifies the
// offending input for validation failures.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Field, e.Msg, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports that the named entity does not exist.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Msg: entity + " not found"}
}

// Forbidden reports an authorization failure.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

// Validation reports invalid input for the given field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// Conflict reports an illegal transition for the current state.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// RateLimited reports an exceeded throttle bound. msg names the bound
// that triggered (count and window).
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Msg: msg}
}

// Wrap attaches a cause to a classified error.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of err, or 0 for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
