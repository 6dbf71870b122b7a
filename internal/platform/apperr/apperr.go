// Package apperr defines the structured error taxonomy shared by every
// domain package. Services return these values instead of logging or
// formatting user-facing messages; HTTP handlers translate them at the edge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the ledger's failure taxonomy.
type Kind string

const (
	// KindNotFound means a referenced entity is absent.
	KindNotFound Kind = "not_found"
	// KindValidation means malformed or out-of-range input.
	KindValidation Kind = "validation"
	// KindNoBedAvailable means the target ward has no free beds.
	KindNoBedAvailable Kind = "no_bed_available"
	// KindWardUnavailable means the target ward is not in Active status.
	KindWardUnavailable Kind = "ward_unavailable"
	// KindInsufficientStock means a stock decrement would cross the zero floor.
	KindInsufficientStock Kind = "insufficient_stock"
	// KindInvalidState means an illegal state transition was requested.
	KindInvalidState Kind = "invalid_state"
	// KindConflict means an idempotency key or exclusivity constraint was
	// already claimed by a previous request.
	KindConflict Kind = "conflict"
)

// Error carries the kind alongside a human-readable message and an optional
// wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports an absent entity, e.g. NotFound("ward", id).
func NotFound(entity string, id interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %v not found", entity, id)}
}

// Validationf reports malformed or out-of-range input.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NoBedAvailable reports an exhausted ward.
func NoBedAvailable(wardID interface{}) *Error {
	return &Error{Kind: KindNoBedAvailable, Msg: fmt.Sprintf("no beds available in ward %v", wardID)}
}

// WardUnavailable reports a ward that is closed or under maintenance.
func WardUnavailable(wardID interface{}, status string) *Error {
	return &Error{Kind: KindWardUnavailable, Msg: fmt.Sprintf("ward %v is %s", wardID, status)}
}

// InsufficientStock reports a stock precondition failure.
func InsufficientStock(medicine string, available, requested int) *Error {
	return &Error{
		Kind: KindInsufficientStock,
		Msg:  fmt.Sprintf("insufficient stock for %s: available %d, requested %d", medicine, available, requested),
	}
}

// InvalidStatef reports an illegal state transition.
func InvalidStatef(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf reports a claimed idempotency key or exclusivity violation.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" when err is not an apperr value.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code handlers should respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindNoBedAvailable, KindWardUnavailable, KindInsufficientStock, KindInvalidState:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
