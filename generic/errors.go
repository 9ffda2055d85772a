/*
errors.go - Categorized error types for the quota engine

PURPOSE:
  Every failure the engine reports on purpose falls into one of three
  categories. Callers branch on the category, never on message text.

ERROR CATEGORIES:
  NOT_FOUND:   a referenced entity does not exist
  BAD_REQUEST: an invariant is violated (inactive dependency, invalid
               scope/method combination, empty eligible-unit set,
               malformed date range)
  CONFLICT:    duplicate generation for a period, overlapping rule,
               duplicate assignment

  Anything else (store failures) is an internal error and is wrapped with
  fmt.Errorf("...: %w", err) on its way up.

USAGE:
  return nil, generic.NotFound("payment concept not found")

  if generic.IsConflict(err) {
      // already generated, skip
  }

SEE ALSO:
  - api/errors.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the category of every "referenced entity absent" error.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is the category of every invariant violation.
	ErrBadRequest = errors.New("bad request")

	// ErrConflict is the category of duplicate/overlap errors.
	ErrConflict = errors.New("conflict")

	// ErrInvalidPeriod is returned when a date range ends before it starts.
	ErrInvalidPeriod = &Error{Code: CodeBadRequest, Message: "effective from date must be before or equal to effective to date"}
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// Code is the wire name of an error category.
type Code string

const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeBadRequest Code = "BAD_REQUEST"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Error is a categorized failure with a client-safe message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the category sentinel so errors.Is works.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeBadRequest:
		return ErrBadRequest
	case CodeConflict:
		return ErrConflict
	default:
		return nil
	}
}

func NotFound(msg string) error   { return &Error{Code: CodeNotFound, Message: msg} }
func BadRequest(msg string) error { return &Error{Code: CodeBadRequest, Message: msg} }
func Conflict(msg string) error   { return &Error{Code: CodeConflict, Message: msg} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// CodeOf returns the category of err, CodeInternal for uncategorized errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrConflict):
		return CodeConflict
	}
	return CodeInternal
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true for duplicate generation / overlapping rules.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError returns true if the caller can fix the error by changing input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrBadRequest) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}
