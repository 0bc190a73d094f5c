/*
errors.go - Centralized error types for the costing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The loader, the engine and the stores wrap these with context.

ERROR CATEGORIES:
  1. Lookup errors     - Scheme not found upstream
  2. Definition errors - Missing dates, bad basis, overlapping periods
  3. Internal errors   - A stage failed; the whole calculation is discarded

USAGE:
    if errors.Is(err, scheme.ErrSchemeMissing) {
        // 404
    }

  Empty sales is not an error: the engine returns a table with headers
  and no rows. A missing or empty slab table is not an error either: the
  affected coefficients become 0.

SEE ALSO:
  - factory/scheme.go: Produces MalformedError
  - costing/stage.go: Produces StageError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package scheme

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchemeMissing is returned when the scheme id is unknown upstream.
	ErrSchemeMissing = errors.New("scheme not found")

	// ErrSchemeMalformed is returned when a scheme definition cannot be used:
	// required dates or basis missing, or periods that overlap invalidly.
	ErrSchemeMalformed = errors.New("scheme definition malformed")

	// ErrInternal is returned when a calculation stage fails unexpectedly.
	ErrInternal = errors.New("internal calculation error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedError names the offending field of a scheme definition.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("scheme definition malformed: %s: %s", e.Field, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrSchemeMalformed
}

// Malformed is shorthand for a MalformedError.
func Malformed(field, format string, args ...any) error {
	return &MalformedError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MissingError carries the scheme id that could not be found.
type MissingError struct {
	SchemeID string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("scheme not found: %s", e.SchemeID)
}

func (e *MissingError) Unwrap() error {
	return ErrSchemeMissing
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the requested scheme
// rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSchemeMissing) ||
		errors.Is(err, ErrSchemeMalformed)
}

// IsNotFound returns true if the error indicates a missing scheme.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSchemeMissing)
}
