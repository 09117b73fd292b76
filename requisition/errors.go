package requisition

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a submission or request is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrPeriodClosed is returned when writing outside an open period.
	ErrPeriodClosed = errors.New("period is not open for submissions")

	// ErrPeriodNotFound is returned when a referenced period does not exist.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrNoData signals an empty result. It is not a failure.
	ErrNoData = errors.New("no data")

	// ErrUnknownReference is returned when a write names a material, zone,
	// department or period that does not exist.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrUnknownCatalog is returned for an unsupported catalog kind.
	ErrUnknownCatalog = errors.New("unknown catalog")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a closed period.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrUnknownReference)
}
