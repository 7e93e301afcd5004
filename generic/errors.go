/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels, or with
  the IsClientError / IsConflict / IsNotFound helpers.

ERROR CATEGORIES:
  1. Validation  - bad input (malformed month, negative consumption)
  2. Conflict    - bills already exist for a period, regenerate not set
  3. Not found   - tenant, settings or active units missing
  4. Computation - malformed rate configuration or broken invariant
  5. Ledger      - credit pool would go negative

  Warnings (missing readings, no adjustments) are NOT errors. They travel
  on previews as plain strings.

SEE ALSO:
  - api/handlers.go: maps categories to HTTP status codes
  - billing/generator.go: raises Conflict and NotFound
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every bad-input failure.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a period already has generated bills.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is the root of every missing-resource failure.
	ErrNotFound = errors.New("not found")

	// ErrComputation is returned when a calculation cannot be completed.
	ErrComputation = errors.New("computation failed")

	// ErrInsufficientBalance is returned when a debit exceeds a pool's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateEntry is returned when a ledger entry ID is reused.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports that bills already exist for a tenant's month.
type ConflictError struct {
	TenantID TenantID
	Month    Month
	Existing int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d bills already exist for %s; resubmit with regenerate=true to replace them",
		e.Existing, e.Month.Label())
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ComputationError wraps an unexpected failure inside a calculation step.
type ComputationError struct {
	Op  string
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ComputationError) Unwrap() []error { return []error{ErrComputation, e.Err} }

// InsufficientBalanceError provides details about a pool shortage.
type InsufficientBalanceError struct {
	Account   string
	Pool      string
	Available string
	Requested string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: available %s, requested %s",
		e.Pool, e.Account, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsComputation returns true for internal calculation failures. Check it
// before IsClientError: a malformed rate configuration is reported as a
// computation failure even though its cause is a validation error.
func IsComputation(err error) bool {
	return errors.Is(err, ErrComputation)
}

// IsConflict returns true if the error is a duplicate-generation conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
