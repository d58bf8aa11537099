package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Data preparation errors
	ErrSchema           = errors.New("schema error")
	ErrMissingData      = errors.New("missing data")
	ErrNestingViolation = errors.New("nesting violation")

	// Estimation errors
	ErrDegenerateResponse = errors.New("degenerate response")
	ErrSingularDesign     = errors.New("singular design matrix")
	ErrInsufficientData   = errors.New("insufficient data for estimation")

	// Comparison errors
	ErrNotNested          = errors.New("models are not nested")
	ErrCriterionMismatch  = errors.New("estimation criteria differ")
	ErrREMLNotComparable  = errors.New("REML likelihoods are not comparable across fixed-effect structures")
	ErrSampleSizeMismatch = errors.New("models were fit on different effective sample sizes")
	ErrResponseMismatch   = errors.New("models have different response variables")
	ErrInvalidSpec        = errors.New("invalid model specification")
)

// Error constructors with context

func NewSchemaError(column string) error {
	return fmt.Errorf("%w: column %q not found in dataset", ErrSchema, column)
}

func NewNestingViolationError(inner, innerGroup, outer string, first, second string) error {
	return fmt.Errorf("%w: %s %q maps to %s %q and %q", ErrNestingViolation,
		inner, innerGroup, outer, first, second)
}

func NewDegenerateResponseError(response string) error {
	return fmt.Errorf("%w: %q has zero variance", ErrDegenerateResponse, response)
}

func NewSpecError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, reason)
}

// Error checking helpers

func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}

func IsNestingViolation(err error) bool {
	return errors.Is(err, ErrNestingViolation)
}

func IsNotNested(err error) bool {
	return errors.Is(err, ErrNotNested) ||
		errors.Is(err, ErrCriterionMismatch) ||
		errors.Is(err, ErrREMLNotComparable) ||
		errors.Is(err, ErrSampleSizeMismatch) ||
		errors.Is(err, ErrResponseMismatch)
}

func IsEstimationError(err error) bool {
	return errors.Is(err, ErrDegenerateResponse) ||
		errors.Is(err, ErrSingularDesign) ||
		errors.Is(err, ErrInsufficientData)
}
