package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Request validation errors, raised before any estimator call
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDiscreteMeasure  = fmt.Errorf("%w: categorical variable supplied where a numeric measured variable is required", ErrInvalidArgument)
	ErrMissingVariable  = fmt.Errorf("%w: variable not found in design", ErrInvalidArgument)
	ErrUnsupportedCombo = fmt.Errorf("%w: unsupported option combination", ErrInvalidArgument)

	// Estimator-originated failures propagate unchanged under this sentinel
	ErrEstimator = errors.New("estimation failed")

	// Design construction errors
	ErrDesignShape = errors.New("design vectors do not align with the variables table")

	// Storage errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)
)

// NewInvalidArgumentError attaches context to an argument rejection.
func NewInvalidArgumentError(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, detail)
}

// NewEstimatorError wraps a failure surfaced by the estimation primitives.
func NewEstimatorError(statistic string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrEstimator, statistic, err)
}

// IsInvalidArgument checks whether err is a request validation failure.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsNotFoundError checks whether err is a missing-resource failure.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
