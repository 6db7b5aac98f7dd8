package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors
	ErrUnknownStatistic  = errors.New("unknown test statistic")
	ErrUnknownModel      = errors.New("unknown run/model identifier")
	ErrUnknownClassifier = errors.New("unknown classifier")
	ErrUnknownAlgorithm  = errors.New("unknown quantile regression algorithm")
	ErrNuisanceRejected  = errors.New("nuisance parameters not supported by model")
	ErrMissingGrid       = errors.New("statistic requires a parameter grid")
	ErrMissingGenerator  = errors.New("statistic requires a parameter generator")

	// Unimplemented features
	ErrNuisanceNotImplemented = errors.New("nuisance parameter coverage not implemented")

	// Data errors
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrEmptyInput        = errors.New("empty input")
	ErrNotFitted         = errors.New("model used before fit")
	ErrReferenceNotSet   = errors.New("reference distribution not set")
)

// NewDimensionError reports a shape mismatch with the offending sizes
func NewDimensionError(what string, got, want int) error {
	return fmt.Errorf("%w: %s has %d, want %d", ErrDimensionMismatch, what, got, want)
}

// IsConfigurationError reports whether err stems from an invalid configuration choice
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownStatistic) ||
		errors.Is(err, ErrUnknownModel) ||
		errors.Is(err, ErrUnknownClassifier) ||
		errors.Is(err, ErrUnknownAlgorithm) ||
		errors.Is(err, ErrNuisanceRejected) ||
		errors.Is(err, ErrMissingGrid) ||
		errors.Is(err, ErrMissingGenerator)
}

// NewValidationError reports an incomplete or inconsistent record
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}
