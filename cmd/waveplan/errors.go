package main

import (
	"errors"
	"fmt"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitValidationError = 2
	ExitPlanningError   = 3
	ExitDatabaseError   = 4
	ExitServerError     = 5
)

// =============================================================================
// Exit Error
// =============================================================================

// ExitError carries the exit code a failed command should produce.
type ExitError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newExitError(op string, err error, code int) *ExitError {
	return &ExitError{Op: op, Err: err, ExitCode: code}
}

// planExitCode classifies catalog, validation and planning failures.
func planExitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrCircularDependency),
		errors.Is(err, domain.ErrMissingDependency):
		return ExitValidationError
	case errors.Is(err, domain.ErrConfig),
		errors.Is(err, domain.ErrInvalidService),
		errors.Is(err, domain.ErrDuplicateService):
		return ExitConfigError
	case errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrUnknownService),
		errors.Is(err, domain.ErrUnresolvableDependency):
		return ExitPlanningError
	default:
		var storeErr *store.StoreError
		if errors.As(err, &storeErr) {
			return ExitDatabaseError
		}
		return ExitPlanningError
	}
}
