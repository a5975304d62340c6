package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Planning Errors
// =============================================================================

var (
	// Input errors
	ErrConfig           = errors.New("invalid service graph configuration")
	ErrInvalidService   = errors.New("invalid service definition")
	ErrDuplicateService = errors.New("service declared more than once")

	// Graph errors
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrMissingDependency  = errors.New("dependency references an undeclared service")

	// Planning errors
	ErrUnknownStrategy        = errors.New("unknown deployment strategy")
	ErrUnresolvableDependency = errors.New("cannot resolve dependencies for remaining services")
	ErrUnknownService         = errors.New("service is not declared in the graph")

	// Rollout errors
	ErrInvalidTransition = errors.New("invalid rollout status transition")
)

// PlanError wraps planning errors with the operation and service involved.
type PlanError struct {
	Op      string // e.g., "PlanWaves"
	Service string // Service ID if applicable
	Message string
	Err     error
}

func (e *PlanError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError creates a new PlanError.
func NewPlanError(op, service, message string, err error) *PlanError {
	return &PlanError{
		Op:      op,
		Service: service,
		Message: message,
		Err:     err,
	}
}
