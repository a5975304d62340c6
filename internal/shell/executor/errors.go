package executor

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrWaveFailed     = errors.New("wave failed")
	ErrRollbackFailed = errors.New("rollback failed")
	ErrRunnerStopped  = errors.New("runner is shut down")
)

// RunError describes why a rollout stopped.
type RunError struct {
	RolloutID string
	Wave      int
	Services  []string // services that failed in Wave
	Err       error
}

func (e *RunError) Error() string {
	if len(e.Services) > 0 {
		return fmt.Sprintf("rollout %s: wave %d: services [%s]: %v",
			e.RolloutID, e.Wave, strings.Join(e.Services, ", "), e.Err)
	}
	return fmt.Sprintf("rollout %s: wave %d: %v", e.RolloutID, e.Wave, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
