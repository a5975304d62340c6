package domain

import "time"

// =============================================================================
// Rollout Status
// =============================================================================

// RolloutStatus is the execution state of a plan being carried out by an
// executor. The planner never sets it; it exists so waves map cleanly onto the
// caller's state machine.
type RolloutStatus string

const (
	RolloutInitialized    RolloutStatus = "initialized"
	RolloutPlanning       RolloutStatus = "planning"
	RolloutWaveInProgress RolloutStatus = "wave_in_progress"
	RolloutWaveSucceeded  RolloutStatus = "wave_succeeded"
	RolloutWaveFailed     RolloutStatus = "wave_failed"
	RolloutRolledBack     RolloutStatus = "rolled_back"
	RolloutCompleted      RolloutStatus = "completed"
)

// IsTerminal reports whether no further transitions are possible.
func (s RolloutStatus) IsTerminal() bool {
	return s == RolloutCompleted || s == RolloutRolledBack
}

// =============================================================================
// Rollout
// =============================================================================

// Rollout records one execution of a deployment plan.
type Rollout struct {
	ID            string        `json:"id"`
	PlanID        string        `json:"plan_id"`
	Status        RolloutStatus `json:"status"`
	CurrentWave   int           `json:"current_wave"`
	Deployed      []string      `json:"deployed"`
	Failed        []string      `json:"failed,omitempty"`
	RollbackOrder []string      `json:"rollback_order,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// NewRollout creates a rollout in the initialized state.
func NewRollout(id, planID string) *Rollout {
	now := time.Now().UTC()
	return &Rollout{
		ID:        id,
		PlanID:    planID,
		Status:    RolloutInitialized,
		Deployed:  []string{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the rollout to a new status.
func (r *Rollout) Transition(to RolloutStatus) error {
	if err := ValidateRolloutTransition(r.Status, to); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.Status = to
	r.UpdatedAt = now
	if to.IsTerminal() {
		r.FinishedAt = &now
	}
	return nil
}

// =============================================================================
// State Machine
// =============================================================================

// validRolloutTransitions defines the allowed state transitions.
var validRolloutTransitions = map[RolloutStatus][]RolloutStatus{
	RolloutInitialized:    {RolloutPlanning},
	RolloutPlanning:       {RolloutWaveInProgress, RolloutCompleted},
	RolloutWaveInProgress: {RolloutWaveSucceeded, RolloutWaveFailed},
	RolloutWaveSucceeded:  {RolloutWaveInProgress, RolloutCompleted},
	RolloutWaveFailed:     {RolloutRolledBack},
	RolloutRolledBack:     {}, // Terminal state
	RolloutCompleted:      {}, // Terminal state
}

// CanTransitionTo reports whether s may move to target.
func (s RolloutStatus) CanTransitionTo(target RolloutStatus) bool {
	for _, allowed := range validRolloutTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateRolloutTransition checks if a rollout status transition is valid.
func ValidateRolloutTransition(from, to RolloutStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	return nil
}
