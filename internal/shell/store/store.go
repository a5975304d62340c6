package store

import (
	"context"

	"github.com/artpar/waveplan/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for plans and their rollouts.
type Store interface {
	// Plan operations
	CreatePlan(ctx context.Context, plan *domain.PlanRecord) error
	GetPlan(ctx context.Context, id string) (*domain.PlanRecord, error)
	ListPlans(ctx context.Context, opts ListOptions) ([]domain.PlanRecord, error)
	DeletePlan(ctx context.Context, id string) error

	// Rollout operations
	CreateRollout(ctx context.Context, rollout *domain.Rollout) error
	GetRollout(ctx context.Context, id string) (*domain.Rollout, error)
	UpdateRollout(ctx context.Context, rollout *domain.Rollout) error
	ListRolloutsByPlan(ctx context.Context, planID string, opts ListOptions) ([]domain.Rollout, error)
	ListActiveRollouts(ctx context.Context) ([]domain.Rollout, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
