package api

import (
	"time"

	"github.com/artpar/waveplan/internal/core/catalog"
	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/validation"
)

// =============================================================================
// Request Types
// =============================================================================

// GraphRequest is an inline service graph. Requests that omit it use the
// catalog the server was started with.
type GraphRequest struct {
	Services                map[string]catalog.ServiceSpec  `json:"services"`
	DeploymentStrategies    map[string]catalog.StrategySpec `json:"deployment_strategies,omitempty"`
	RollbackOrder           []string                        `json:"rollback_order,omitempty"`
	HealthCheckDependencies map[string][]string             `json:"health_check_dependencies,omitempty"`
}

// ValidateRequest is the request body for validating a graph.
type ValidateRequest struct {
	Graph    *GraphRequest `json:"graph,omitempty"`
	Services []string      `json:"services,omitempty"`
}

// CreatePlanRequest is the request body for creating a plan.
type CreatePlanRequest struct {
	Graph       *GraphRequest `json:"graph,omitempty"`
	Strategy    string        `json:"strategy"`
	Services    []string      `json:"services,omitempty"`
	TimingModel string        `json:"timing_model,omitempty"`
}

// RollbackOrderRequest is the request body for resolving a rollback order.
// With PlanID set, the plan's stored rollback order and waves are used.
// Otherwise the catalog's rollback order is, and a catalog without one falls
// back to the reverse waves of a plan built with Strategy.
type RollbackOrderRequest struct {
	Deployed []string `json:"deployed"`
	PlanID   string   `json:"plan_id,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// ServiceResponse describes one catalog service.
type ServiceResponse struct {
	ID                      string   `json:"id"`
	Dependencies            []string `json:"dependencies"`
	Dependents              []string `json:"dependents"`
	Priority                int      `json:"priority"`
	ParallelGroup           int      `json:"parallel_group"`
	EstimatedDuration       float64  `json:"estimated_duration"`
	HealthCheckDependencies []string `json:"health_check_dependencies"`
}

// ListServicesResponse is the response for listing catalog services.
type ListServicesResponse struct {
	Services []ServiceResponse `json:"services"`
	Total    int               `json:"total"`
}

// StrategyResponse describes one deployment strategy.
type StrategyResponse struct {
	Name                 string `json:"name"`
	AllowParallel        bool   `json:"allow_parallel"`
	MaxConcurrentPerWave int    `json:"max_concurrent_per_wave"`
}

// ListStrategiesResponse is the response for listing strategies.
type ListStrategiesResponse struct {
	Strategies []StrategyResponse `json:"strategies"`
}

// ValidationResponse is the response for graph validation.
type ValidationResponse struct {
	Valid  bool                    `json:"valid"`
	Errors []validation.GraphError `json:"errors"`
}

// PlanResponse is the response for plan operations.
type PlanResponse struct {
	ID            string                `json:"id"`
	Services      []string              `json:"services"`
	RollbackOrder []string              `json:"rollback_order"`
	Plan          domain.DeploymentPlan `json:"plan"`
	CreatedAt     time.Time             `json:"created_at"`
}

// ListPlansResponse is the response for listing plans.
type ListPlansResponse struct {
	Plans  []PlanResponse `json:"plans"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// RunResponse is the response for rollout operations.
type RunResponse struct {
	ID            string     `json:"id"`
	PlanID        string     `json:"plan_id"`
	Status        string     `json:"status"`
	CurrentWave   int        `json:"current_wave"`
	Deployed      []string   `json:"deployed"`
	Failed        []string   `json:"failed"`
	RollbackOrder []string   `json:"rollback_order"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// ListRunsResponse is the response for listing rollouts.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// RollbackOrderResponse is the response for rollback order resolution.
type RollbackOrderResponse struct {
	Order []string `json:"order"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Conversions
// =============================================================================

func (g *GraphRequest) document() catalog.Document {
	return catalog.Document{
		Services:                g.Services,
		DeploymentStrategies:    g.DeploymentStrategies,
		RollbackOrder:           g.RollbackOrder,
		HealthCheckDependencies: g.HealthCheckDependencies,
	}
}

func planToResponse(p *domain.PlanRecord) PlanResponse {
	return PlanResponse{
		ID:            p.ID,
		Services:      nonNil(p.Services),
		RollbackOrder: nonNil(p.RollbackOrder),
		Plan:          p.Plan,
		CreatedAt:     p.CreatedAt,
	}
}

func runToResponse(r *domain.Rollout) RunResponse {
	return RunResponse{
		ID:            r.ID,
		PlanID:        r.PlanID,
		Status:        string(r.Status),
		CurrentWave:   r.CurrentWave,
		Deployed:      nonNil(r.Deployed),
		Failed:        nonNil(r.Failed),
		RollbackOrder: nonNil(r.RollbackOrder),
		ErrorMessage:  r.ErrorMessage,
		StartedAt:     r.StartedAt,
		UpdatedAt:     r.UpdatedAt,
		FinishedAt:    r.FinishedAt,
	}
}

func serviceToResponse(c *catalog.Catalog, n domain.ServiceNode) ServiceResponse {
	return ServiceResponse{
		ID:                      n.ID,
		Dependencies:            nonNil(n.Dependencies),
		Dependents:              nonNil(c.Graph.Dependents(n.ID)),
		Priority:                n.Priority,
		ParallelGroup:           n.ParallelGroup,
		EstimatedDuration:       n.EstimatedDuration,
		HealthCheckDependencies: nonNil(c.HealthCheckDependencies(n.ID)),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
