package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Timing Model
// =============================================================================

// TimingModel selects how sequential and optimized totals are derived.
type TimingModel string

const (
	// TimingLegacy sums wave maxima for the sequential total and takes the
	// largest wave as the optimized total.
	TimingLegacy TimingModel = "legacy"
	// TimingPipeline sums every service for the sequential total and sums
	// wave maxima for the optimized total, since waves run one after another.
	TimingPipeline TimingModel = "pipeline"
)

// ParseTimingModel converts a timing model name. An empty name selects
// TimingLegacy; any other unknown name fails with ErrConfig.
func ParseTimingModel(s string) (TimingModel, error) {
	switch TimingModel(s) {
	case "", TimingLegacy:
		return TimingLegacy, nil
	case TimingPipeline:
		return TimingPipeline, nil
	default:
		return "", NewPlanError("ParseTimingModel", "",
			fmt.Sprintf("unknown timing model %q (want legacy or pipeline)", s), ErrConfig)
	}
}

// =============================================================================
// Deployment Plan
// =============================================================================

// DeploymentWave is a group of services that may deploy concurrently.
type DeploymentWave struct {
	WaveNumber            int      `json:"wave_number"`
	Services              []string `json:"services"`
	AllowParallel         bool     `json:"allow_parallel"`
	MaxConcurrent         int      `json:"max_concurrent"`
	EstimatedTimeSeconds  float64  `json:"estimated_time_seconds"`
	DependenciesSatisfied bool     `json:"dependencies_satisfied"`
}

// DependencyAnalysis summarises the shape of the planned graph.
type DependencyAnalysis struct {
	TotalDependencies   int `json:"total_dependencies"`
	IndependentServices int `json:"independent_services"`
	MaxDependencyDepth  int `json:"max_dependency_depth"`
}

// DeploymentPlan is the complete output of a planning request.
type DeploymentPlan struct {
	Strategy                       Strategy           `json:"strategy"`
	TotalWaves                     int                `json:"total_waves"`
	TotalServices                  int                `json:"total_services"`
	Waves                          []DeploymentWave   `json:"waves"`
	EstimatedSequentialTimeSeconds float64            `json:"estimated_sequential_time_seconds"`
	EstimatedOptimizedTimeSeconds  float64            `json:"estimated_optimized_time_seconds"`
	TimeSavingsSeconds             float64            `json:"time_savings_seconds"`
	TimeSavingsPercent             float64            `json:"time_savings_percent"`
	ParallelEfficiencyPercent      float64            `json:"parallel_efficiency_percent"`
	TimingModel                    TimingModel        `json:"timing_model"`
	Analysis                       DependencyAnalysis `json:"dependency_analysis"`
}

// Services returns every planned service in wave order.
func (p *DeploymentPlan) Services() []string {
	var out []string
	for _, w := range p.Waves {
		out = append(out, w.Services...)
	}
	return out
}

// WaveOf returns the wave number that contains id, or 0.
func (p *DeploymentPlan) WaveOf(id string) int {
	for _, w := range p.Waves {
		for _, s := range w.Services {
			if s == id {
				return w.WaveNumber
			}
		}
	}
	return 0
}

// =============================================================================
// Plan Record
// =============================================================================

// PlanRecord is a stored plan together with what is needed to execute it
// later: the requested selection and the rollback order in force when the
// plan was made.
type PlanRecord struct {
	ID            string         `json:"id"`
	Services      []string       `json:"services"`
	RollbackOrder []string       `json:"rollback_order"`
	Plan          DeploymentPlan `json:"plan"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewPlanRecord wraps plan in a record created now.
func NewPlanRecord(id string, services, rollbackOrder []string, plan DeploymentPlan) *PlanRecord {
	return &PlanRecord{
		ID:            id,
		Services:      append([]string{}, services...),
		RollbackOrder: append([]string{}, rollbackOrder...),
		Plan:          plan,
		CreatedAt:     time.Now().UTC(),
	}
}
