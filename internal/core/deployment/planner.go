package deployment

import (
	"fmt"
	"strings"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/timing"
	"github.com/artpar/waveplan/internal/core/validation"
)

// =============================================================================
// Plan Assembly
// =============================================================================

// PlanRequest holds everything needed to build a deployment plan.
type PlanRequest struct {
	// Graph is the declared service graph.
	Graph *domain.DependencyGraph

	// Services restricts planning to these ids. Empty means every declared service.
	Services []string

	// Strategy is the strategy tag, e.g. "parallel_optimized".
	Strategy string

	// Catalog supplies per-strategy settings. Nil uses the defaults.
	Catalog domain.StrategyCatalog

	// TimingModel selects how totals are computed. Empty means legacy.
	TimingModel domain.TimingModel

	// StrictServices rejects selected ids the graph does not declare
	// instead of planning them with default settings.
	StrictServices bool
}

// BuildPlan validates the request and produces a complete plan.
//
// The steps are:
//  1. Parse the strategy tag (ErrUnknownStrategy)
//  2. Resolve the selection, rejecting unknown ids in strict mode (ErrUnknownService)
//  3. Validate the selected part of the graph; every problem is reported at once
//  4. Plan waves, falling back to one service per wave when the catalog
//     disables parallelism for the strategy
//  5. Fill in per-wave limits, timing figures and the dependency analysis
//
// No partial plan is ever returned alongside an error.
//
// Example:
//
//	plan, err := BuildPlan(PlanRequest{Graph: g, Strategy: "parallel_optimized"})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(plan.TotalWaves, plan.TimeSavingsPercent)
func BuildPlan(req PlanRequest) (*domain.DeploymentPlan, error) {
	strategy, err := domain.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}

	selected := normalizeSelection(req.Graph, req.Services)
	if req.StrictServices {
		if err := checkKnown(req.Graph, selected); err != nil {
			return nil, err
		}
	}

	if res := validation.ValidateSelection(req.Graph, selected); !res.Valid {
		return nil, domain.NewPlanError("BuildPlan", "",
			fmt.Sprintf("dependency graph is invalid: %s", strings.Join(res.Messages(), "; ")),
			res.Err())
	}

	cfg := req.Catalog.Lookup(strategy)
	effective := EffectiveStrategy(strategy, cfg)

	waves, err := PlanWaves(req.Graph, selected, effective)
	if err != nil {
		return nil, err
	}
	decorateWaves(req.Graph, waves, cfg)

	model := req.TimingModel
	if model == "" {
		model = domain.TimingLegacy
	}

	plan := &domain.DeploymentPlan{
		Strategy:      strategy,
		TotalWaves:    len(waves),
		TotalServices: len(selected),
		Waves:         waves,
		TimingModel:   model,
		Analysis:      timing.Analyze(req.Graph, selected),
	}
	timing.Apply(plan, timing.EstimatePlan(effective, waves, req.Graph, model))

	return plan, nil
}

// EffectiveStrategy returns the strategy used for grouping. A parallel
// strategy whose configuration disallows parallelism plans like sequential.
func EffectiveStrategy(s domain.Strategy, cfg domain.StrategyConfig) domain.Strategy {
	if s != domain.StrategySequential && !cfg.AllowParallel {
		return domain.StrategySequential
	}
	return s
}

func checkKnown(g *domain.DependencyGraph, selected []string) error {
	for _, id := range selected {
		if !g.Has(id) {
			return domain.NewPlanError("BuildPlan", id, "service is not declared", domain.ErrUnknownService)
		}
	}
	return nil
}

// decorateWaves fills the per-wave fields that depend on the graph and the
// strategy configuration.
func decorateWaves(g *domain.DependencyGraph, waves []domain.DeploymentWave, cfg domain.StrategyConfig) {
	planned := make(map[string]int)
	for _, w := range waves {
		for _, id := range w.Services {
			planned[id] = w.WaveNumber
		}
	}

	for i := range waves {
		w := &waves[i]
		w.MaxConcurrent = min(len(w.Services), max(cfg.MaxConcurrentPerWave, 1))
		w.EstimatedTimeSeconds = timing.WaveTime(g, w.Services)
		w.DependenciesSatisfied = true
		for _, id := range w.Services {
			for _, dep := range g.Dependencies(id) {
				if at, ok := planned[dep]; ok && at >= w.WaveNumber {
					w.DependenciesSatisfied = false
				}
			}
		}
	}
}
