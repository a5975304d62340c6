// Package timing derives duration estimates and graph metrics from a plan.
// This is part of the Functional Core - all functions are pure with no I/O.
package timing

import (
	"math"

	"github.com/artpar/waveplan/internal/core/domain"
)

// parallelBonusWeight scales the concurrency bonus in ParallelEfficiency.
const parallelBonusWeight = 20.0

// =============================================================================
// Estimate
// =============================================================================

// Estimate holds the timing figures of a plan, in seconds and percent.
type Estimate struct {
	SequentialSeconds         float64
	OptimizedSeconds          float64
	SavingsSeconds            float64
	SavingsPercent            float64
	ParallelEfficiencyPercent float64
}

// WaveTime returns the time a wave takes: the slowest member's duration.
// Services the graph does not declare use the default duration.
func WaveTime(g *domain.DependencyGraph, services []string) float64 {
	longest := 0.0
	for _, id := range services {
		longest = math.Max(longest, g.NodeOrDefault(id).EstimatedDuration)
	}
	return longest
}

// EstimatePlan computes the timing figures for waves planned with strategy.
//
// With TimingLegacy the sequential total is the sum of wave times and the
// optimized total is the longest wave for the parallel strategies (and equal
// to the sequential total for StrategySequential).
//
// With TimingPipeline the sequential total is the sum of every service's
// duration and the optimized total is the sum of wave times.
func EstimatePlan(strategy domain.Strategy, waves []domain.DeploymentWave, g *domain.DependencyGraph, model domain.TimingModel) Estimate {
	var sumWaves, maxWave, sumServices float64
	for _, w := range waves {
		wt := WaveTime(g, w.Services)
		sumWaves += wt
		maxWave = math.Max(maxWave, wt)
		for _, id := range w.Services {
			sumServices += g.NodeOrDefault(id).EstimatedDuration
		}
	}

	var est Estimate
	switch model {
	case domain.TimingPipeline:
		est.SequentialSeconds = sumServices
		est.OptimizedSeconds = sumWaves
	default:
		est.SequentialSeconds = sumWaves
		if strategy == domain.StrategySequential {
			est.OptimizedSeconds = sumWaves
		} else {
			est.OptimizedSeconds = maxWave
		}
	}

	est.SavingsSeconds = est.SequentialSeconds - est.OptimizedSeconds
	est.SavingsPercent = SavingsPercent(est.SequentialSeconds, est.SavingsSeconds)
	est.ParallelEfficiencyPercent = ParallelEfficiency(waves)
	return est
}

// SavingsPercent returns savings as a percentage of total, or 0 when total is 0.
func SavingsPercent(total, savings float64) float64 {
	if total <= 0 {
		return 0
	}
	return savings / total * 100
}

// ParallelEfficiency scores how much of a plan runs concurrently.
// It is the share of waves with more than one member, plus a bonus of up to
// 20 points for the extra members those waves carry, capped at 100.
func ParallelEfficiency(waves []domain.DeploymentWave) float64 {
	if len(waves) == 0 {
		return 0
	}

	parallelWaves := 0
	extraMembers := 0
	totalServices := 0
	for _, w := range waves {
		totalServices += len(w.Services)
		if len(w.Services) > 1 {
			parallelWaves++
			extraMembers += len(w.Services) - 1
		}
	}

	efficiency := float64(parallelWaves) / float64(len(waves)) * 100
	if totalServices > 0 {
		efficiency += float64(extraMembers) / float64(totalServices) * parallelBonusWeight
	}
	return math.Min(efficiency, 100)
}

// Apply copies the estimate onto plan.
func Apply(plan *domain.DeploymentPlan, est Estimate) {
	plan.EstimatedSequentialTimeSeconds = est.SequentialSeconds
	plan.EstimatedOptimizedTimeSeconds = est.OptimizedSeconds
	plan.TimeSavingsSeconds = est.SavingsSeconds
	plan.TimeSavingsPercent = est.SavingsPercent
	plan.ParallelEfficiencyPercent = est.ParallelEfficiencyPercent
}
