// Package deployment provides pure functions for deployment wave planning.
//
// This package contains the functional core logic for turning a dependency
// graph into an ordered sequence of waves. All functions are pure (no I/O,
// no side effects) and safe to call concurrently.
//
// # Functions
//
//   - PlanWaves: Partition selected services into waves under a strategy
//   - BuildPlan: Validate, plan and estimate a complete DeploymentPlan
//   - VerifyWaves: Re-check the ordering invariant of any wave list
//   - EffectiveStrategy: Resolve the grouping used for a strategy configuration
//
// # Usage
//
// The imperative shell (internal/shell/api, cmd/waveplan) builds plans with
// these functions, then hands the waves to the executor one at a time.
//
//	plan, err := deployment.BuildPlan(deployment.PlanRequest{
//	    Graph:    catalog.Graph,
//	    Strategy: "parallel_optimized",
//	})
package deployment
