package deployment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/validation"
)

// =============================================================================
// Wave Grouping
// =============================================================================

// groupFunc picks the next wave from the deployable services.
// deployable is non-empty and sorted; the result must be a non-empty subset.
type groupFunc func(g *domain.DependencyGraph, deployable []string) []string

// groupSequential takes the first deployable service. Because deployable is
// sorted this is Kahn's algorithm with a lexicographic tie-break.
func groupSequential(_ *domain.DependencyGraph, deployable []string) []string {
	return deployable[:1]
}

// groupByParallelGroup takes every deployable service in the smallest group.
func groupByParallelGroup(g *domain.DependencyGraph, deployable []string) []string {
	return smallestBy(deployable, func(id string) int { return g.NodeOrDefault(id).ParallelGroup })
}

// groupByPriority takes every deployable service with the smallest priority.
func groupByPriority(g *domain.DependencyGraph, deployable []string) []string {
	return smallestBy(deployable, func(id string) int { return g.NodeOrDefault(id).Priority })
}

func smallestBy(ids []string, key func(string) int) []string {
	var wave []string
	best := 0
	for _, id := range ids {
		k := key(id)
		switch {
		case len(wave) == 0 || k < best:
			best = k
			wave = []string{id}
		case k == best:
			wave = append(wave, id)
		}
	}
	return wave
}

// grouping returns the grouping function for a strategy.
func grouping(s domain.Strategy) (groupFunc, error) {
	switch s {
	case domain.StrategySequential:
		return groupSequential, nil
	case domain.StrategyParallelOptimized:
		return groupByParallelGroup, nil
	case domain.StrategyPriorityBased:
		return groupByPriority, nil
	default:
		return nil, domain.NewPlanError("PlanWaves", "", fmt.Sprintf("unknown deployment strategy %q", s), domain.ErrUnknownStrategy)
	}
}

// =============================================================================
// Wave Planning
// =============================================================================

// PlanWaves partitions the selected services into ordered waves.
//
// selection defaults to every service in g. Selected ids that g does not
// declare are planned with default settings. A dependency on a declared
// service outside the selection counts as already deployed; a dependency on
// a service g does not declare fails with ErrMissingDependency.
//
// The planner repeatedly collects the deployable services (those whose
// in-selection dependencies have all been placed) and lets the strategy pick
// the next wave from them:
//
//   - sequential: one service per wave, smallest id first
//   - parallel_optimized: every deployable service in the smallest parallel group
//   - priority_based: every deployable service with the smallest priority
//
// Wave members are sorted, so the output is identical across calls.
// If no service is deployable while some remain, planning fails with
// ErrUnresolvableDependency and no waves are returned.
//
// Example:
//
//	waves, err := PlanWaves(g, nil, domain.StrategyParallelOptimized)
//	// auth <- menu, payment; order <- auth, menu
//	// Result: [auth] [menu payment] [order]
func PlanWaves(g *domain.DependencyGraph, selection []string, strategy domain.Strategy) ([]domain.DeploymentWave, error) {
	group, err := grouping(strategy)
	if err != nil {
		return nil, err
	}

	selected := normalizeSelection(g, selection)
	if err := checkDeclared(g, selected); err != nil {
		return nil, err
	}

	inSelection := make(map[string]bool, len(selected))
	for _, id := range selected {
		inSelection[id] = true
	}

	deployed := make(map[string]bool, len(selected))
	remaining := selected
	waves := []domain.DeploymentWave{}

	for len(remaining) > 0 {
		deployable := make([]string, 0, len(remaining))
		for _, id := range remaining {
			if isDeployable(g, id, inSelection, deployed) {
				deployable = append(deployable, id)
			}
		}

		if len(deployable) == 0 {
			return nil, domain.NewPlanError("PlanWaves", "",
				fmt.Sprintf("no deployable service among remaining [%s]", strings.Join(remaining, ", ")),
				domain.ErrUnresolvableDependency)
		}

		members := append([]string(nil), group(g, deployable)...)
		sort.Strings(members)
		for _, id := range members {
			deployed[id] = true
		}

		waves = append(waves, domain.DeploymentWave{
			WaveNumber:    len(waves) + 1,
			Services:      members,
			AllowParallel: len(members) > 1,
		})

		next := remaining[:0:0]
		for _, id := range remaining {
			if !deployed[id] {
				next = append(next, id)
			}
		}
		remaining = next
	}

	return waves, nil
}

// normalizeSelection returns the sorted, de-duplicated selection, or every
// declared id when selection is empty.
func normalizeSelection(g *domain.DependencyGraph, selection []string) []string {
	if len(selection) == 0 {
		return g.IDs()
	}
	seen := make(map[string]bool, len(selection))
	out := make([]string, 0, len(selection))
	for _, id := range selection {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func checkDeclared(g *domain.DependencyGraph, selected []string) error {
	for _, id := range selected {
		for _, dep := range g.Dependencies(id) {
			if !g.Has(dep) {
				return domain.NewPlanError("PlanWaves", id,
					fmt.Sprintf("depends on undeclared service %s", dep), domain.ErrMissingDependency)
			}
		}
	}
	return nil
}

func isDeployable(g *domain.DependencyGraph, id string, inSelection, deployed map[string]bool) bool {
	for _, dep := range g.Dependencies(id) {
		if inSelection[dep] && !deployed[dep] {
			return false
		}
	}
	return true
}

// =============================================================================
// Wave Verification
// =============================================================================

// VerifyWaves checks that no service appears twice, that no wave member
// depends on another member of its own wave, and that every in-plan
// dependency lies in a strictly earlier wave. It returns the first violation
// found.
func VerifyWaves(g *domain.DependencyGraph, waves []domain.DeploymentWave) error {
	placed := make(map[string]int)
	for i, w := range waves {
		for _, id := range w.Services {
			if prev, dup := placed[id]; dup {
				return domain.NewPlanError("VerifyWaves", id,
					fmt.Sprintf("appears in waves %d and %d", prev, i+1), domain.ErrDuplicateService)
			}
			placed[id] = i + 1
		}
	}

	for i, w := range waves {
		if !validation.CanDeployParallel(g, w.Services) {
			return domain.NewPlanError("VerifyWaves", "",
				fmt.Sprintf("wave %d members [%s] depend on each other", i+1, strings.Join(w.Services, ", ")),
				domain.ErrUnresolvableDependency)
		}
	}

	for i, w := range waves {
		for _, id := range w.Services {
			for _, dep := range g.Dependencies(id) {
				at, planned := placed[dep]
				if planned && at >= i+1 {
					return domain.NewPlanError("VerifyWaves", id,
						fmt.Sprintf("dependency %s is in wave %d, not before wave %d", dep, at, i+1),
						domain.ErrUnresolvableDependency)
				}
			}
		}
	}
	return nil
}
