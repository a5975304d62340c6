package timing

import (
	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/validation"
)

// =============================================================================
// Dependency Depth
// =============================================================================

type depthFrame struct {
	id   string
	deps []string
	next int
	best int
}

// MaxDependencyDepth returns the length of the longest dependency chain in g.
// A service with no declared dependencies (or none the graph declares) has
// depth 1. A node already on the current path contributes 0, so a corrupt
// graph with cycles still terminates. An empty graph has depth 0.
func MaxDependencyDepth(g *domain.DependencyGraph) int {
	// Without cycles no path can revisit a node, so depths can be shared.
	var memo map[string]int
	if !validation.HasCycle(g) {
		memo = make(map[string]int, g.Len())
	}

	maxDepth := 0
	for _, id := range g.IDs() {
		if d := depthFrom(g, id, memo); d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

// depthFrom walks from root with an explicit stack and a per-path visited set.
// memo may be nil.
func depthFrom(g *domain.DependencyGraph, root string, memo map[string]int) int {
	if d, ok := memo[root]; ok {
		return d
	}

	onPath := map[string]bool{root: true}
	stack := []depthFrame{{id: root, deps: declaredDeps(g, root)}}
	result := 0

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.next < len(top.deps) {
			dep := top.deps[top.next]
			top.next++

			if onPath[dep] {
				continue
			}
			if d, ok := memo[dep]; ok {
				if d > top.best {
					top.best = d
				}
				continue
			}
			onPath[dep] = true
			stack = append(stack, depthFrame{id: dep, deps: declaredDeps(g, dep)})
			continue
		}

		depth := top.best + 1
		if memo != nil {
			memo[top.id] = depth
		}
		delete(onPath, top.id)
		stack = stack[:len(stack)-1]

		if len(stack) == 0 {
			result = depth
		} else if parent := &stack[len(stack)-1]; depth > parent.best {
			parent.best = depth
		}
	}

	return result
}

func declaredDeps(g *domain.DependencyGraph, id string) []string {
	var deps []string
	for _, dep := range g.Dependencies(id) {
		if g.Has(dep) {
			deps = append(deps, dep)
		}
	}
	return deps
}

// =============================================================================
// Dependency Analysis
// =============================================================================

// Analyze summarises the dependency structure of the given services.
// Depth is measured over the subgraph the services induce.
func Analyze(g *domain.DependencyGraph, ids []string) domain.DependencyAnalysis {
	sub := g.Subgraph(ids)

	var a domain.DependencyAnalysis
	for _, n := range sub.Nodes() {
		a.TotalDependencies += len(n.Dependencies)
		if len(n.Dependencies) == 0 {
			a.IndependentServices++
		}
	}
	a.MaxDependencyDepth = MaxDependencyDepth(sub)
	return a
}
