package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/waveplan/internal/core/domain"
)

// =============================================================================
// Validation Result
// =============================================================================

// ErrorKind classifies a graph validation error.
type ErrorKind string

const (
	KindCircularDependency ErrorKind = "circular_dependency"
	KindMissingDependency  ErrorKind = "missing_dependency"
)

// GraphError describes one problem found in a dependency graph.
type GraphError struct {
	Kind       ErrorKind `json:"kind"`
	Service    string    `json:"service,omitempty"`
	Dependency string    `json:"dependency,omitempty"`
	Cycle      []string  `json:"cycle,omitempty"`
}

func (e GraphError) Error() string {
	switch e.Kind {
	case KindCircularDependency:
		if len(e.Cycle) == 0 {
			return "circular dependency detected"
		}
		return fmt.Sprintf("circular dependency detected: %s -> %s", strings.Join(e.Cycle, " -> "), e.Cycle[0])
	case KindMissingDependency:
		return fmt.Sprintf("service %s depends on undeclared service %s", e.Service, e.Dependency)
	default:
		return string(e.Kind)
	}
}

func (e GraphError) Unwrap() error {
	switch e.Kind {
	case KindCircularDependency:
		return domain.ErrCircularDependency
	case KindMissingDependency:
		return domain.ErrMissingDependency
	default:
		return nil
	}
}

// Result is the outcome of validating a graph. Errors are aggregated so all
// problems surface in one pass.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []GraphError `json:"errors"`
}

// Err returns nil for a valid result, or all errors joined together.
// The joined error matches the domain sentinels with errors.Is.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Messages returns the error strings in report order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

func newResult(errs []GraphError) Result {
	if errs == nil {
		errs = []GraphError{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// =============================================================================
// Graph Validation Functions
// =============================================================================

// ValidateGraph checks g for circular dependencies and for dependencies on
// services the graph does not declare. Cycles are reported first, then
// missing dependencies, each in a deterministic order.
//
// Example:
//
//	res := ValidateGraph(g)
//	if !res.Valid {
//	    return res.Err()
//	}
func ValidateGraph(g *domain.DependencyGraph) Result {
	var errs []GraphError
	for _, cycle := range FindCycles(g) {
		errs = append(errs, GraphError{Kind: KindCircularDependency, Cycle: cycle})
	}
	errs = append(errs, missingDependencies(g.Nodes(), g)...)
	return newResult(errs)
}

// ValidateSelection validates only the part of g that a planning request
// touches. Cycles are searched in the subgraph induced by ids; every selected
// node's dependencies must still be declared somewhere in g.
func ValidateSelection(g *domain.DependencyGraph, ids []string) Result {
	sub := g.Subgraph(ids)

	var errs []GraphError
	for _, cycle := range FindCycles(sub) {
		errs = append(errs, GraphError{Kind: KindCircularDependency, Cycle: cycle})
	}
	errs = append(errs, missingDependencies(sub.Nodes(), g)...)
	return newResult(errs)
}

// MissingDependencies returns one error per (service, dependency) pair where
// the dependency is not declared in g.
func MissingDependencies(g *domain.DependencyGraph) []GraphError {
	return missingDependencies(g.Nodes(), g)
}

func missingDependencies(nodes []domain.ServiceNode, g *domain.DependencyGraph) []GraphError {
	var errs []GraphError
	for _, n := range nodes {
		deps := append([]string(nil), n.Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if !g.Has(dep) {
				errs = append(errs, GraphError{
					Kind:       KindMissingDependency,
					Service:    n.ID,
					Dependency: dep,
				})
			}
		}
	}
	return errs
}

// =============================================================================
// Cycle Detection
// =============================================================================

const (
	unvisited = iota
	onStack
	done
)

// frame is one level of the explicit DFS stack.
type frame struct {
	id   string
	deps []string
	next int
}

// FindCycles returns every cycle reachable through declared dependency edges.
// It runs an iterative depth-first search from each unvisited node in sorted
// order, so the result is deterministic. Each cycle lists its members in
// traversal order starting from the node where it was entered.
// Edges to undeclared services are ignored here; see MissingDependencies.
func FindCycles(g *domain.DependencyGraph) [][]string {
	state := make(map[string]int, g.Len())
	var cycles [][]string
	seen := make(map[string]bool)

	for _, root := range g.IDs() {
		if state[root] != unvisited {
			continue
		}

		stack := []frame{{id: root, deps: g.Dependencies(root)}}
		pathIndex := map[string]int{root: 0}
		path := []string{root}
		state[root] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]

			if top.next < len(top.deps) {
				dep := top.deps[top.next]
				top.next++

				if !g.Has(dep) {
					continue
				}

				switch state[dep] {
				case unvisited:
					state[dep] = onStack
					pathIndex[dep] = len(path)
					path = append(path, dep)
					stack = append(stack, frame{id: dep, deps: g.Dependencies(dep)})
				case onStack:
					cycle := append([]string(nil), path[pathIndex[dep]:]...)
					if key := cycleKey(cycle); !seen[key] {
						seen[key] = true
						cycles = append(cycles, cycle)
					}
				}
				continue
			}

			state[top.id] = done
			delete(pathIndex, top.id)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return cycles
}

// HasCycle reports whether g contains at least one cycle.
func HasCycle(g *domain.DependencyGraph) bool {
	return len(FindCycles(g)) > 0
}

// cycleKey identifies a cycle independent of its starting member.
func cycleKey(cycle []string) string {
	start := 0
	for i, id := range cycle {
		if id < cycle[start] {
			start = i
		}
	}
	rotated := append(append([]string(nil), cycle[start:]...), cycle[:start]...)
	return strings.Join(rotated, "\x00")
}

// =============================================================================
// Parallel Safety
// =============================================================================

// CanDeployParallel reports whether the given services may deploy at the same
// time, i.e. none of them directly depends on another member of the set.
// Services the graph does not declare have no dependencies.
func CanDeployParallel(g *domain.DependencyGraph, ids []string) bool {
	members := make(map[string]bool, len(ids))
	for _, id := range ids {
		members[id] = true
	}
	for _, id := range ids {
		for _, dep := range g.Dependencies(id) {
			if members[dep] && dep != id {
				return false
			}
		}
	}
	return true
}
