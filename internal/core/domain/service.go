package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Service Defaults
// =============================================================================

const (
	// DefaultUnknownPriority is assigned to services referenced for planning
	// that the graph does not declare.
	DefaultUnknownPriority = 999
	// DefaultUnknownParallelGroup is the parallel group for undeclared services.
	DefaultUnknownParallelGroup = 999
	// DefaultEstimatedDuration is the deploy time in seconds when none is given.
	DefaultEstimatedDuration = 60.0

	// DefaultDeclaredPriority is used when a declared service omits its priority.
	DefaultDeclaredPriority = 1
	// DefaultDeclaredParallelGroup is used when a declared service omits its group.
	DefaultDeclaredParallelGroup = 1
)

// =============================================================================
// ServiceNode
// =============================================================================

// ServiceNode is a deployable unit in the dependency graph.
// Lower Priority and ParallelGroup values deploy earlier.
type ServiceNode struct {
	ID                string   `json:"id"`
	Dependencies      []string `json:"dependencies"`
	Priority          int      `json:"priority"`
	ParallelGroup     int      `json:"parallel_group"`
	EstimatedDuration float64  `json:"estimated_duration"`
}

// NewServiceNode creates a node, collapsing duplicate dependency IDs while
// keeping their declared order.
func NewServiceNode(id string, deps []string, priority, group int, duration float64) ServiceNode {
	return ServiceNode{
		ID:                id,
		Dependencies:      uniqueIDs(deps),
		Priority:          priority,
		ParallelGroup:     group,
		EstimatedDuration: duration,
	}
}

// DefaultServiceNode returns the node used for a service that is requested
// for planning but absent from the graph.
func DefaultServiceNode(id string) ServiceNode {
	return ServiceNode{
		ID:                id,
		Dependencies:      []string{},
		Priority:          DefaultUnknownPriority,
		ParallelGroup:     DefaultUnknownParallelGroup,
		EstimatedDuration: DefaultEstimatedDuration,
	}
}

// Validate checks the node's fields.
func (n ServiceNode) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return NewPlanError("Validate", "", "service id is required", ErrInvalidService)
	}
	if n.Priority < 1 {
		return NewPlanError("Validate", n.ID, fmt.Sprintf("priority must be >= 1, got %d", n.Priority), ErrInvalidService)
	}
	if n.ParallelGroup < 1 {
		return NewPlanError("Validate", n.ID, fmt.Sprintf("parallel_group must be >= 1, got %d", n.ParallelGroup), ErrInvalidService)
	}
	if n.EstimatedDuration < 0 {
		return NewPlanError("Validate", n.ID, fmt.Sprintf("estimated_duration must be >= 0, got %g", n.EstimatedDuration), ErrInvalidService)
	}
	for _, dep := range n.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return NewPlanError("Validate", n.ID, "dependency id must not be empty", ErrInvalidService)
		}
	}
	return nil
}

// DependsOn reports whether the node declares a direct dependency on id.
func (n ServiceNode) DependsOn(id string) bool {
	for _, dep := range n.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// clone returns a copy that shares no slices with n.
func (n ServiceNode) clone() ServiceNode {
	c := n
	c.Dependencies = make([]string, len(n.Dependencies))
	copy(c.Dependencies, n.Dependencies)
	return c
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
