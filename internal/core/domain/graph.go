package domain

import "sort"

// =============================================================================
// DependencyGraph
// =============================================================================

// DependencyGraph maps service IDs to their nodes. It is immutable once built;
// every accessor hands out copies.
type DependencyGraph struct {
	nodes map[string]ServiceNode
}

// NewDependencyGraph builds a graph from the given nodes.
// Each node must be valid and IDs must be unique.
func NewDependencyGraph(nodes ...ServiceNode) (*DependencyGraph, error) {
	g := &DependencyGraph{nodes: make(map[string]ServiceNode, len(nodes))}
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, NewPlanError("NewDependencyGraph", n.ID, "duplicate service id", ErrDuplicateService)
		}
		c := n.clone()
		c.Dependencies = uniqueIDs(c.Dependencies)
		g.nodes[n.ID] = c
	}
	return g, nil
}

// MustDependencyGraph is like NewDependencyGraph but panics on error.
// Intended for tests and static fixtures.
func MustDependencyGraph(nodes ...ServiceNode) *DependencyGraph {
	g, err := NewDependencyGraph(nodes...)
	if err != nil {
		panic(err)
	}
	return g
}

// Len returns the number of declared services.
func (g *DependencyGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}

// Has reports whether id is a declared service.
func (g *DependencyGraph) Has(id string) bool {
	if g == nil {
		return false
	}
	_, ok := g.nodes[id]
	return ok
}

// IDs returns all declared service IDs in lexicographic order.
func (g *DependencyGraph) IDs() []string {
	if g == nil {
		return []string{}
	}
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Node returns a copy of the declared node for id.
func (g *DependencyGraph) Node(id string) (ServiceNode, bool) {
	if g == nil {
		return ServiceNode{}, false
	}
	n, ok := g.nodes[id]
	if !ok {
		return ServiceNode{}, false
	}
	return n.clone(), true
}

// NodeOrDefault returns the declared node for id, or DefaultServiceNode(id)
// when the graph does not declare it.
func (g *DependencyGraph) NodeOrDefault(id string) ServiceNode {
	if n, ok := g.Node(id); ok {
		return n
	}
	return DefaultServiceNode(id)
}

// Nodes returns copies of all nodes ordered by ID.
func (g *DependencyGraph) Nodes() []ServiceNode {
	ids := g.IDs()
	out := make([]ServiceNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Dependencies returns the direct dependencies declared by id.
func (g *DependencyGraph) Dependencies(id string) []string {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	return n.Dependencies
}

// Dependents returns the IDs of services that directly depend on id, sorted.
func (g *DependencyGraph) Dependents(id string) []string {
	var res []string
	for _, sid := range g.IDs() {
		if g.nodes[sid].DependsOn(id) {
			res = append(res, sid)
		}
	}
	return res
}

// Subgraph returns the graph restricted to the given IDs. IDs the graph does
// not declare are added with default settings. Dependencies are kept as
// declared, so edges may point outside the subgraph.
func (g *DependencyGraph) Subgraph(ids []string) *DependencyGraph {
	sub := &DependencyGraph{nodes: make(map[string]ServiceNode, len(ids))}
	for _, id := range ids {
		sub.nodes[id] = g.NodeOrDefault(id)
	}
	return sub
}
