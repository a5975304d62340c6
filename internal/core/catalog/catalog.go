package catalog

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/waveplan/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Catalog Document
// =============================================================================

// ServiceSpec is one service entry as written in a catalog document.
// Omitted numeric fields take the declared-service defaults.
type ServiceSpec struct {
	Dependencies      []string `yaml:"dependencies" json:"dependencies"`
	Priority          *int     `yaml:"priority,omitempty" json:"priority,omitempty"`
	ParallelGroup     *int     `yaml:"parallel_group,omitempty" json:"parallel_group,omitempty"`
	EstimatedDuration *float64 `yaml:"estimated_duration,omitempty" json:"estimated_duration,omitempty"`
}

// StrategySpec is one strategy entry as written in a catalog document.
type StrategySpec struct {
	AllowParallel        *bool `yaml:"allow_parallel,omitempty" json:"allow_parallel,omitempty"`
	MaxConcurrentPerWave *int  `yaml:"max_concurrent_per_wave,omitempty" json:"max_concurrent_per_wave,omitempty"`
}

// Document is the serialized form of a catalog, shared by YAML files and
// JSON request bodies.
type Document struct {
	Services                map[string]ServiceSpec  `yaml:"services" json:"services"`
	DeploymentStrategies    map[string]StrategySpec `yaml:"deployment_strategies,omitempty" json:"deployment_strategies,omitempty"`
	RollbackOrder           []string                `yaml:"rollback_order,omitempty" json:"rollback_order,omitempty"`
	HealthCheckDependencies map[string][]string     `yaml:"health_check_dependencies,omitempty" json:"health_check_dependencies,omitempty"`
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is a parsed, validated service catalog.
type Catalog struct {
	Graph         *domain.DependencyGraph
	Strategies    domain.StrategyCatalog
	RollbackOrder []string
	healthChecks  map[string][]string
}

// HealthCheckDependencies returns the services whose health must be checked
// before id is considered up, or nil when none are configured.
func (c *Catalog) HealthCheckDependencies(id string) []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.healthChecks[id]...)
}

// Document converts the catalog back to its serialized form.
func (c *Catalog) Document() Document {
	doc := Document{
		Services:             make(map[string]ServiceSpec, c.Graph.Len()),
		DeploymentStrategies: make(map[string]StrategySpec, len(c.Strategies)),
		RollbackOrder:        append([]string(nil), c.RollbackOrder...),
	}
	for _, n := range c.Graph.Nodes() {
		priority, group, duration := n.Priority, n.ParallelGroup, n.EstimatedDuration
		doc.Services[n.ID] = ServiceSpec{
			Dependencies:      n.Dependencies,
			Priority:          &priority,
			ParallelGroup:     &group,
			EstimatedDuration: &duration,
		}
	}
	for s, cfg := range c.Strategies {
		allow, limit := cfg.AllowParallel, cfg.MaxConcurrentPerWave
		doc.DeploymentStrategies[string(s)] = StrategySpec{AllowParallel: &allow, MaxConcurrentPerWave: &limit}
	}
	if len(c.healthChecks) > 0 {
		doc.HealthCheckDependencies = make(map[string][]string, len(c.healthChecks))
		for id, deps := range c.healthChecks {
			doc.HealthCheckDependencies[id] = append([]string(nil), deps...)
		}
	}
	return doc
}

// =============================================================================
// Parser Functions
// =============================================================================

// Parse parses a YAML catalog document.
//
// Example:
//
//	services:
//	  auth-service:
//	    dependencies: []
//	    priority: 1
//	    parallel_group: 1
//	    estimated_duration: 60
//	deployment_strategies:
//	  parallel_optimized: {allow_parallel: true, max_concurrent_per_wave: 3}
//	rollback_order: [auth-service]
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewConfigError("", "catalog is empty", ErrEmptyInput)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewConfigError("", fmt.Sprintf("invalid YAML syntax: %v", err), domain.ErrConfig)
	}
	return Build(doc)
}

// Build validates a document and turns it into a Catalog.
// Strategies the document leaves out keep their default configuration.
func Build(doc Document) (*Catalog, error) {
	if len(doc.Services) == 0 {
		return nil, NewConfigError("services", "no services defined", ErrNoServices)
	}

	ids := make([]string, 0, len(doc.Services))
	for id := range doc.Services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]domain.ServiceNode, 0, len(ids))
	for _, id := range ids {
		n, err := buildNode(id, doc.Services[id])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	g, err := domain.NewDependencyGraph(nodes...)
	if err != nil {
		return nil, NewConfigError("services", err.Error(), err)
	}

	strategies, err := buildStrategies(doc.DeploymentStrategies)
	if err != nil {
		return nil, err
	}

	for i, id := range doc.RollbackOrder {
		if strings.TrimSpace(id) == "" {
			return nil, NewConfigError(fmt.Sprintf("rollback_order[%d]", i), "service id must not be empty", domain.ErrConfig)
		}
	}

	checks := make(map[string][]string, len(doc.HealthCheckDependencies))
	for id, deps := range doc.HealthCheckDependencies {
		checks[id] = append([]string(nil), deps...)
	}

	return &Catalog{
		Graph:         g,
		Strategies:    strategies,
		RollbackOrder: append([]string(nil), doc.RollbackOrder...),
		healthChecks:  checks,
	}, nil
}

func buildNode(id string, spec ServiceSpec) (domain.ServiceNode, error) {
	field := "services." + id

	if strings.TrimSpace(id) == "" {
		return domain.ServiceNode{}, NewConfigError("services", "service id must not be empty", domain.ErrInvalidService)
	}

	priority := domain.DefaultDeclaredPriority
	if spec.Priority != nil {
		priority = *spec.Priority
	}
	group := domain.DefaultDeclaredParallelGroup
	if spec.ParallelGroup != nil {
		group = *spec.ParallelGroup
	}
	duration := domain.DefaultEstimatedDuration
	if spec.EstimatedDuration != nil {
		duration = *spec.EstimatedDuration
	}

	n := domain.NewServiceNode(id, spec.Dependencies, priority, group, duration)
	if err := n.Validate(); err != nil {
		return domain.ServiceNode{}, NewConfigError(field, err.Error(), err)
	}
	return n, nil
}

func buildStrategies(specs map[string]StrategySpec) (domain.StrategyCatalog, error) {
	out := domain.DefaultStrategyCatalog()
	for name, spec := range specs {
		field := "deployment_strategies." + name

		s, err := domain.ParseStrategy(name)
		if err != nil {
			return nil, NewConfigError(field, err.Error(), err)
		}

		cfg := out[s]
		if spec.AllowParallel != nil {
			cfg.AllowParallel = *spec.AllowParallel
		}
		if spec.MaxConcurrentPerWave != nil {
			if *spec.MaxConcurrentPerWave < 1 {
				return nil, NewConfigError(field+".max_concurrent_per_wave",
					fmt.Sprintf("must be >= 1, got %d", *spec.MaxConcurrentPerWave), domain.ErrConfig)
			}
			cfg.MaxConcurrentPerWave = *spec.MaxConcurrentPerWave
		}
		out[s] = cfg
	}
	return out, nil
}

// Marshal serializes a catalog as YAML.
func Marshal(c *Catalog) ([]byte, error) {
	return yaml.Marshal(c.Document())
}
