package compose

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/waveplan/internal/core/catalog"
	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/validation"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Planning Labels
// =============================================================================

// Service labels that carry planning settings. Services without them get
// the declared-service defaults.
const (
	LabelPriority          = "waveplan.priority"
	LabelParallelGroup     = "waveplan.parallel_group"
	LabelEstimatedDuration = "waveplan.estimated_duration"
)

// projectName is used when loading; compose-go requires one.
const projectName = "waveplan-import"

// =============================================================================
// Parser Functions
// =============================================================================

// ParseGraph parses Docker Compose YAML into a catalog.
// depends_on entries become dependencies, and the waveplan.* labels set
// priority, parallel group and estimated duration.
//
// Example:
//
//	services:
//	  api:
//	    image: myapp:1.0
//	    depends_on: [db]
//	    labels:
//	      waveplan.priority: "2"
//	      waveplan.estimated_duration: "45"
//	  db:
//	    image: postgres:15
func ParseGraph(yamlContent string) (*catalog.Catalog, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, catalog.NewConfigError("", "compose spec is empty", ErrEmptyInput)
	}

	project, err := loadComposeSpec(yamlContent)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, catalog.NewConfigError("services", "no services defined", ErrNoServices)
	}

	doc := catalog.Document{Services: make(map[string]catalog.ServiceSpec, len(project.Services))}
	for name, svc := range project.Services {
		spec, err := convertService(name, svc)
		if err != nil {
			return nil, err
		}
		doc.Services[name] = spec
	}

	c, err := catalog.Build(doc)
	if err != nil {
		return nil, err
	}

	if cycles := validation.FindCycles(c.Graph); len(cycles) > 0 {
		cycle := cycles[0]
		return nil, catalog.NewConfigError("services",
			fmt.Sprintf("circular dependency detected: %s -> %s", strings.Join(cycle, " -> "), cycle[0]),
			domain.ErrCircularDependency)
	}

	return c, nil
}

// loadComposeSpec loads a compose spec using compose-go
func loadComposeSpec(yamlContent string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, catalog.NewConfigError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, catalog.NewConfigError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content: no paths to resolve, no files to extend from.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, catalog.NewConfigError("services", "circular dependency detected", domain.ErrCircularDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, catalog.NewConfigError("services", "service must have image or build", ErrServiceNoImage)
		}
		return nil, catalog.NewConfigError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// checkUnsupportedFeatures rejects compose features that cannot be imported.
func checkUnsupportedFeatures(project *types.Project) error {
	for _, svc := range project.Services {
		if svc.Extends != nil && svc.Extends.File != "" {
			return catalog.NewConfigError("services."+svc.Name+".extends", "extends is not supported", ErrUnsupportedFeature)
		}
	}
	return nil
}

// convertService converts a compose-go service into a catalog entry.
func convertService(name string, svc types.ServiceConfig) (catalog.ServiceSpec, error) {
	field := "services." + name

	if svc.Image == "" && svc.Build == nil {
		return catalog.ServiceSpec{}, catalog.NewConfigError(field, "service must have image or build", ErrServiceNoImage)
	}

	deps := make([]string, 0, len(svc.DependsOn))
	for dep := range svc.DependsOn {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	spec := catalog.ServiceSpec{Dependencies: deps}

	var err error
	if spec.Priority, err = intLabel(field, svc.Labels, LabelPriority); err != nil {
		return catalog.ServiceSpec{}, err
	}
	if spec.ParallelGroup, err = intLabel(field, svc.Labels, LabelParallelGroup); err != nil {
		return catalog.ServiceSpec{}, err
	}
	if spec.EstimatedDuration, err = durationLabel(field, svc.Labels, LabelEstimatedDuration); err != nil {
		return catalog.ServiceSpec{}, err
	}

	return spec, nil
}

func intLabel(field string, labels types.Labels, key string) (*int, error) {
	raw, ok := labels[key]
	if !ok {
		return nil, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, catalog.NewConfigError(field+".labels."+key, fmt.Sprintf("must be an integer, got %q", raw), ErrInvalidLabel)
	}
	return &v, nil
}

func durationLabel(field string, labels types.Labels, key string) (*float64, error) {
	raw, ok := labels[key]
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "s")), 64)
	if err != nil {
		return nil, catalog.NewConfigError(field+".labels."+key, fmt.Sprintf("must be a number of seconds, got %q", raw), ErrInvalidLabel)
	}
	return &v, nil
}
