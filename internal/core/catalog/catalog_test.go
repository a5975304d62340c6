package catalog

import (
	"errors"
	"testing"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restaurantYAML = `
services:
  auth-service:
    dependencies: []
    priority: 1
    parallel_group: 1
    estimated_duration: 60
  menu-service:
    dependencies: [auth-service]
    priority: 2
    parallel_group: 2
    estimated_duration: 45
  payment-service:
    dependencies: [auth-service]
    priority: 2
    parallel_group: 2
    estimated_duration: 75
  order-service:
    dependencies: [auth-service, menu-service]
    priority: 3
    parallel_group: 3
    estimated_duration: 90
deployment_strategies:
  parallel_optimized:
    allow_parallel: true
    max_concurrent_per_wave: 4
rollback_order: [order-service, payment-service, menu-service, auth-service]
health_check_dependencies:
  order-service: [auth-service, menu-service]
`

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_Restaurant(t *testing.T) {
	c, err := Parse([]byte(restaurantYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"auth-service", "menu-service", "order-service", "payment-service"}, c.Graph.IDs())

	order, ok := c.Graph.Node("order-service")
	require.True(t, ok)
	assert.Equal(t, []string{"auth-service", "menu-service"}, order.Dependencies)
	assert.Equal(t, 3, order.Priority)
	assert.Equal(t, 3, order.ParallelGroup)
	assert.Equal(t, 90.0, order.EstimatedDuration)

	assert.Equal(t, domain.StrategyConfig{AllowParallel: true, MaxConcurrentPerWave: 4}, c.Strategies[domain.StrategyParallelOptimized])
	assert.Equal(t, domain.DefaultStrategyCatalog()[domain.StrategyPriorityBased], c.Strategies[domain.StrategyPriorityBased])

	assert.Equal(t, []string{"order-service", "payment-service", "menu-service", "auth-service"}, c.RollbackOrder)
	assert.Equal(t, []string{"auth-service", "menu-service"}, c.HealthCheckDependencies("order-service"))
	assert.Nil(t, c.HealthCheckDependencies("auth-service"))
}

func TestParse_DeclaredDefaults(t *testing.T) {
	c, err := Parse([]byte("services:\n  worker: {}\n"))
	require.NoError(t, err)

	n, ok := c.Graph.Node("worker")
	require.True(t, ok)
	assert.Equal(t, domain.DefaultDeclaredPriority, n.Priority)
	assert.Equal(t, domain.DefaultDeclaredParallelGroup, n.ParallelGroup)
	assert.Equal(t, domain.DefaultEstimatedDuration, n.EstimatedDuration)
	assert.Empty(t, n.Dependencies)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		field   string
		wantErr error
	}{
		{"empty", "   \n", "", ErrEmptyInput},
		{"bad yaml", "services: [", "", domain.ErrConfig},
		{"no services", "rollback_order: [a]\n", "services", ErrNoServices},
		{"bad priority", "services:\n  a: {priority: 0}\n", "services.a", domain.ErrInvalidService},
		{"negative duration", "services:\n  a: {estimated_duration: -1}\n", "services.a", domain.ErrInvalidService},
		{"unknown strategy", "services:\n  a: {}\ndeployment_strategies:\n  canary: {allow_parallel: true}\n", "deployment_strategies.canary", domain.ErrUnknownStrategy},
		{"bad concurrency", "services:\n  a: {}\ndeployment_strategies:\n  sequential: {max_concurrent_per_wave: 0}\n", "deployment_strategies.sequential.max_concurrent_per_wave", domain.ErrConfig},
		{"blank rollback id", "services:\n  a: {}\nrollback_order: ['']\n", "rollback_order[0]", domain.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.input))
			assert.Nil(t, c)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrConfig)

			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParse_MissingDependencyIsNotAParseError(t *testing.T) {
	// Graph problems are reported by validation, not by the parser.
	c, err := Parse([]byte("services:\n  a: {dependencies: [ghost]}\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, c.Graph.Dependencies("a"))
}

// =============================================================================
// Round-trip Tests
// =============================================================================

func TestMarshal_ParsesBackToSameGraph(t *testing.T) {
	c, err := Parse([]byte(restaurantYAML))
	require.NoError(t, err)

	out, err := Marshal(c)
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, c.Graph.Nodes(), again.Graph.Nodes())
	assert.Equal(t, c.Strategies, again.Strategies)
	assert.Equal(t, c.RollbackOrder, again.RollbackOrder)
	assert.Equal(t, c.HealthCheckDependencies("order-service"), again.HealthCheckDependencies("order-service"))
}
