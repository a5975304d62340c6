package compose

import (
	"testing"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const restaurantSpec = `
services:
  auth:
    image: restaurant/auth:1.0
    labels:
      waveplan.priority: "1"
      waveplan.parallel_group: "1"
      waveplan.estimated_duration: "60"

  menu:
    image: restaurant/menu:1.0
    depends_on:
      - auth
    labels:
      waveplan.priority: "2"
      waveplan.parallel_group: "2"
      waveplan.estimated_duration: "45s"

  payment:
    image: restaurant/payment:1.0
    depends_on:
      auth:
        condition: service_healthy
    labels:
      waveplan.priority: "2"
      waveplan.parallel_group: "2"
      waveplan.estimated_duration: "75"

  order:
    image: restaurant/order:1.0
    depends_on:
      - menu
      - auth
    labels:
      waveplan.priority: "3"
      waveplan.parallel_group: "3"
      waveplan.estimated_duration: "90"
`

const unlabeledSpec = `
services:
  web:
    image: nginx:latest
    depends_on:
      - db
  db:
    image: postgres:15
`

const circularDepSpec = `
services:
  a:
    image: nginx:latest
    depends_on:
      - b

  b:
    image: nginx:latest
    depends_on:
      - a
`

const badLabelSpec = `
services:
  web:
    image: nginx:latest
    labels:
      waveplan.priority: high
`

// =============================================================================
// ParseGraph Tests
// =============================================================================

func TestParseGraph_Restaurant(t *testing.T) {
	c, err := ParseGraph(restaurantSpec)
	require.NoError(t, err)

	assert.Equal(t, []string{"auth", "menu", "order", "payment"}, c.Graph.IDs())

	order, ok := c.Graph.Node("order")
	require.True(t, ok)
	assert.Equal(t, []string{"auth", "menu"}, order.Dependencies)
	assert.Equal(t, 3, order.Priority)
	assert.Equal(t, 3, order.ParallelGroup)
	assert.Equal(t, 90.0, order.EstimatedDuration)

	menu, ok := c.Graph.Node("menu")
	require.True(t, ok)
	assert.Equal(t, 45.0, menu.EstimatedDuration)

	payment, ok := c.Graph.Node("payment")
	require.True(t, ok)
	assert.Equal(t, []string{"auth"}, payment.Dependencies)
}

func TestParseGraph_DefaultsWithoutLabels(t *testing.T) {
	c, err := ParseGraph(unlabeledSpec)
	require.NoError(t, err)

	web, ok := c.Graph.Node("web")
	require.True(t, ok)
	assert.Equal(t, []string{"db"}, web.Dependencies)
	assert.Equal(t, domain.DefaultDeclaredPriority, web.Priority)
	assert.Equal(t, domain.DefaultDeclaredParallelGroup, web.ParallelGroup)
	assert.Equal(t, domain.DefaultEstimatedDuration, web.EstimatedDuration)
	assert.Equal(t, domain.DefaultStrategyCatalog(), c.Strategies)
}

func TestParseGraph_EmptyInput(t *testing.T) {
	_, err := ParseGraph("  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestParseGraph_InvalidYAML(t *testing.T) {
	_, err := ParseGraph("services: [")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseGraph_CircularDependency(t *testing.T) {
	_, err := ParseGraph(circularDepSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircularDependency)
}

func TestParseGraph_InvalidLabel(t *testing.T) {
	_, err := ParseGraph(badLabelSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidLabel)
	assert.Contains(t, err.Error(), "services.web.labels.waveplan.priority")
}
