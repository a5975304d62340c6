package deployment

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func node(id string, priority, group int, duration float64, deps ...string) domain.ServiceNode {
	return domain.NewServiceNode(id, deps, priority, group, duration)
}

func restaurantGraph(t *testing.T) *domain.DependencyGraph {
	t.Helper()
	g, err := domain.NewDependencyGraph(
		node("auth", 1, 1, 60),
		node("menu", 2, 2, 45, "auth"),
		node("payment", 2, 2, 75, "auth"),
		node("order", 3, 3, 90, "auth", "menu"),
	)
	require.NoError(t, err)
	return g
}

func waveMembers(waves []domain.DeploymentWave) [][]string {
	out := make([][]string, 0, len(waves))
	for _, w := range waves {
		out = append(out, w.Services)
	}
	return out
}

// randomDAG builds an acyclic graph where each node may only depend on nodes
// with a smaller index.
func randomDAG(t *testing.T, r *rand.Rand, n int) *domain.DependencyGraph {
	t.Helper()
	nodes := make([]domain.ServiceNode, 0, n)
	for i := 0; i < n; i++ {
		var deps []string
		for j := 0; j < i; j++ {
			if r.Intn(4) == 0 {
				deps = append(deps, fmt.Sprintf("svc-%02d", j))
			}
		}
		nodes = append(nodes, node(fmt.Sprintf("svc-%02d", i), 1+r.Intn(3), 1+r.Intn(3), float64(r.Intn(120)), deps...))
	}
	g, err := domain.NewDependencyGraph(nodes...)
	require.NoError(t, err)
	return g
}

// =============================================================================
// PlanWaves Tests
// =============================================================================

func TestPlanWaves_ParallelOptimized(t *testing.T) {
	waves, err := PlanWaves(restaurantGraph(t), nil, domain.StrategyParallelOptimized)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"auth"}, {"menu", "payment"}, {"order"}}, waveMembers(waves))
	for i, w := range waves {
		assert.Equal(t, i+1, w.WaveNumber)
		assert.Equal(t, len(w.Services) > 1, w.AllowParallel)
	}
}

func TestPlanWaves_PriorityBased(t *testing.T) {
	waves, err := PlanWaves(restaurantGraph(t), nil, domain.StrategyPriorityBased)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"auth"}, {"menu", "payment"}, {"order"}}, waveMembers(waves))
}

func TestPlanWaves_Sequential(t *testing.T) {
	waves, err := PlanWaves(restaurantGraph(t), nil, domain.StrategySequential)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"auth"}, {"menu"}, {"order"}, {"payment"}}, waveMembers(waves))
}

func TestPlanWaves_GroupWaitsForSmallerGroup(t *testing.T) {
	// cache is deployable immediately but sits in a later group than db.
	g, err := domain.NewDependencyGraph(
		node("db", 1, 1, 10),
		node("cache", 1, 2, 10),
		node("api", 1, 2, 10, "db"),
	)
	require.NoError(t, err)

	waves, err := PlanWaves(g, nil, domain.StrategyParallelOptimized)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"db"}, {"api", "cache"}}, waveMembers(waves))
}

func TestPlanWaves_PriorityIgnoresGroups(t *testing.T) {
	g, err := domain.NewDependencyGraph(
		node("a", 2, 1, 10),
		node("b", 1, 5, 10),
		node("c", 1, 9, 10),
	)
	require.NoError(t, err)

	waves, err := PlanWaves(g, nil, domain.StrategyPriorityBased)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b", "c"}, {"a"}}, waveMembers(waves))
}

func TestPlanWaves_EmptyGraph(t *testing.T) {
	waves, err := PlanWaves(domain.MustDependencyGraph(), nil, domain.StrategySequential)
	require.NoError(t, err)
	assert.Empty(t, waves)
}

func TestPlanWaves_UnknownStrategy(t *testing.T) {
	_, err := PlanWaves(restaurantGraph(t), nil, domain.Strategy("canary"))
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestPlanWaves_Subset(t *testing.T) {
	waves, err := PlanWaves(restaurantGraph(t), []string{"order", "payment"}, domain.StrategyParallelOptimized)
	require.NoError(t, err)
	// auth and menu are declared but not selected, so they count as deployed.
	assert.Equal(t, [][]string{{"payment"}, {"order"}}, waveMembers(waves))
}

func TestPlanWaves_DuplicateSelectionCollapsed(t *testing.T) {
	waves, err := PlanWaves(restaurantGraph(t), []string{"menu", "auth", "menu"}, domain.StrategyParallelOptimized)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"auth"}, {"menu"}}, waveMembers(waves))
}

func TestPlanWaves_UnknownSelectedServiceUsesDefaults(t *testing.T) {
	waves, err := PlanWaves(restaurantGraph(t), []string{"auth", "metrics"}, domain.StrategyParallelOptimized)
	require.NoError(t, err)
	// metrics defaults to group 999.
	assert.Equal(t, [][]string{{"auth"}, {"metrics"}}, waveMembers(waves))
}

func TestPlanWaves_UndeclaredDependencyFails(t *testing.T) {
	g, err := domain.NewDependencyGraph(node("a", 1, 1, 10, "z"))
	require.NoError(t, err)

	waves, err := PlanWaves(g, nil, domain.StrategyParallelOptimized)
	assert.Nil(t, waves)
	assert.ErrorIs(t, err, domain.ErrMissingDependency)

	var pe *domain.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "a", pe.Service)
}

func TestPlanWaves_CycleIsUnresolvable(t *testing.T) {
	g, err := domain.NewDependencyGraph(
		node("root", 1, 1, 10),
		node("a", 1, 1, 10, "b"),
		node("b", 1, 1, 10, "a"),
	)
	require.NoError(t, err)

	waves, err := PlanWaves(g, nil, domain.StrategySequential)
	assert.Nil(t, waves)
	assert.ErrorIs(t, err, domain.ErrUnresolvableDependency)
	assert.Contains(t, err.Error(), "[a, b]")
}

func TestPlanWaves_Idempotent(t *testing.T) {
	g := restaurantGraph(t)
	for _, s := range domain.Strategies() {
		first, err := PlanWaves(g, nil, s)
		require.NoError(t, err)
		second, err := PlanWaves(g, nil, s)
		require.NoError(t, err)
		assert.Equal(t, first, second, s)
	}
}

// =============================================================================
// Planning Properties
// =============================================================================

func TestPlanWaves_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		g := randomDAG(t, r, 2+r.Intn(20))

		for _, s := range domain.Strategies() {
			waves, err := PlanWaves(g, nil, s)
			require.NoError(t, err)

			// Every dependency lies in an earlier wave and nothing repeats.
			require.NoError(t, VerifyWaves(g, waves), "round %d strategy %s", round, s)

			// The waves cover exactly the selection.
			var all []string
			for _, w := range waves {
				all = append(all, w.Services...)
				if s == domain.StrategySequential {
					assert.Len(t, w.Services, 1)
				}
				for _, a := range w.Services {
					for _, b := range w.Services {
						n, _ := g.Node(a)
						assert.False(t, n.DependsOn(b), "%s and %s share a wave", a, b)
					}
				}
			}
			assert.ElementsMatch(t, g.IDs(), all)
		}
	}
}

// =============================================================================
// VerifyWaves Tests
// =============================================================================

func TestVerifyWaves(t *testing.T) {
	g := restaurantGraph(t)

	good := []domain.DeploymentWave{
		{WaveNumber: 1, Services: []string{"auth"}},
		{WaveNumber: 2, Services: []string{"menu", "payment"}},
		{WaveNumber: 3, Services: []string{"order"}},
	}
	assert.NoError(t, VerifyWaves(g, good))

	sameWave := []domain.DeploymentWave{
		{WaveNumber: 1, Services: []string{"auth", "menu"}},
	}
	err := VerifyWaves(g, sameWave)
	assert.ErrorIs(t, err, domain.ErrUnresolvableDependency)
	assert.Contains(t, err.Error(), "wave 1 members [auth, menu] depend on each other")

	inverted := []domain.DeploymentWave{
		{WaveNumber: 1, Services: []string{"menu"}},
		{WaveNumber: 2, Services: []string{"auth"}},
	}
	err = VerifyWaves(g, inverted)
	assert.ErrorIs(t, err, domain.ErrUnresolvableDependency)
	assert.Contains(t, err.Error(), "dependency auth is in wave 2")

	repeated := []domain.DeploymentWave{
		{WaveNumber: 1, Services: []string{"auth"}},
		{WaveNumber: 2, Services: []string{"auth"}},
	}
	assert.ErrorIs(t, VerifyWaves(g, repeated), domain.ErrDuplicateService)
}
