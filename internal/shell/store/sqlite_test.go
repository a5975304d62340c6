package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/waveplan/internal/core/deployment"
	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func restaurantPlan(t *testing.T) domain.DeploymentPlan {
	t.Helper()
	g, err := domain.NewDependencyGraph(
		domain.NewServiceNode("auth", nil, 1, 1, 60),
		domain.NewServiceNode("menu", []string{"auth"}, 2, 2, 45),
		domain.NewServiceNode("payment", []string{"auth"}, 2, 2, 75),
		domain.NewServiceNode("order", []string{"auth", "menu"}, 3, 3, 90),
	)
	require.NoError(t, err)

	plan, err := deployment.BuildPlan(deployment.PlanRequest{Graph: g, Strategy: "parallel_optimized"})
	require.NoError(t, err)
	return *plan
}

func createTestPlan(t *testing.T, store Store, id string) *domain.PlanRecord {
	t.Helper()
	rec := domain.NewPlanRecord(id, nil, []string{"order", "payment", "menu", "auth"}, restaurantPlan(t))
	require.NoError(t, store.CreatePlan(context.Background(), rec))
	return rec
}

// =============================================================================
// Plan Tests
// =============================================================================

func TestCreatePlan_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := createTestPlan(t, store, "plan-1")

	got, err := store.GetPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Plan, got.Plan)
	assert.Equal(t, rec.RollbackOrder, got.RollbackOrder)
	assert.Equal(t, []string{}, got.Services)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestCreatePlan_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	rec := createTestPlan(t, store, "plan-1")

	err := store.CreatePlan(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetPlan_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetPlan(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "GetPlan", storeErr.Op)
	assert.Equal(t, "missing", storeErr.ID)
}

func TestListPlans_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := domain.NewPlanRecord(id, []string{"auth"}, nil, restaurantPlan(t))
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreatePlan(ctx, rec))
	}

	plans, err := store.ListPlans(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "c", plans[0].ID)
	assert.Equal(t, "a", plans[2].ID)
	assert.Equal(t, []string{"auth"}, plans[0].Services)

	page, err := store.ListPlans(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestDeletePlan(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestPlan(t, store, "plan-1")

	require.NoError(t, store.DeletePlan(ctx, "plan-1"))
	assert.ErrorIs(t, store.DeletePlan(ctx, "plan-1"), ErrNotFound)
}

// =============================================================================
// Rollout Tests
// =============================================================================

func TestRollout_CreateAndUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestPlan(t, store, "plan-1")

	r := domain.NewRollout("run-1", "plan-1")
	require.NoError(t, store.CreateRollout(ctx, r))

	got, err := store.GetRollout(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RolloutInitialized, got.Status)
	assert.Equal(t, []string{}, got.Deployed)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, r.Transition(domain.RolloutPlanning))
	require.NoError(t, r.Transition(domain.RolloutWaveInProgress))
	r.CurrentWave = 1
	r.Deployed = []string{"auth"}
	require.NoError(t, r.Transition(domain.RolloutWaveFailed))
	r.Failed = []string{"menu"}
	r.RollbackOrder = []string{"auth"}
	r.ErrorMessage = "menu: boom"
	require.NoError(t, r.Transition(domain.RolloutRolledBack))
	require.NoError(t, store.UpdateRollout(ctx, r))

	got, err = store.GetRollout(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RolloutRolledBack, got.Status)
	assert.Equal(t, 1, got.CurrentWave)
	assert.Equal(t, []string{"auth"}, got.Deployed)
	assert.Equal(t, []string{"menu"}, got.Failed)
	assert.Equal(t, []string{"auth"}, got.RollbackOrder)
	assert.Equal(t, "menu: boom", got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, r.FinishedAt.Equal(*got.FinishedAt))
}

func TestCreateRollout_UnknownPlan(t *testing.T) {
	store := setupTestStore(t)

	err := store.CreateRollout(context.Background(), domain.NewRollout("run-1", "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestUpdateRollout_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateRollout(context.Background(), domain.NewRollout("ghost", "plan-1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRollouts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestPlan(t, store, "plan-1")

	active := domain.NewRollout("run-active", "plan-1")
	require.NoError(t, store.CreateRollout(ctx, active))

	done := domain.NewRollout("run-done", "plan-1")
	done.StartedAt = active.StartedAt.Add(time.Second)
	require.NoError(t, done.Transition(domain.RolloutPlanning))
	require.NoError(t, done.Transition(domain.RolloutCompleted))
	require.NoError(t, store.CreateRollout(ctx, done))

	byPlan, err := store.ListRolloutsByPlan(ctx, "plan-1", DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, byPlan, 2)
	assert.Equal(t, "run-done", byPlan[0].ID)

	running, err := store.ListActiveRollouts(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "run-active", running[0].ID)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Store) error {
		createTestPlan(t, tx, "plan-tx")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetPlan(ctx, "plan-tx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_Commits(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		createTestPlan(t, tx, "plan-tx")
		return tx.CreateRollout(ctx, domain.NewRollout("run-tx", "plan-tx"))
	})
	require.NoError(t, err)

	_, err = store.GetRollout(ctx, "run-tx")
	assert.NoError(t, err)
}

// =============================================================================
// File-backed Tests
// =============================================================================

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waveplan.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	createTestPlan(t, first, "plan-1")
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	_, err = second.GetPlan(context.Background(), "plan-1")
	assert.NoError(t, err)
	assert.NoError(t, second.Ping(context.Background()))
}

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 100}, ListOptions{}.Normalize())
	assert.Equal(t, ListOptions{Limit: 1000}, ListOptions{Limit: 5000, Offset: -3}.Normalize())
}
