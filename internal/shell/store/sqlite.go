package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is fixed-width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// SQLite allows a single writer, and an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Plan Operations
// =============================================================================

// planRow represents a plan row in the database.
type planRow struct {
	ID            string `db:"id"`
	Strategy      string `db:"strategy"`
	TimingModel   string `db:"timing_model"`
	TotalWaves    int    `db:"total_waves"`
	TotalServices int    `db:"total_services"`
	Services      string `db:"services"`
	RollbackOrder string `db:"rollback_order"`
	Plan          string `db:"plan"`
	CreatedAt     string `db:"created_at"`
}

func (s *SQLiteStore) CreatePlan(ctx context.Context, plan *domain.PlanRecord) error {
	return createPlan(ctx, s.db, plan)
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*domain.PlanRecord, error) {
	return getPlan(ctx, s.db, id)
}

func (s *SQLiteStore) ListPlans(ctx context.Context, opts ListOptions) ([]domain.PlanRecord, error) {
	return listPlans(ctx, s.db, opts)
}

func (s *SQLiteStore) DeletePlan(ctx context.Context, id string) error {
	return deletePlan(ctx, s.db, id)
}

// =============================================================================
// Rollout Operations
// =============================================================================

// rolloutRow represents a rollout row in the database.
type rolloutRow struct {
	ID            string  `db:"id"`
	PlanID        string  `db:"plan_id"`
	Status        string  `db:"status"`
	CurrentWave   int     `db:"current_wave"`
	Deployed      string  `db:"deployed"`
	Failed        string  `db:"failed"`
	RollbackOrder string  `db:"rollback_order"`
	ErrorMessage  string  `db:"error_message"`
	StartedAt     string  `db:"started_at"`
	UpdatedAt     string  `db:"updated_at"`
	FinishedAt    *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateRollout(ctx context.Context, rollout *domain.Rollout) error {
	return createRollout(ctx, s.db, rollout)
}

func (s *SQLiteStore) GetRollout(ctx context.Context, id string) (*domain.Rollout, error) {
	return getRollout(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateRollout(ctx context.Context, rollout *domain.Rollout) error {
	return updateRollout(ctx, s.db, rollout)
}

func (s *SQLiteStore) ListRolloutsByPlan(ctx context.Context, planID string, opts ListOptions) ([]domain.Rollout, error) {
	return listRolloutsByPlan(ctx, s.db, planID, opts)
}

func (s *SQLiteStore) ListActiveRollouts(ctx context.Context) ([]domain.Rollout, error) {
	return listActiveRollouts(ctx, s.db)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreatePlan(ctx context.Context, plan *domain.PlanRecord) error {
	return createPlan(ctx, s.tx, plan)
}

func (s *txSQLiteStore) GetPlan(ctx context.Context, id string) (*domain.PlanRecord, error) {
	return getPlan(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListPlans(ctx context.Context, opts ListOptions) ([]domain.PlanRecord, error) {
	return listPlans(ctx, s.tx, opts)
}

func (s *txSQLiteStore) DeletePlan(ctx context.Context, id string) error {
	return deletePlan(ctx, s.tx, id)
}

func (s *txSQLiteStore) CreateRollout(ctx context.Context, rollout *domain.Rollout) error {
	return createRollout(ctx, s.tx, rollout)
}

func (s *txSQLiteStore) GetRollout(ctx context.Context, id string) (*domain.Rollout, error) {
	return getRollout(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateRollout(ctx context.Context, rollout *domain.Rollout) error {
	return updateRollout(ctx, s.tx, rollout)
}

func (s *txSQLiteStore) ListRolloutsByPlan(ctx context.Context, planID string, opts ListOptions) ([]domain.Rollout, error) {
	return listRolloutsByPlan(ctx, s.tx, planID, opts)
}

func (s *txSQLiteStore) ListActiveRollouts(ctx context.Context) ([]domain.Rollout, error) {
	return listActiveRollouts(ctx, s.tx)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions - Plans
// =============================================================================

func createPlan(ctx context.Context, exec executor, plan *domain.PlanRecord) error {
	planJSON, err := json.Marshal(plan.Plan)
	if err != nil {
		return NewStoreError("CreatePlan", "plan", plan.ID, "failed to serialize plan", ErrInvalidData)
	}
	servicesJSON, err := marshalIDs(plan.Services)
	if err != nil {
		return NewStoreError("CreatePlan", "plan", plan.ID, "failed to serialize services", ErrInvalidData)
	}
	rollbackJSON, err := marshalIDs(plan.RollbackOrder)
	if err != nil {
		return NewStoreError("CreatePlan", "plan", plan.ID, "failed to serialize rollback order", ErrInvalidData)
	}

	query := `
		INSERT INTO plans (
			id, strategy, timing_model, total_waves, total_services,
			services, rollback_order, plan, created_at
		) VALUES (
			:id, :strategy, :timing_model, :total_waves, :total_services,
			:services, :rollback_order, :plan, :created_at
		)`

	row := map[string]any{
		"id":             plan.ID,
		"strategy":       string(plan.Plan.Strategy),
		"timing_model":   string(plan.Plan.TimingModel),
		"total_waves":    plan.Plan.TotalWaves,
		"total_services": plan.Plan.TotalServices,
		"services":       servicesJSON,
		"rollback_order": rollbackJSON,
		"plan":           string(planJSON),
		"created_at":     plan.CreatedAt.UTC().Format(timeFormat),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: plans.id") {
			return NewStoreError("CreatePlan", "plan", plan.ID, "plan with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreatePlan", "plan", plan.ID, err.Error(), err)
	}

	return nil
}

func getPlan(ctx context.Context, exec executor, id string) (*domain.PlanRecord, error) {
	query := `SELECT * FROM plans WHERE id = ?`

	var row planRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetPlan", "plan", id, "plan not found", ErrNotFound)
		}
		return nil, NewStoreError("GetPlan", "plan", id, err.Error(), err)
	}

	return rowToPlan(&row)
}

func listPlans(ctx context.Context, exec executor, opts ListOptions) ([]domain.PlanRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM plans ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`

	var rows []planRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListPlans", "plan", "", err.Error(), err)
	}

	plans := make([]domain.PlanRecord, 0, len(rows))
	for i := range rows {
		p, err := rowToPlan(&rows[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, nil
}

func deletePlan(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeletePlan", "plan", id, err.Error(), err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return NewStoreError("DeletePlan", "plan", id, "plan not found", ErrNotFound)
	}
	return nil
}

func rowToPlan(row *planRow) (*domain.PlanRecord, error) {
	rec := &domain.PlanRecord{ID: row.ID}

	if err := json.Unmarshal([]byte(row.Plan), &rec.Plan); err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to parse plan", ErrInvalidData)
	}
	services, err := unmarshalIDs(row.Services)
	if err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to parse services", ErrInvalidData)
	}
	rec.Services = services
	rollbackOrder, err := unmarshalIDs(row.RollbackOrder)
	if err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to parse rollback order", ErrInvalidData)
	}
	rec.RollbackOrder = rollbackOrder
	rec.CreatedAt, err = time.Parse(timeFormat, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to parse created_at", ErrInvalidData)
	}

	return rec, nil
}

// =============================================================================
// Shared Implementation Functions - Rollouts
// =============================================================================

func rolloutToRow(op string, r *domain.Rollout) (map[string]any, error) {
	deployed, err := marshalIDs(r.Deployed)
	if err != nil {
		return nil, NewStoreError(op, "rollout", r.ID, "failed to serialize deployed services", ErrInvalidData)
	}
	failed, err := marshalIDs(r.Failed)
	if err != nil {
		return nil, NewStoreError(op, "rollout", r.ID, "failed to serialize failed services", ErrInvalidData)
	}
	rollbackOrder, err := marshalIDs(r.RollbackOrder)
	if err != nil {
		return nil, NewStoreError(op, "rollout", r.ID, "failed to serialize rollback order", ErrInvalidData)
	}

	var finishedAt *string
	if r.FinishedAt != nil {
		s := r.FinishedAt.UTC().Format(timeFormat)
		finishedAt = &s
	}

	return map[string]any{
		"id":             r.ID,
		"plan_id":        r.PlanID,
		"status":         string(r.Status),
		"current_wave":   r.CurrentWave,
		"deployed":       deployed,
		"failed":         failed,
		"rollback_order": rollbackOrder,
		"error_message":  r.ErrorMessage,
		"started_at":     r.StartedAt.UTC().Format(timeFormat),
		"updated_at":     r.UpdatedAt.UTC().Format(timeFormat),
		"finished_at":    finishedAt,
	}, nil
}

func createRollout(ctx context.Context, exec executor, rollout *domain.Rollout) error {
	row, err := rolloutToRow("CreateRollout", rollout)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rollouts (
			id, plan_id, status, current_wave, deployed, failed,
			rollback_order, error_message, started_at, updated_at, finished_at
		) VALUES (
			:id, :plan_id, :status, :current_wave, :deployed, :failed,
			:rollback_order, :error_message, :started_at, :updated_at, :finished_at
		)`

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: rollouts.id") {
			return NewStoreError("CreateRollout", "rollout", rollout.ID, "rollout with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateRollout", "rollout", rollout.ID, "plan does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateRollout", "rollout", rollout.ID, err.Error(), err)
	}

	return nil
}

func getRollout(ctx context.Context, exec executor, id string) (*domain.Rollout, error) {
	query := `SELECT * FROM rollouts WHERE id = ?`

	var row rolloutRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRollout", "rollout", id, "rollout not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRollout", "rollout", id, err.Error(), err)
	}

	return rowToRollout(&row)
}

func updateRollout(ctx context.Context, exec executor, rollout *domain.Rollout) error {
	row, err := rolloutToRow("UpdateRollout", rollout)
	if err != nil {
		return err
	}

	query := `
		UPDATE rollouts SET
			status = :status,
			current_wave = :current_wave,
			deployed = :deployed,
			failed = :failed,
			rollback_order = :rollback_order,
			error_message = :error_message,
			updated_at = :updated_at,
			finished_at = :finished_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRollout", "rollout", rollout.ID, err.Error(), err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return NewStoreError("UpdateRollout", "rollout", rollout.ID, "rollout not found", ErrNotFound)
	}

	return nil
}

func listRolloutsByPlan(ctx context.Context, exec executor, planID string, opts ListOptions) ([]domain.Rollout, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM rollouts WHERE plan_id = ? ORDER BY started_at DESC, id ASC LIMIT ? OFFSET ?`

	var rows []rolloutRow
	if err := exec.SelectContext(ctx, &rows, query, planID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRolloutsByPlan", "rollout", "", err.Error(), err)
	}
	return rowsToRollouts(rows)
}

func listActiveRollouts(ctx context.Context, exec executor) ([]domain.Rollout, error) {
	query := `SELECT * FROM rollouts WHERE status NOT IN (?, ?) ORDER BY started_at ASC, id ASC`

	var rows []rolloutRow
	if err := exec.SelectContext(ctx, &rows, query, string(domain.RolloutCompleted), string(domain.RolloutRolledBack)); err != nil {
		return nil, NewStoreError("ListActiveRollouts", "rollout", "", err.Error(), err)
	}
	return rowsToRollouts(rows)
}

func rowsToRollouts(rows []rolloutRow) ([]domain.Rollout, error) {
	out := make([]domain.Rollout, 0, len(rows))
	for i := range rows {
		r, err := rowToRollout(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func rowToRollout(row *rolloutRow) (*domain.Rollout, error) {
	r := &domain.Rollout{
		ID:           row.ID,
		PlanID:       row.PlanID,
		Status:       domain.RolloutStatus(row.Status),
		CurrentWave:  row.CurrentWave,
		ErrorMessage: row.ErrorMessage,
	}

	var err error
	if r.Deployed, err = unmarshalIDs(row.Deployed); err != nil {
		return nil, NewStoreError("rowToRollout", "rollout", row.ID, "failed to parse deployed services", ErrInvalidData)
	}
	if r.Failed, err = unmarshalIDs(row.Failed); err != nil {
		return nil, NewStoreError("rowToRollout", "rollout", row.ID, "failed to parse failed services", ErrInvalidData)
	}
	if r.RollbackOrder, err = unmarshalIDs(row.RollbackOrder); err != nil {
		return nil, NewStoreError("rowToRollout", "rollout", row.ID, "failed to parse rollback order", ErrInvalidData)
	}
	if r.StartedAt, err = time.Parse(timeFormat, row.StartedAt); err != nil {
		return nil, NewStoreError("rowToRollout", "rollout", row.ID, "failed to parse started_at", ErrInvalidData)
	}
	if r.UpdatedAt, err = time.Parse(timeFormat, row.UpdatedAt); err != nil {
		return nil, NewStoreError("rowToRollout", "rollout", row.ID, "failed to parse updated_at", ErrInvalidData)
	}
	if row.FinishedAt != nil {
		t, err := time.Parse(timeFormat, *row.FinishedAt)
		if err != nil {
			return nil, NewStoreError("rowToRollout", "rollout", row.ID, "failed to parse finished_at", ErrInvalidData)
		}
		r.FinishedAt = &t
	}

	return r, nil
}

// =============================================================================
// JSON Helpers
// =============================================================================

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	return string(b), err
}

func unmarshalIDs(s string) ([]string, error) {
	ids := []string{}
	if s == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
