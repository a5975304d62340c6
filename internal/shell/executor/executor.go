// Package executor carries out deployment plans one wave at a time.
//
// An Executor deploys or rolls back a single service. The Runner walks a
// plan's waves in order, fans each wave out to the Executor, records
// progress as a domain.Rollout and, when a wave fails, tears down everything
// it deployed in rollback order.
package executor

import (
	"context"
	"log/slog"
	"sync"
)

// Executor deploys and rolls back individual services.
type Executor interface {
	Deploy(ctx context.Context, service string) error
	Rollback(ctx context.Context, service string) error
}

// =============================================================================
// Dry Run Executor
// =============================================================================

// DryRunExecutor records what would be done without touching anything.
type DryRunExecutor struct {
	logger *slog.Logger

	mu         sync.Mutex
	deployed   []string
	rolledBack []string
}

// NewDryRunExecutor creates a dry-run executor.
func NewDryRunExecutor(logger *slog.Logger) *DryRunExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunExecutor{logger: logger.With("component", "dryrun_executor")}
}

// Deploy logs the deployment.
func (d *DryRunExecutor) Deploy(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.deployed = append(d.deployed, service)
	d.mu.Unlock()

	d.logger.Info("would deploy service", "service", service)
	return nil
}

// Rollback logs the rollback.
func (d *DryRunExecutor) Rollback(ctx context.Context, service string) error {
	d.mu.Lock()
	d.rolledBack = append(d.rolledBack, service)
	d.mu.Unlock()

	d.logger.Info("would roll back service", "service", service)
	return nil
}

// Deployed returns the services deployed so far, in call order.
func (d *DryRunExecutor) Deployed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deployed...)
}

// RolledBack returns the services rolled back so far, in call order.
func (d *DryRunExecutor) RolledBack() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.rolledBack...)
}
