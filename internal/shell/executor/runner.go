package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/rollback"
	"github.com/artpar/waveplan/internal/shell/notify"
	"github.com/artpar/waveplan/internal/shell/store"
)

// RunnerConfig configures the wave runner.
type RunnerConfig struct {
	// ServiceTimeout bounds a single Deploy or Rollback call.
	// Default: 10 minutes.
	ServiceTimeout time.Duration

	// RollbackTimeout bounds the whole teardown after a failure. Teardown
	// runs even when the rollout's context was cancelled.
	// Default: 10 minutes.
	RollbackTimeout time.Duration
}

// DefaultRunnerConfig returns the default configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		ServiceTimeout:  10 * time.Minute,
		RollbackTimeout: 10 * time.Minute,
	}
}

// Runner executes stored plans wave by wave.
type Runner struct {
	store    store.Store
	executor Executor
	notifier notify.Notifier
	config   RunnerConfig
	logger   *slog.Logger

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewRunner creates a runner. A nil notifier drops events.
func NewRunner(s store.Store, exec Executor, n notify.Notifier, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.ServiceTimeout == 0 {
		config.ServiceTimeout = 10 * time.Minute
	}
	if config.RollbackTimeout == 0 {
		config.RollbackTimeout = 10 * time.Minute
	}
	if n == nil {
		n = notify.NoOpNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    s,
		executor: exec,
		notifier: n,
		config:   config,
		logger:   logger.With("component", "runner"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// =============================================================================
// Background Runs
// =============================================================================

// Submit records a new rollout of the plan and executes it in the
// background. The returned rollout is the initial, persisted state.
func (r *Runner) Submit(ctx context.Context, plan *domain.PlanRecord) (*domain.Rollout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrRunnerStopped
	}

	rollout := domain.NewRollout(uuid.New().String(), plan.ID)
	if err := r.store.CreateRollout(ctx, rollout); err != nil {
		return nil, err
	}
	initial := *rollout

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Execute(r.ctx, plan, rollout); err != nil {
			r.logger.Error("rollout failed", "rollout_id", rollout.ID, "plan_id", plan.ID, "error", err)
		}
	}()

	return &initial, nil
}

// Shutdown stops accepting runs and waits for running ones to finish. If
// ctx ends first, running rollouts are cancelled (and rolled back) before
// Shutdown returns ctx's error.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// =============================================================================
// Execution
// =============================================================================

// Execute drives rollout through every wave of plan. Waves run strictly in
// order; the members of a wave run concurrently, at most MaxConcurrent at a
// time. If any member fails, or ctx is cancelled, the wave fails and every
// service deployed so far is rolled back in rollback order.
//
// The rollout is persisted after every state change. The returned error is a
// *RunError when a wave failed.
func (r *Runner) Execute(ctx context.Context, plan *domain.PlanRecord, rollout *domain.Rollout) error {
	logger := r.logger.With("rollout_id", rollout.ID, "plan_id", plan.ID)

	if err := r.transition(rollout, domain.RolloutPlanning); err != nil {
		return err
	}
	r.notify(notify.NewEvent(notify.EventRolloutStarted, rollout.ID, plan.ID))
	logger.Info("rollout started", "waves", len(plan.Plan.Waves))

	for _, wave := range plan.Plan.Waves {
		rollout.CurrentWave = wave.WaveNumber
		if err := r.transition(rollout, domain.RolloutWaveInProgress); err != nil {
			return err
		}
		r.notify(notify.NewEvent(notify.EventWaveStarted, rollout.ID, plan.ID).WithWave(wave.WaveNumber, wave.Services))

		deployed, failed, waveErr := r.runWave(ctx, wave)
		rollout.Deployed = append(rollout.Deployed, deployed...)

		if waveErr != nil {
			return r.fail(rollout, plan, wave, failed, waveErr)
		}

		if err := r.transition(rollout, domain.RolloutWaveSucceeded); err != nil {
			return err
		}
		r.notify(notify.NewEvent(notify.EventWaveSucceeded, rollout.ID, plan.ID).WithWave(wave.WaveNumber, wave.Services))
		logger.Info("wave succeeded", "wave", wave.WaveNumber, "services", wave.Services)
	}

	if err := r.transition(rollout, domain.RolloutCompleted); err != nil {
		return err
	}
	r.notify(notify.NewEvent(notify.EventRolloutCompleted, rollout.ID, plan.ID))
	logger.Info("rollout completed", "services", len(rollout.Deployed))
	return nil
}

// runWave deploys every member of wave. It returns the members that were
// deployed and those that failed (both sorted) and the first error seen.
func (r *Runner) runWave(ctx context.Context, wave domain.DeploymentWave) (deployed, failed []string, firstErr error) {
	sem := semaphore.NewWeighted(int64(max(wave.MaxConcurrent, 1)))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(service string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, service)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", service, err)
			}
			return
		}
		deployed = append(deployed, service)
	}

	for _, service := range wave.Services {
		if err := sem.Acquire(ctx, 1); err != nil {
			record(service, err)
			continue
		}

		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			defer sem.Release(1)

			svcCtx, cancel := context.WithTimeout(ctx, r.config.ServiceTimeout)
			defer cancel()
			record(service, r.executor.Deploy(svcCtx, service))
		}(service)
	}
	wg.Wait()

	sort.Strings(deployed)
	sort.Strings(failed)
	return deployed, failed, firstErr
}

// fail records a failed wave and rolls back everything deployed so far.
func (r *Runner) fail(rollout *domain.Rollout, plan *domain.PlanRecord, wave domain.DeploymentWave, failed []string, waveErr error) error {
	logger := r.logger.With("rollout_id", rollout.ID, "plan_id", plan.ID)

	rollout.Failed = failed
	rollout.ErrorMessage = waveErr.Error()
	if err := r.transition(rollout, domain.RolloutWaveFailed); err != nil {
		return err
	}
	r.notify(notify.NewEvent(notify.EventWaveFailed, rollout.ID, plan.ID).
		WithWave(wave.WaveNumber, failed).
		WithMessage(waveErr.Error()))
	logger.Warn("wave failed", "wave", wave.WaveNumber, "failed", failed, "error", waveErr)

	order := rollback.Resolve(plan.RollbackOrder, plan.Plan.Waves, rollout.Deployed)
	rollout.RollbackOrder = order

	rbErr := r.rollback(order)
	if rbErr != nil {
		rollout.ErrorMessage = rollout.ErrorMessage + "; " + rbErr.Error()
	}

	if err := r.transition(rollout, domain.RolloutRolledBack); err != nil {
		return err
	}
	r.notify(notify.NewEvent(notify.EventRolloutRolledBack, rollout.ID, plan.ID).
		WithWave(wave.WaveNumber, order).
		WithMessage(rollout.ErrorMessage))
	logger.Info("rollout rolled back", "order", order)

	return &RunError{
		RolloutID: rollout.ID,
		Wave:      wave.WaveNumber,
		Services:  failed,
		Err:       errors.Join(fmt.Errorf("%w: %w", ErrWaveFailed, waveErr), rbErr),
	}
}

// rollback tears services down one at a time, in order. It keeps going past
// failures and reports them together.
func (r *Runner) rollback(order []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.RollbackTimeout)
	defer cancel()

	var errs []error
	for _, service := range order {
		svcCtx, svcCancel := context.WithTimeout(ctx, r.config.ServiceTimeout)
		err := r.executor.Rollback(svcCtx, service)
		svcCancel()
		if err != nil {
			r.logger.Error("rollback failed", "service", service, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", service, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrRollbackFailed, errors.Join(errs...))
	}
	return nil
}

// transition moves the rollout to a new state and persists it.
func (r *Runner) transition(rollout *domain.Rollout, to domain.RolloutStatus) error {
	if err := rollout.Transition(to); err != nil {
		return fmt.Errorf("rollout %s: %s -> %s: %w", rollout.ID, rollout.Status, to, err)
	}

	// Persistence uses its own context so that a cancelled rollout still
	// records how it ended.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.UpdateRollout(ctx, rollout); err != nil {
		r.logger.Error("failed to persist rollout", "rollout_id", rollout.ID, "status", to, "error", err)
	}
	return nil
}

func (r *Runner) notify(event notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.notifier.Notify(ctx, event); err != nil {
		r.logger.Warn("notification failed", "type", event.Type, "error", err)
	}
}
