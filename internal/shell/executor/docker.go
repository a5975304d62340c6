package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/waveplan/internal/shell/docker"
)

// DockerConfig configures the Docker executor.
type DockerConfig struct {
	// Project is the compose project whose containers are managed.
	// When empty, containers are matched by name.
	Project string

	// StopTimeout is passed to docker stop on rollback.
	// Default: 10 seconds.
	StopTimeout time.Duration

	// ReadyTimeout bounds how long a started container may take to become
	// running and healthy.
	// Default: 2 minutes.
	ReadyTimeout time.Duration

	// PollInterval is the time between readiness checks.
	// Default: 1 second.
	PollInterval time.Duration
}

// DefaultDockerConfig returns the default configuration.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		StopTimeout:  10 * time.Second,
		ReadyTimeout: 2 * time.Minute,
		PollInterval: time.Second,
	}
}

// DockerExecutor starts and stops the existing containers behind services.
type DockerExecutor struct {
	client docker.Client
	config DockerConfig
	logger *slog.Logger
}

// NewDockerExecutor creates a Docker-backed executor.
func NewDockerExecutor(client docker.Client, config DockerConfig, logger *slog.Logger) *DockerExecutor {
	if config.StopTimeout == 0 {
		config.StopTimeout = 10 * time.Second
	}
	if config.ReadyTimeout == 0 {
		config.ReadyTimeout = 2 * time.Minute
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DockerExecutor{
		client: client,
		config: config,
		logger: logger.With("component", "docker_executor"),
	}
}

// Deploy starts the service's container and waits until it is ready.
func (e *DockerExecutor) Deploy(ctx context.Context, service string) error {
	info, err := e.client.FindServiceContainer(ctx, e.config.Project, service)
	if err != nil {
		return err
	}

	err = e.client.StartContainer(ctx, info.ID)
	if err != nil && !errors.Is(err, docker.ErrContainerAlreadyRunning) {
		return err
	}
	e.logger.Debug("container started", "service", service, "container_id", info.ID)

	return e.waitReady(ctx, service, info.ID)
}

// waitReady polls the container until it is ready, fails, or times out.
func (e *DockerExecutor) waitReady(ctx context.Context, service, containerID string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		info, err := e.client.InspectContainer(ctx, containerID)
		if err != nil {
			return err
		}
		if info.Ready() {
			e.logger.Info("service ready", "service", service, "container_id", containerID)
			return nil
		}
		if info.Failed() {
			return docker.NewDockerError("Deploy", "service", service,
				fmt.Sprintf("container %s is %s (health %q, exit code %d)", containerID, info.Status, info.Health, info.ExitCode), docker.ErrContainerUnhealthy)
		}

		select {
		case <-ctx.Done():
			return docker.NewDockerError("Deploy", "service", service,
				fmt.Sprintf("container %s not ready after %s", containerID, e.config.ReadyTimeout), docker.ErrTimeout)
		case <-ticker.C:
		}
	}
}

// Rollback stops the service's container. A container that is already
// stopped counts as rolled back.
func (e *DockerExecutor) Rollback(ctx context.Context, service string) error {
	info, err := e.client.FindServiceContainer(ctx, e.config.Project, service)
	if err != nil {
		return err
	}

	timeout := e.config.StopTimeout
	err = e.client.StopContainer(ctx, info.ID, &timeout)
	if err != nil && !errors.Is(err, docker.ErrContainerNotRunning) {
		return err
	}

	e.logger.Info("service stopped", "service", service, "container_id", info.ID)
	return nil
}
