package docker

import (
	"context"
	"time"
)

// ServiceLabel is the label Docker Compose puts on every service container.
const ServiceLabel = "com.docker.compose.service"

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// Container health states reported by Docker.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthStarting  = "starting"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	Health    string // "healthy", "unhealthy", "starting", "" when no healthcheck
	StartedAt *time.Time
	Labels    map[string]string
	ExitCode  int
}

// Ready reports whether the container is running and, if it has a
// healthcheck, healthy.
func (c ContainerInfo) Ready() bool {
	return c.Status == ContainerStatusRunning && (c.Health == "" || c.Health == HealthHealthy)
}

// Failed reports whether the container can no longer become ready.
func (c ContainerInfo) Failed() bool {
	switch c.Status {
	case ContainerStatusExited, ContainerStatusDead:
		return true
	}
	return c.Health == HealthUnhealthy
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker operations the executor needs.
type Client interface {
	// FindServiceContainer returns the container that runs a service, matched
	// by the compose service label within project, or by container name when
	// project is empty.
	FindServiceContainer(ctx context.Context, project, service string) (*ContainerInfo, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}
