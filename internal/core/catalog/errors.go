// Package catalog parses service catalogs: the dependency graph, strategy
// settings and rollback order a Config Provider supplies.
// This is part of the Functional Core - all functions are pure with no I/O.
package catalog

import (
	"errors"
	"fmt"

	"github.com/artpar/waveplan/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyInput is returned for blank catalog documents.
	ErrEmptyInput = errors.New("catalog is empty")

	// ErrNoServices is returned when a catalog declares no services.
	ErrNoServices = errors.New("catalog must define at least one service")
)

// ConfigError wraps errors with context about where catalog parsing failed.
// It always matches domain.ErrConfig with errors.Is.
type ConfigError struct {
	Field   string // e.g., "services.auth.priority"
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil || e.Err == domain.ErrConfig {
		return []error{domain.ErrConfig}
	}
	return []error{domain.ErrConfig, e.Err}
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
