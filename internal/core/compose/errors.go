// Package compose imports dependency graphs from Docker Compose files.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import "errors"

// =============================================================================
// Error Types
// =============================================================================

// Errors are returned wrapped in a *catalog.ConfigError, so they also match
// domain.ErrConfig.
var (
	// Input validation errors
	ErrEmptyInput = errors.New("compose spec is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Compose structure errors
	ErrNoServices = errors.New("compose spec must define at least one service")

	// Service validation errors
	ErrServiceNoImage = errors.New("service must have image or build")
	ErrInvalidLabel   = errors.New("invalid waveplan label")

	// Unsupported feature errors
	ErrUnsupportedFeature = errors.New("unsupported compose feature")
)
