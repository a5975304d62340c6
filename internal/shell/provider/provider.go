// Package provider implements Config Providers: sources of the service
// catalog that plans are built from.
// This is part of the Imperative Shell - handles I/O with catalog files.
package provider

import (
	"context"
	"errors"

	"github.com/artpar/waveplan/internal/core/catalog"
)

// ErrNoCatalog is returned before any catalog has been loaded successfully.
var ErrNoCatalog = errors.New("no catalog loaded")

// ConfigProvider supplies the current service catalog.
type ConfigProvider interface {
	// Catalog returns the current catalog. Callers must not modify it.
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

// StaticProvider serves a fixed catalog. Useful for the CLI and tests.
type StaticProvider struct {
	catalog *catalog.Catalog
}

// NewStaticProvider returns a provider that always serves c.
func NewStaticProvider(c *catalog.Catalog) *StaticProvider {
	return &StaticProvider{catalog: c}
}

// Catalog returns the fixed catalog.
func (p *StaticProvider) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	if p.catalog == nil {
		return nil, ErrNoCatalog
	}
	return p.catalog, nil
}
