package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/artpar/waveplan/internal/core/catalog"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the time to wait after the last change to the
// catalog file before reloading it.
const DefaultDebounceInterval = 200 * time.Millisecond

// FileProvider serves a catalog read from a file and reloads it when the file
// changes. A reload that fails to parse keeps the previous catalog.
type FileProvider struct {
	path     string
	parse    Parser
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current *catalog.Catalog
	loaded  time.Time
	lastErr error

	// onReload is called after every reload attempt. Tests use it to wait.
	onReload func(error)
}

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithDebounce sets the reload debounce interval.
func WithDebounce(d time.Duration) FileOption {
	return func(p *FileProvider) { p.debounce = d }
}

// WithReloadHook registers a callback invoked after each reload attempt.
func WithReloadHook(fn func(error)) FileOption {
	return func(p *FileProvider) { p.onReload = fn }
}

// NewFileProvider creates a provider for path and loads it once.
// The initial load must succeed.
func NewFileProvider(path, format string, logger *slog.Logger, opts ...FileOption) (*FileProvider, error) {
	parse, err := NewParser(format, path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &FileProvider{
		path:     path,
		parse:    parse,
		logger:   logger.With("component", "catalog_provider"),
		debounce: DefaultDebounceInterval,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Path returns the watched file path.
func (p *FileProvider) Path() string {
	return p.path
}

// Catalog returns the most recently loaded catalog.
func (p *FileProvider) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return nil, ErrNoCatalog
	}
	return p.current, nil
}

// LoadedAt returns when the current catalog was loaded and the error of the
// latest reload attempt, if it failed.
func (p *FileProvider) LoadedAt() (time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded, p.lastErr
}

// Reload reads and parses the file. On failure the current catalog is kept.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err == nil {
		var c *catalog.Catalog
		c, err = p.parse(data)
		if err == nil {
			p.mu.Lock()
			p.current = c
			p.loaded = time.Now()
			p.lastErr = nil
			p.mu.Unlock()

			p.logger.Info("catalog loaded", "path", p.path, "services", c.Graph.Len())
			return nil
		}
	}

	err = fmt.Errorf("load catalog %s: %w", p.path, err)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	return err
}

// Watch reloads the catalog whenever the file changes, until ctx is done.
// The parent directory is watched so that editors replacing the file by
// rename are picked up.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	p.logger.Info("watching catalog for changes", "path", p.path)

	name := filepath.Clean(p.path)
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(p.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			err := p.Reload()
			if err != nil {
				p.logger.Warn("catalog reload failed, keeping previous catalog", "error", err)
			}
			if p.onReload != nil {
				p.onReload(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("catalog watcher error", "error", err)
		}
	}
}
