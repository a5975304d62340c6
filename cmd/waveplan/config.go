package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Planner  PlannerConfig  `mapstructure:"planner"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CatalogConfig holds service catalog configuration.
type CatalogConfig struct {
	// Path is the catalog file: a waveplan catalog or a compose file.
	Path string `mapstructure:"path"`

	// Format is "auto", "catalog" or "compose".
	Format string `mapstructure:"format"`

	// Watch reloads the catalog when the file changes (serve only).
	Watch bool `mapstructure:"watch"`
}

// PlannerConfig holds planning defaults.
type PlannerConfig struct {
	Strategy       string `mapstructure:"strategy"`
	TimingModel    string `mapstructure:"timing_model"`
	StrictServices bool   `mapstructure:"strict_services"`
}

// ExecutorConfig holds plan execution configuration.
type ExecutorConfig struct {
	// Kind selects the executor: "dryrun", "docker" or "none".
	Kind string `mapstructure:"kind"`

	ServiceTimeout  time.Duration `mapstructure:"service_timeout"`
	RollbackTimeout time.Duration `mapstructure:"rollback_timeout"`

	// Docker executor settings
	Project      string        `mapstructure:"project"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// NotifyConfig holds rollout notification configuration.
type NotifyConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	WebhookToken  string        `mapstructure:"webhook_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("data_dir", "data")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "") // derived from data_dir when empty
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("catalog.path", "services.yaml")
	v.SetDefault("catalog.format", "auto")
	v.SetDefault("catalog.watch", true)

	v.SetDefault("planner.strategy", "parallel_optimized")
	v.SetDefault("planner.timing_model", "legacy")
	v.SetDefault("planner.strict_services", false)

	v.SetDefault("executor.kind", "dryrun")
	v.SetDefault("executor.service_timeout", "10m")
	v.SetDefault("executor.rollback_timeout", "10m")
	v.SetDefault("executor.project", "")
	v.SetDefault("executor.stop_timeout", "10s")
	v.SetDefault("executor.ready_timeout", "2m")

	v.SetDefault("docker.host", "")

	v.SetDefault("notify.webhook_url", "") // disabled when empty
	v.SetDefault("notify.webhook_token", "")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.retry_attempts", 3)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("WAVEPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "waveplan.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Executor.Kind {
	case ExecutorDryRun, ExecutorDocker, ExecutorNone:
	default:
		return fmt.Errorf("executor.kind must be one of dryrun, docker, none; got %q", c.Executor.Kind)
	}
	switch c.Planner.TimingModel {
	case "legacy", "pipeline":
	default:
		return fmt.Errorf("planner.timing_model must be legacy or pipeline; got %q", c.Planner.TimingModel)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Executor kinds
const (
	ExecutorDryRun = "dryrun"
	ExecutorDocker = "docker"
	ExecutorNone   = "none"
)

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to w so command output on stdout stays machine-readable.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
