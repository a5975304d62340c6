package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filepath.Join("data", "waveplan.db"), cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, "services.yaml", cfg.Catalog.Path)
	assert.Equal(t, "auto", cfg.Catalog.Format)
	assert.True(t, cfg.Catalog.Watch)

	assert.Equal(t, "parallel_optimized", cfg.Planner.Strategy)
	assert.Equal(t, "legacy", cfg.Planner.TimingModel)
	assert.False(t, cfg.Planner.StrictServices)

	assert.Equal(t, ExecutorDryRun, cfg.Executor.Kind)
	assert.Equal(t, 10*time.Minute, cfg.Executor.ServiceTimeout)
	assert.Equal(t, 10*time.Second, cfg.Executor.StopTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Executor.ReadyTimeout)

	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 3, cfg.Notify.RetryAttempts)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

catalog:
  path: "/etc/waveplan/compose.yaml"
  format: "compose"
  watch: false

planner:
  strategy: "priority_based"
  timing_model: "pipeline"
  strict_services: true

executor:
  kind: "docker"
  project: "shop"
  ready_timeout: 30s

notify:
  webhook_url: "https://hooks.example.com/waveplan"
  retry_attempts: 5
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/etc/waveplan/compose.yaml", cfg.Catalog.Path)
	assert.Equal(t, "compose", cfg.Catalog.Format)
	assert.False(t, cfg.Catalog.Watch)
	assert.Equal(t, "priority_based", cfg.Planner.Strategy)
	assert.Equal(t, "pipeline", cfg.Planner.TimingModel)
	assert.True(t, cfg.Planner.StrictServices)
	assert.Equal(t, ExecutorDocker, cfg.Executor.Kind)
	assert.Equal(t, "shop", cfg.Executor.Project)
	assert.Equal(t, 30*time.Second, cfg.Executor.ReadyTimeout)
	assert.Equal(t, "https://hooks.example.com/waveplan", cfg.Notify.WebhookURL)
	assert.Equal(t, 5, cfg.Notify.RetryAttempts)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("WAVEPLAN_SERVER_PORT", "3000")
	t.Setenv("WAVEPLAN_DATABASE_DSN", "/custom/path.db")
	t.Setenv("WAVEPLAN_LOG_LEVEL", "warn")
	t.Setenv("WAVEPLAN_CATALOG_PATH", "/srv/services.yaml")
	t.Setenv("WAVEPLAN_PLANNER_TIMING_MODEL", "pipeline")
	t.Setenv("WAVEPLAN_EXECUTOR_KIND", "none")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/srv/services.yaml", cfg.Catalog.Path)
	assert.Equal(t, "pipeline", cfg.Planner.TimingModel)
	assert.Equal(t, ExecutorNone, cfg.Executor.Kind)
}

func TestLoadConfig_DataDirDerivesDSN(t *testing.T) {
	clearEnv(t)

	t.Setenv("WAVEPLAN_DATA_DIR", "/var/lib/waveplan")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/waveplan/waveplan.db", cfg.Database.DSN)
}

func TestLoadConfig_ExplicitDSNOverridesDataDir(t *testing.T) {
	clearEnv(t)

	t.Setenv("WAVEPLAN_DATA_DIR", "/var/lib/waveplan")
	t.Setenv("WAVEPLAN_DATABASE_DSN", "/custom/path.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidExecutorKind(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAVEPLAN_EXECUTOR_KIND", "kubernetes")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "executor.kind")
}

func TestLoadConfig_InvalidTimingModel(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAVEPLAN_PLANNER_TIMING_MODEL", "fast")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "planner.timing_model")
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"", `"msg":"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: tt.format}}, &buf)
			logger.Info("hello")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level      string
		debugShown bool
		infoShown  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"invalid", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: "text"}}, &buf)
			logger.Debug("debug-line")
			logger.Info("info-line")

			assert.Equal(t, tt.debugShown, bytes.Contains(buf.Bytes(), []byte("debug-line")))
			assert.Equal(t, tt.infoShown, bytes.Contains(buf.Bytes(), []byte("info-line")))
		})
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"WAVEPLAN_DATA_DIR",
		"WAVEPLAN_SERVER_HOST",
		"WAVEPLAN_SERVER_PORT",
		"WAVEPLAN_DATABASE_DSN",
		"WAVEPLAN_LOG_LEVEL",
		"WAVEPLAN_LOG_FORMAT",
		"WAVEPLAN_CATALOG_PATH",
		"WAVEPLAN_CATALOG_WATCH",
		"WAVEPLAN_PLANNER_STRATEGY",
		"WAVEPLAN_PLANNER_TIMING_MODEL",
		"WAVEPLAN_EXECUTOR_KIND",
		"WAVEPLAN_NOTIFY_WEBHOOK_URL",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
