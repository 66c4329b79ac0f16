package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
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
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 20*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Server.Token)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, "/DATA/AppData/yundera-compiler/state", cfg.Store.Location)
	assert.Equal(t, "/DATA/AppData/casaos/apps", cfg.Paths.AppsDir)
	assert.Equal(t, "/DATA/AppData/yundera-compiler/repos", cfg.Paths.WorkDir)
	assert.Empty(t, cfg.Paths.HostRoot)

	assert.Equal(t, "casaos", cfg.Platform.Container)
	assert.Equal(t, []string{"docker", "compose"}, cfg.Platform.ComposeCommand)
	assert.Equal(t, 3, cfg.Platform.Retries)
	assert.Equal(t, 2*time.Second, cfg.Platform.RetryBackoff)

	assert.Equal(t, 5*time.Second, cfg.Deploy.SettleDelay)
	assert.Equal(t, 15*time.Minute, cfg.Deploy.InstallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Deploy.PreInstallTimeout)
	assert.True(t, cfg.Deploy.UsePullPolicy)

	assert.True(t, cfg.Updater.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Updater.Interval)
	assert.Equal(t, 4, cfg.Updater.MaxConcurrent)

	assert.Equal(t, 1, cfg.Settings.ConcurrencyLimit)
	assert.Equal(t, "1000", cfg.Settings.PUID)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
data_dir: /srv/compiler

server:
  host: "127.0.0.1"
  port: 9000
  token: "s3cret"

store:
  driver: sqlite

log:
  level: "debug"
  format: "text"

platform:
  api_url: "http://casaos:80"
  compose_command: ["docker-compose"]

deploy:
  settle_delay: 1s
  use_pull_policy: false

updater:
  enabled: false

settings:
  concurrency_limit: 2
  ref_domain: "home.example"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.Token)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/srv/compiler/compiler.db", cfg.Store.Location)
	assert.Equal(t, "/srv/compiler/repos", cfg.Paths.WorkDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://casaos:80", cfg.Platform.APIURL)
	assert.Equal(t, []string{"docker-compose"}, cfg.Platform.ComposeCommand)
	assert.Equal(t, time.Second, cfg.Deploy.SettleDelay)
	assert.False(t, cfg.Deploy.UsePullPolicy)
	assert.False(t, cfg.Updater.Enabled)

	seed := cfg.Settings.Domain()
	assert.Equal(t, 2, seed.ConcurrencyLimit)
	assert.Equal(t, "home.example", seed.RefDomain)
	assert.Equal(t, "http", seed.RefScheme)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("COMPILER_SERVER_PORT", "4000")
	t.Setenv("COMPILER_LOG_LEVEL", "warn")
	t.Setenv("COMPILER_PATHS_APPS_DIR", "/tmp/apps")
	t.Setenv("COMPILER_PATHS_HOST_ROOT", "/host")
	t.Setenv("COMPILER_DEPLOY_INSTALL_TIMEOUT", "2m")
	t.Setenv("COMPILER_SETTINGS_REF_DOMAIN", "box.local")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/apps", cfg.Paths.AppsDir)
	assert.Equal(t, "/host", cfg.Paths.HostRoot)
	assert.Equal(t, 2*time.Minute, cfg.Deploy.InstallTimeout)
	assert.Equal(t, "box.local", cfg.Settings.RefDomain)
}

func TestLoadConfig_DataDirDerivesPaths(t *testing.T) {
	clearEnv(t)

	t.Setenv("COMPILER_DATA_DIR", "/var/lib/compiler")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/compiler/state", cfg.Store.Location)
	assert.Equal(t, "/var/lib/compiler/repos", cfg.Paths.WorkDir)
}

func TestLoadConfig_ExplicitLocationOverridesDataDir(t *testing.T) {
	clearEnv(t)

	t.Setenv("COMPILER_DATA_DIR", "/var/lib/compiler")
	t.Setenv("COMPILER_STORE_LOCATION", "/custom/state")
	t.Setenv("COMPILER_PATHS_WORK_DIR", "/custom/repos")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/custom/state", cfg.Store.Location)
	assert.Equal(t, "/custom/repos", cfg.Paths.WorkDir)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"COMPILER_STORE_DRIVER": "postgres"}, "store.driver"},
		{"port out of range", map[string]string{"COMPILER_SERVER_PORT": "70000"}, "server.port"},
		{"negative limit", map[string]string{"COMPILER_SETTINGS_CONCURRENCY_LIMIT": "-1"}, "concurrency_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// =============================================================================
// Platform Config Tests
// =============================================================================

func TestPlatformConfig_Installer(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPILER_PLATFORM_TOKEN", "casa-token")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	ic := cfg.Platform.Installer()
	assert.Equal(t, "casaos", ic.PlatformContainer)
	assert.Equal(t, "casa-token", ic.AuthToken)
	assert.Equal(t, cfg.Platform.StatusPath, ic.StatusPath)
	assert.Equal(t, 10*time.Second, ic.KillGrace)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: "text"}})
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(t.Context(), tt.want))
			if tt.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(t.Context(), tt.want-1))
			}
		})
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "localhost", Port: 3000}
	assert.Equal(t, "localhost:3000", cfg.Address())
}

// =============================================================================
// Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "COMPILER_") {
			t.Setenv(key, "") // restored after the test
			os.Unsetenv(key)
		}
	}
}
