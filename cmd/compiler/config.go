package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/installer"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/store"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Platform PlatformConfig `mapstructure:"platform"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Updater  UpdaterConfig  `mapstructure:"updater"`
	Settings SettingsConfig `mapstructure:"settings"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Token enables shared-token authentication on the API when set.
	Token string `mapstructure:"token"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the persistence driver.
// Location is a directory for json and a database file for sqlite.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Location string `mapstructure:"location"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// PlatformConfig holds the CasaOS endpoints reached from inside its container.
type PlatformConfig struct {
	Container       string        `mapstructure:"container"`
	APIURL          string        `mapstructure:"api_url"`
	StatusPath      string        `mapstructure:"status_path"`
	UninstallPath   string        `mapstructure:"uninstall_path"`
	TogglePath      string        `mapstructure:"toggle_path"`
	Token           string        `mapstructure:"token"`
	ComposeCommand  []string      `mapstructure:"compose_command"`
	Retries         int           `mapstructure:"retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	ConfirmAttempts int           `mapstructure:"confirm_attempts"`
	ConfirmInterval time.Duration `mapstructure:"confirm_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	AppsDir string `mapstructure:"apps_dir"` // platform metadata root
	WorkDir  string `mapstructure:"work_dir"`  // repository checkouts
	HostRoot string `mapstructure:"host_root"` // host filesystem mount, bind sources are created under it
	Git      string `mapstructure:"git"`
}

// DeployConfig holds pipeline timing.
type DeployConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	InstallTimeout    time.Duration `mapstructure:"install_timeout"`
	PreInstallTimeout time.Duration `mapstructure:"pre_install_timeout"`
	UsePullPolicy     bool          `mapstructure:"use_pull_policy"`
}

// UpdaterConfig holds auto-update watcher configuration.
type UpdaterConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// SettingsConfig seeds the global settings when none are stored.
type SettingsConfig struct {
	ConcurrencyLimit int    `mapstructure:"concurrency_limit"`
	PUID             string `mapstructure:"puid"`
	PGID             string `mapstructure:"pgid"`
	RefDomain        string `mapstructure:"ref_domain"`
	RefScheme        string `mapstructure:"ref_scheme"`
	RefPort          string `mapstructure:"ref_port"`
	RefSeparator     string `mapstructure:"ref_separator"`
}

// Domain converts the seed to global settings.
func (c SettingsConfig) Domain() domain.Settings {
	return domain.Settings{
		ConcurrencyLimit: c.ConcurrencyLimit,
		PUID:             c.PUID,
		PGID:             c.PGID,
		RefDomain:        c.RefDomain,
		RefScheme:        c.RefScheme,
		RefPort:          c.RefPort,
		RefSeparator:     c.RefSeparator,
	}.Normalize()
}

func installerDefaults() PlatformConfig {
	d := installer.DefaultConfig()
	return PlatformConfig{
		Container:       d.PlatformContainer,
		APIURL:          d.APIBaseURL,
		StatusPath:      d.StatusPath,
		UninstallPath:   d.UninstallPath,
		TogglePath:      d.TogglePath,
		ComposeCommand:  d.ComposeCommand,
		Retries:         d.Retries,
		RetryBackoff:    d.RetryBackoff,
		ConfirmAttempts: d.ConfirmAttempts,
		ConfirmInterval: d.ConfirmInterval,
		RequestTimeout:  d.RequestTimeout,
	}
}

// Installer converts the platform section to installer settings.
func (c PlatformConfig) Installer() installer.Config {
	cfg := installer.DefaultConfig()
	cfg.PlatformContainer = c.Container
	cfg.APIBaseURL = c.APIURL
	cfg.StatusPath = c.StatusPath
	cfg.UninstallPath = c.UninstallPath
	cfg.TogglePath = c.TogglePath
	cfg.AuthToken = c.Token
	if len(c.ComposeCommand) > 0 {
		cfg.ComposeCommand = c.ComposeCommand
	}
	cfg.Retries = c.Retries
	cfg.RetryBackoff = c.RetryBackoff
	cfg.ConfirmAttempts = c.ConfirmAttempts
	cfg.ConfirmInterval = c.ConfirmInterval
	cfg.RequestTimeout = c.RequestTimeout
	return cfg
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("data_dir", "/DATA/AppData/yundera-compiler")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "20m") // covers deploys with wait=true
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", store.DriverJSON)
	v.SetDefault("docker.host", "")

	platform := installerDefaults()
	v.SetDefault("platform.container", platform.Container)
	v.SetDefault("platform.api_url", platform.APIURL)
	v.SetDefault("platform.status_path", platform.StatusPath)
	v.SetDefault("platform.uninstall_path", platform.UninstallPath)
	v.SetDefault("platform.toggle_path", platform.TogglePath)
	v.SetDefault("platform.token", "")
	v.SetDefault("platform.compose_command", platform.ComposeCommand)
	v.SetDefault("platform.retries", platform.Retries)
	v.SetDefault("platform.retry_backoff", platform.RetryBackoff)
	v.SetDefault("platform.confirm_attempts", platform.ConfirmAttempts)
	v.SetDefault("platform.confirm_interval", platform.ConfirmInterval)
	v.SetDefault("platform.request_timeout", platform.RequestTimeout)

	v.SetDefault("paths.apps_dir", "/DATA/AppData/casaos/apps")
	v.SetDefault("paths.host_root", "")
	v.SetDefault("paths.git", "git")

	v.SetDefault("deploy.settle_delay", "5s")
	v.SetDefault("deploy.install_timeout", "15m")
	v.SetDefault("deploy.pre_install_timeout", "5m")
	v.SetDefault("deploy.use_pull_policy", true)

	v.SetDefault("updater.enabled", true)
	v.SetDefault("updater.interval", "5m")
	v.SetDefault("updater.check_timeout", "30s")
	v.SetDefault("updater.max_concurrent", 4)

	seed := domain.DefaultSettings()
	v.SetDefault("settings.concurrency_limit", seed.ConcurrencyLimit)
	v.SetDefault("settings.puid", seed.PUID)
	v.SetDefault("settings.pgid", seed.PGID)
	v.SetDefault("settings.ref_domain", "")
	v.SetDefault("settings.ref_scheme", seed.RefScheme)
	v.SetDefault("settings.ref_port", "")
	v.SetDefault("settings.ref_separator", seed.RefSeparator)

	// Enable environment variable overrides
	v.SetEnvPrefix("COMPILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// No defaults: derived from data_dir when left empty.
	_ = v.BindEnv("store.location")
	_ = v.BindEnv("paths.work_dir")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.derivePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// derivePaths fills locations that default to children of the data dir.
func (c *Config) derivePaths() {
	if c.Store.Location == "" {
		if c.Store.Driver == store.DriverSQLite {
			c.Store.Location = filepath.Join(c.DataDir, "compiler.db")
		} else {
			c.Store.Location = filepath.Join(c.DataDir, "state")
		}
	}
	if c.Paths.WorkDir == "" {
		c.Paths.WorkDir = filepath.Join(c.DataDir, "repos")
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverJSON, store.DriverSQLite:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", store.DriverJSON, store.DriverSQLite, c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Paths.AppsDir == "" {
		return fmt.Errorf("paths.apps_dir is required")
	}
	if c.Settings.ConcurrencyLimit < 0 {
		return fmt.Errorf("settings.concurrency_limit must not be negative")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
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
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
