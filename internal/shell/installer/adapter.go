// Package installer is the integration boundary to the app platform and the
// container runtime. It installs finalized descriptors through the compose
// CLI, and reaches the platform's HTTP API only through exec into the
// platform's own container, since that port is not reachable from here.
package installer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/docker"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the platform endpoints and timing knobs of the adapter.
type Config struct {
	PlatformContainer string
	APIBaseURL        string
	StatusPath        string
	UninstallPath     string // fmt pattern taking the app id
	TogglePath        string // fmt pattern taking the app id
	AuthToken         string

	ComposeCommand []string
	KillGrace      time.Duration

	Retries         int
	RetryBackoff    time.Duration
	ConfirmAttempts int
	ConfirmInterval time.Duration
	RequestTimeout  time.Duration
	StopTimeout     time.Duration
}

// DefaultConfig returns settings matching a stock CasaOS install.
func DefaultConfig() Config {
	return Config{
		PlatformContainer: "casaos",
		APIBaseURL:        "http://127.0.0.1:8080",
		StatusPath:        "/v2/app_management/compose",
		UninstallPath:     "/v2/app_management/compose/%s",
		TogglePath:        "/v2/app_management/compose/%s/status",
		ComposeCommand:    []string{"docker", "compose"},
		KillGrace:         10 * time.Second,
		Retries:           3,
		RetryBackoff:      2 * time.Second,
		ConfirmAttempts:   5,
		ConfirmInterval:   2 * time.Second,
		RequestTimeout:    15 * time.Second,
		StopTimeout:       10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PlatformContainer == "" {
		c.PlatformContainer = d.PlatformContainer
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = d.APIBaseURL
	}
	if c.StatusPath == "" {
		c.StatusPath = d.StatusPath
	}
	if c.UninstallPath == "" {
		c.UninstallPath = d.UninstallPath
	}
	if c.TogglePath == "" {
		c.TogglePath = d.TogglePath
	}
	if len(c.ComposeCommand) == 0 {
		c.ComposeCommand = d.ComposeCommand
	}
	if c.KillGrace <= 0 {
		c.KillGrace = d.KillGrace
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.ConfirmAttempts <= 0 {
		c.ConfirmAttempts = 1
	}
	if c.ConfirmInterval < 0 {
		c.ConfirmInterval = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	return c
}

// =============================================================================
// Outcome
// =============================================================================

// Outcome distinguishes a platform-confirmed result from a manual fallback.
type Outcome string

const (
	// OutcomeVerified means the platform accepted the request and a status
	// re-query confirmed the expected end state.
	OutcomeVerified Outcome = "verified"

	// OutcomeDegraded means the platform stayed unreachable and the adapter
	// acted on the containers directly.
	OutcomeDegraded Outcome = "degraded"

	// OutcomeFailed means neither path reached the expected end state.
	OutcomeFailed Outcome = "failed"
)

// =============================================================================
// Adapter
// =============================================================================

// Adapter implements the installer operations on top of the Docker client.
type Adapter struct {
	docker docker.Client
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewAdapter creates an Adapter. Zero config fields take their defaults.
func NewAdapter(client docker.Client, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		docker: client,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "installer"),
		sleep:  sleepContext,
	}
}

// Config returns the effective configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// withRetry runs fn, retrying with a constant backoff while the platform is
// unreachable.
func (a *Adapter) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(a.cfg.Retries), retry.NewConstant(a.cfg.RetryBackoff))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if errors.Is(err, domain.ErrPlatformUnavailable) {
			a.logger.Warn("platform unreachable, retrying", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
