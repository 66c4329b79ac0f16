// Package workers contains background workers for the compiler.
package workers

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/compose"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/platform"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/scheduler"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/vcs"
)

// UpdaterConfig configures the auto-update worker.
type UpdaterConfig struct {
	// Interval is the time between update cycles.
	// Default: 5 minutes.
	Interval time.Duration

	// CheckTimeout bounds the remote lookup for a single application.
	// Default: 30 seconds.
	CheckTimeout time.Duration

	// MaxConcurrent is the maximum number of applications checked at once.
	// Default: 4.
	MaxConcurrent int

	// AppsDir is the platform metadata root holding installed descriptors.
	AppsDir string
}

// DefaultUpdaterConfig returns the default configuration.
func DefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		Interval:      5 * time.Minute,
		CheckTimeout:  30 * time.Second,
		MaxConcurrent: 4,
		AppsDir:       "/DATA/AppData/casaos/apps",
	}
}

// AppStore lists applications and reads settings.
type AppStore interface {
	ListApplications(ctx context.Context) ([]domain.Application, error)
	GetSettings(ctx context.Context) (domain.Settings, error)
}

// RemoteHeads resolves the commit a repository branch points at.
type RemoteHeads interface {
	RemoteHead(ctx context.Context, loc vcs.Locator) (string, error)
}

// Enqueuer admits deployments without waiting for them.
type Enqueuer interface {
	Enqueue(appID string, force bool) *scheduler.Ticket
}

// Updater periodically enqueues deployments for auto-update applications
// whose source has moved on from what is installed.
type Updater struct {
	store   AppStore
	remote  RemoteHeads
	enqueue Enqueuer
	config  UpdaterConfig
	logger  *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUpdater creates a new auto-update worker.
func NewUpdater(s AppStore, remote RemoteHeads, enqueue Enqueuer, config UpdaterConfig, logger *slog.Logger) *Updater {
	defaults := DefaultUpdaterConfig()
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.CheckTimeout == 0 {
		config.CheckTimeout = defaults.CheckTimeout
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.AppsDir == "" {
		config.AppsDir = defaults.AppsDir
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Updater{
		store:   s,
		remote:  remote,
		enqueue: enqueue,
		config:  config,
		logger:  logger.With("component", "updater"),
	}
}

// Start begins the update loop in the background.
func (u *Updater) Start() {
	u.ctx, u.cancel = context.WithCancel(context.Background())

	u.wg.Add(1)
	go u.run()

	u.logger.Info("updater started",
		"interval", u.config.Interval,
		"max_concurrent", u.config.MaxConcurrent,
	)
}

// Stop cancels the loop and waits for an in-progress cycle to finish.
func (u *Updater) Stop() {
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
	u.logger.Info("updater stopped")
}

func (u *Updater) run() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-u.ctx.Done():
			return
		case <-ticker.C:
			u.RunCycle(u.ctx)
		}
	}
}

// RunCycle checks every eligible application once and returns the ids
// that were enqueued.
func (u *Updater) RunCycle(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, u.config.Interval)
	defer cancel()

	apps, err := u.store.ListApplications(ctx)
	if err != nil {
		u.logger.Error("failed to list applications", "error", err)
		return nil
	}
	settings, err := u.store.GetSettings(ctx)
	if err != nil {
		u.logger.Error("failed to read settings", "error", err)
		return nil
	}

	var (
		mu       sync.Mutex
		enqueued []string
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, u.config.MaxConcurrent)

	for i := range apps {
		app := &apps[i]
		if !eligible(app) {
			continue
		}

		wg.Add(1)
		go func(a *domain.Application) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			if !u.needsUpdate(ctx, a, settings) {
				return
			}
			if ticket := u.enqueue.Enqueue(a.ID, false); ticket.Accepted {
				u.logger.Info("update enqueued", "app_id", a.ID)
				mu.Lock()
				enqueued = append(enqueued, a.ID)
				mu.Unlock()
			}
		}(app)
	}

	wg.Wait()
	u.logger.Debug("completed update cycle", "checked", len(apps), "enqueued", len(enqueued))
	return enqueued
}

// eligible reports whether an application is opted in, installed and idle.
func eligible(app *domain.Application) bool {
	return app.AutoUpdate && app.IsInstalled && !app.Status.IsActive()
}

func (u *Updater) needsUpdate(ctx context.Context, app *domain.Application, settings domain.Settings) bool {
	logger := u.logger.With("app_id", app.ID)

	switch app.SourceKind {
	case domain.SourceRepository:
		checkCtx, cancel := context.WithTimeout(ctx, u.config.CheckTimeout)
		defer cancel()
		head, err := u.remote.RemoteHead(checkCtx, vcs.Locator{URL: app.RepoURL, Branch: app.Branch})
		if err != nil {
			logger.Warn("remote head lookup failed", "error", err)
			return false
		}
		return head != app.LastCommit

	case domain.SourceDescriptor:
		installed, err := os.ReadFile(platform.MetadataPath(u.config.AppsDir, app.ID))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("installed descriptor unreadable", "error", err)
			}
			return false
		}
		next, err := renderDescriptor(app.Descriptor, settings)
		if err != nil {
			logger.Warn("descriptor no longer normalizes", "error", err)
			return false
		}
		return compose.HasStructuralChange(string(installed), next)
	}
	return false
}

// renderDescriptor produces the rich descriptor a deployment would write.
func renderDescriptor(content string, settings domain.Settings) (string, error) {
	d, err := compose.Parse(content)
	if err != nil {
		return "", err
	}
	n, err := compose.Normalize(d, settings)
	if err != nil {
		return "", err
	}
	out, err := n.Rich.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
