// Package deploy runs the per-application deployment pipeline: clean, fetch
// and build, normalize, pre-install hook, write, install and verify.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/compose"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/platform"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/docker"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/events"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/installer"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/store"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/vcs"
)

// =============================================================================
// Collaborators
// =============================================================================

// Installer is the part of the installer adapter the pipeline drives.
type Installer interface {
	Install(ctx context.Context, descriptorPath, appID string, opts installer.InstallOptions) (domain.Result, error)
	RunPreInstall(ctx context.Context, appID, command string, timeout time.Duration, collector installer.LineCollector) error
	AppStatus(ctx context.Context, appID string) installer.AppStatus
	Cleanup(ctx context.Context, appID string, preserveData bool) error
}

// SourceSyncer fetches repository sources.
type SourceSyncer interface {
	Sync(ctx context.Context, loc vcs.Locator, dir string) (string, error)
}

// ImageBuilder builds images from a source tree.
type ImageBuilder interface {
	BuildImage(ctx context.Context, spec docker.BuildSpec, onOutput docker.BuildOutputCallback) error
	ImageExists(ctx context.Context, image string) (bool, error)
}

// Store is the persistence the pipeline needs.
type Store interface {
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	SaveApplication(ctx context.Context, app *domain.Application) error
	GetSettings(ctx context.Context) (domain.Settings, error)
}

// Publisher receives status, log and completion events.
type Publisher interface {
	Status(app *domain.Application)
	Log(appID string, sev events.Severity, message string)
	Completed(appID string, result domain.Result)
	LineCollector(appID string) func(stream, line string)
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds pipeline locations and timings.
type Config struct {
	AppsDir           string        // platform metadata root
	WorkDir           string        // repository checkouts
	SettleDelay       time.Duration // wait after install before verifying
	InstallTimeout    time.Duration
	PreInstallTimeout time.Duration
	UsePullPolicy     bool // pull images on install for descriptor sources

	// HostRoot is where the host filesystem is visible to this process.
	// Bind sources are created under it. Empty means "/".
	HostRoot string
}

// DefaultConfig returns the stock CasaOS locations and timings.
func DefaultConfig() Config {
	return Config{
		AppsDir:           "/DATA/AppData/casaos/apps",
		WorkDir:           "/DATA/AppData/yundera-compiler/repos",
		SettleDelay:       5 * time.Second,
		InstallTimeout:    15 * time.Minute,
		PreInstallTimeout: 5 * time.Minute,
		UsePullPolicy:     true,
	}
}

// Progress milestones per phase.
var milestones = map[domain.AppStatus]int{
	domain.StatusCleaning:    5,
	domain.StatusCloning:     15,
	domain.StatusBuilding:    30,
	domain.StatusNormalizing: 45,
	domain.StatusPreInstall:  55,
	domain.StatusWriting:     60,
	domain.StatusInstalling:  70,
	domain.StatusAwaiting:    85,
	domain.StatusVerifying:   90,
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs deployments. It holds no per-run state; the scheduler
// guarantees at most one run per application at a time.
type Orchestrator struct {
	installer Installer
	source    SourceSyncer
	builder   ImageBuilder
	store     Store
	events    Publisher
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(inst Installer, source SourceSyncer, builder ImageBuilder, st Store, pub Publisher, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		installer: inst,
		source:    source,
		builder:   builder,
		store:     st,
		events:    pub,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		sleep:     sleepContext,
	}
}

// run carries the state of one pipeline execution.
type run struct {
	app       *domain.Application
	settings  domain.Settings
	force     bool
	logger    *slog.Logger
	collector func(stream, line string)

	prevCommit string
	installed  bool // Installing was reached
}

// Deploy runs the whole pipeline for an application. A nil error means the
// platform confirmed the installation. Every error is a *domain.PhaseError
// and is also reflected in the stored application.
func (o *Orchestrator) Deploy(ctx context.Context, appID string, force bool) error {
	app, err := o.store.GetApplication(ctx, appID)
	if err != nil {
		return err
	}
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return err
	}

	r := &run{
		app:        app,
		settings:   settings,
		force:      force,
		logger:     o.logger.With("app_id", appID),
		collector:  o.events.LineCollector(appID),
		prevCommit: app.LastCommit,
	}

	app.BeginRun()
	o.save(ctx, app)
	r.logger.Info("deployment started", "source", app.SourceKind, "force", force)

	if err := o.pipeline(ctx, r); err != nil {
		o.fail(ctx, r, err)
		return err
	}

	result := domain.Result{Success: true, Message: app.Message}
	o.events.Completed(appID, result)
	r.logger.Info("deployment succeeded", "running", app.IsRunning)
	return nil
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) error {
	app := r.app

	if err := app.Validate(); err != nil {
		return o.phaseErr(r, domain.StatusCleaning, fmt.Errorf("%w: %v", domain.ErrValidation, err))
	}

	// 1. Clean stale metadata
	if err := o.advance(ctx, r, domain.StatusCleaning, "removing previous install metadata"); err != nil {
		return err
	}
	if err := os.RemoveAll(platform.MetadataDir(o.cfg.AppsDir, app.ID)); err != nil {
		return o.phaseErr(r, domain.StatusCleaning, fmt.Errorf("%w: %v", domain.ErrExternalTool, err))
	}

	// 2. Obtain the descriptor, building images for repository sources
	var (
		desc *compose.Descriptor
		err  error
	)
	if app.SourceKind == domain.SourceRepository {
		desc, err = o.fetchAndBuild(ctx, r)
	} else {
		desc, err = compose.Parse(app.Descriptor)
		if err != nil {
			err = o.phaseErr(r, domain.StatusNormalizing, err)
		}
	}
	if err != nil {
		return err
	}

	// 3. Normalize
	if err := o.advance(ctx, r, domain.StatusNormalizing, "normalizing descriptor"); err != nil {
		return err
	}
	if id := desc.AppID(); id != app.ID {
		return o.phaseErr(r, domain.StatusNormalizing,
			fmt.Errorf("%w: descriptor name %q does not match application id %q", domain.ErrValidation, id, app.ID))
	}
	normalized, err := compose.Normalize(desc, r.settings)
	if err != nil {
		return o.phaseErr(r, domain.StatusNormalizing, err)
	}
	if err := compose.Validate(ctx, normalized.Rich); err != nil {
		return o.phaseErr(r, domain.StatusNormalizing, err)
	}

	// 4. Pre-install hook
	if err := o.preInstall(ctx, r, normalized.Rich); err != nil {
		return err
	}

	// 5. Write host paths and the rich descriptor
	descriptorPath, err := o.write(ctx, r, normalized.Rich)
	if err != nil {
		return err
	}

	// 6. Install
	if err := o.advance(ctx, r, domain.StatusInstalling, "installing"); err != nil {
		return err
	}
	r.installed = true
	result, err := o.installer.Install(ctx, descriptorPath, app.ID, installer.InstallOptions{
		Collector:     r.collector,
		UsePullPolicy: o.cfg.UsePullPolicy && app.SourceKind == domain.SourceDescriptor,
		Timeout:       o.cfg.InstallTimeout,
	})
	o.events.Log(app.ID, severityFor(result.Success), "install finished: "+result.Message)
	if err != nil {
		return o.phaseErr(r, domain.StatusInstalling, err)
	}

	// 7. Let the platform registry catch up
	if err := o.advance(ctx, r, domain.StatusAwaiting, "waiting for the platform to register the app"); err != nil {
		return err
	}
	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return o.phaseErr(r, domain.StatusAwaiting, err)
	}

	// 8. Verify
	if err := o.advance(ctx, r, domain.StatusVerifying, "verifying installation"); err != nil {
		return err
	}
	status := o.installer.AppStatus(ctx, app.ID)
	app.IsInstalled = status.Installed
	app.IsRunning = status.Running
	if !status.Installed {
		return o.phaseErr(r, domain.StatusVerifying,
			fmt.Errorf("%w: install reported success but the platform does not list %s", domain.ErrVerificationMismatch, app.ID))
	}

	if err := app.Succeed("installed and verified"); err != nil {
		return o.phaseErr(r, domain.StatusVerifying, err)
	}
	o.save(ctx, app)
	return nil
}

// =============================================================================
// Phases
// =============================================================================

func (o *Orchestrator) fetchAndBuild(ctx context.Context, r *run) (*compose.Descriptor, error) {
	app := r.app
	checkout := filepath.Join(o.cfg.WorkDir, app.ID)

	if err := o.advance(ctx, r, domain.StatusCloning, "fetching "+app.RepoURL); err != nil {
		return nil, err
	}
	commit, err := o.source.Sync(ctx, vcs.Locator{URL: app.RepoURL, Branch: app.Branch}, checkout)
	if err != nil {
		return nil, o.phaseErr(r, domain.StatusCloning, err)
	}

	content, err := os.ReadFile(filepath.Join(checkout, filepath.FromSlash(path.Clean("/"+app.ComposeFile()))))
	if err != nil {
		return nil, o.phaseErr(r, domain.StatusCloning,
			fmt.Errorf("%w: read %s: %v", domain.ErrValidation, app.ComposeFile(), err))
	}
	desc, err := compose.Parse(string(content))
	if err != nil {
		return nil, o.phaseErr(r, domain.StatusCloning, err)
	}

	if err := o.advance(ctx, r, domain.StatusBuilding, "building images"); err != nil {
		return nil, err
	}
	targets, err := compose.BuildTargets(desc)
	if err != nil {
		return nil, o.phaseErr(r, domain.StatusBuilding, err)
	}
	for _, t := range targets {
		if !r.force && commit == r.prevCommit {
			exists, err := o.builder.ImageExists(ctx, t.Image)
			if err == nil && exists {
				r.logger.Info("image up to date, skipping build", "service", t.Service, "image", t.Image)
				continue
			}
		}
		o.events.Log(app.ID, events.SeverityInfo, fmt.Sprintf("building %s as %s", t.Service, t.Image))
		err := o.builder.BuildImage(ctx, docker.BuildSpec{
			ContextDir: filepath.Join(checkout, filepath.FromSlash(t.Context)),
			Dockerfile: t.Dockerfile,
			Target:     t.Target,
			Tag:        t.Image,
			Args:       t.Args,
			NoCache:    r.force,
		}, func(line string) {
			r.collector("build", line)
		})
		if err != nil {
			return nil, o.phaseErr(r, domain.StatusBuilding, fmt.Errorf("%w: build %s: %v", domain.ErrExternalTool, t.Service, err))
		}
	}
	compose.ApplyBuiltImages(desc, targets)
	app.LastCommit = commit
	return desc, nil
}

func (o *Orchestrator) preInstall(ctx context.Context, r *run, rich *compose.Descriptor) error {
	command := rich.PreInstallCommand()
	msg := "no pre-install command"
	if command != "" {
		msg = "running pre-install command"
	}
	if err := o.advance(ctx, r, domain.StatusPreInstall, msg); err != nil {
		return err
	}
	if command == "" {
		return nil
	}
	if err := o.installer.RunPreInstall(ctx, r.app.ID, command, o.cfg.PreInstallTimeout, r.collector); err != nil {
		return o.phaseErr(r, domain.StatusPreInstall, err)
	}
	return nil
}

func (o *Orchestrator) write(ctx context.Context, r *run, rich *compose.Descriptor) (string, error) {
	if err := o.advance(ctx, r, domain.StatusWriting, "writing descriptor"); err != nil {
		return "", err
	}
	for _, p := range rich.HostPaths() {
		if o.cfg.HostRoot != "" {
			p = filepath.Join(o.cfg.HostRoot, p)
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return "", o.phaseErr(r, domain.StatusWriting, fmt.Errorf("%w: create host path %s: %v", domain.ErrExternalTool, p, err))
		}
	}

	data, err := rich.Marshal()
	if err != nil {
		return "", o.phaseErr(r, domain.StatusWriting, err)
	}
	descriptorPath := platform.MetadataPath(o.cfg.AppsDir, r.app.ID)
	if err := store.WriteFileAtomic(descriptorPath, data, 0o644); err != nil {
		return "", o.phaseErr(r, domain.StatusWriting, fmt.Errorf("%w: write descriptor: %v", domain.ErrExternalTool, err))
	}
	r.logger.Info("descriptor written", "path", descriptorPath)
	return descriptorPath, nil
}

// =============================================================================
// State Handling
// =============================================================================

func (o *Orchestrator) advance(ctx context.Context, r *run, to domain.AppStatus, message string) error {
	if err := r.app.Advance(to, milestones[to], message); err != nil {
		return o.phaseErr(r, to, err)
	}
	r.logger.Debug("phase", "status", to, "progress", r.app.Progress)
	o.save(ctx, r.app)
	return nil
}

func (o *Orchestrator) phaseErr(r *run, phase domain.AppStatus, err error) error {
	var pe *domain.PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return domain.NewPhaseError(r.app.ID, phase, err)
}

// fail records the error, removes partial artifacts and publishes the
// outcome. Cleanup runs even when ctx is already cancelled.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) {
	app := r.app
	cleanupCtx := context.WithoutCancel(ctx)

	r.logger.Error("deployment failed", "error", err, "kind", domain.ErrorKind(err))

	if rmErr := os.RemoveAll(platform.MetadataDir(o.cfg.AppsDir, app.ID)); rmErr != nil {
		r.logger.Warn("failed to remove metadata", "error", rmErr)
	}
	if r.installed {
		if cleanErr := o.installer.Cleanup(cleanupCtx, app.ID, true); cleanErr != nil {
			r.logger.Warn("failed to remove containers", "error", cleanErr)
		}
		app.IsInstalled = false
		app.IsRunning = false
	}

	app.Fail(err.Error())
	o.save(cleanupCtx, app)
	o.events.Completed(app.ID, domain.Result{Success: false, Message: err.Error()})
}

func (o *Orchestrator) save(ctx context.Context, app *domain.Application) {
	if err := o.store.SaveApplication(ctx, app); err != nil {
		o.logger.Warn("failed to persist application", "app_id", app.ID, "error", err)
	}
	o.events.Status(app)
}

func severityFor(ok bool) events.Severity {
	if ok {
		return events.SeverityInfo
	}
	return events.SeverityError
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
