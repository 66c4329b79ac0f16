package domain

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Application Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAppID      = errors.New("invalid application id")
	ErrMissingSource     = errors.New("application source is missing")
)

// =============================================================================
// Source Kind
// =============================================================================

// SourceKind tells the orchestrator where an application's descriptor comes from.
type SourceKind string

const (
	// SourceRepository means the descriptor lives in a git repository and
	// services with a build section are built into local images.
	SourceRepository SourceKind = "repository"

	// SourceDescriptor means the descriptor was supplied directly.
	SourceDescriptor SourceKind = "descriptor"
)

// DefaultComposeFile is the descriptor path used inside a repository when none is set.
const DefaultComposeFile = "docker-compose.yml"

// =============================================================================
// Application Status
// =============================================================================

type AppStatus string

const (
	StatusIdle        AppStatus = "idle"
	StatusCleaning    AppStatus = "cleaning"
	StatusCloning     AppStatus = "cloning"
	StatusBuilding    AppStatus = "building"
	StatusNormalizing AppStatus = "normalizing"
	StatusPreInstall  AppStatus = "pre_install"
	StatusWriting     AppStatus = "writing"
	StatusInstalling  AppStatus = "installing"
	StatusAwaiting    AppStatus = "awaiting_completion"
	StatusVerifying   AppStatus = "verifying"
	StatusSuccess     AppStatus = "success"
	StatusError       AppStatus = "error"
)

// phaseRank orders the pipeline phases. A run may only move forward.
var phaseRank = map[AppStatus]int{
	StatusIdle:        0,
	StatusCleaning:    1,
	StatusCloning:     2,
	StatusBuilding:    3,
	StatusNormalizing: 4,
	StatusPreInstall:  5,
	StatusWriting:     6,
	StatusInstalling:  7,
	StatusAwaiting:    8,
	StatusVerifying:   9,
	StatusSuccess:     10,
}

// IsTerminal reports whether the status ends a run.
func (s AppStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// IsActive reports whether a run is in progress.
func (s AppStatus) IsActive() bool {
	return s != StatusIdle && !s.IsTerminal()
}

// =============================================================================
// Application
// =============================================================================

// Application is a deployable unit tracked by the compiler.
type Application struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	SourceKind  SourceKind `json:"source_kind"`
	RepoURL     string     `json:"repo_url,omitempty"`
	Branch      string     `json:"branch,omitempty"`
	ComposePath string     `json:"compose_path,omitempty"`
	Descriptor  string     `json:"descriptor,omitempty"`
	AutoUpdate  bool       `json:"auto_update"`

	Status      AppStatus `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	IsInstalled bool      `json:"is_installed"`
	IsRunning   bool      `json:"is_running"`
	LastCommit  string    `json:"last_commit,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastDeployedAt *time.Time `json:"last_deployed_at,omitempty"`
}

// NewApplication creates an application in the idle state.
func NewApplication(id, name string, kind SourceKind) (*Application, error) {
	if err := ValidateAppID(id); err != nil {
		return nil, err
	}
	if name == "" {
		name = id
	}
	now := time.Now().UTC()
	return &Application{
		ID:         id,
		Name:       name,
		SourceKind: kind,
		Status:     StatusIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Validate checks that the application has a usable source.
func (a *Application) Validate() error {
	if err := ValidateAppID(a.ID); err != nil {
		return err
	}
	switch a.SourceKind {
	case SourceRepository:
		if a.RepoURL == "" {
			return fmt.Errorf("%w: repo_url is required for repository sources", ErrMissingSource)
		}
	case SourceDescriptor:
		if a.Descriptor == "" {
			return fmt.Errorf("%w: descriptor is required for descriptor sources", ErrMissingSource)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrMissingSource, a.SourceKind)
	}
	return nil
}

// ComposeFile returns the descriptor path relative to the repository root.
func (a *Application) ComposeFile() string {
	if a.ComposePath == "" {
		return DefaultComposeFile
	}
	return a.ComposePath
}

// BeginRun resets run state so a new pipeline can start.
func (a *Application) BeginRun() {
	now := time.Now().UTC()
	a.Status = StatusIdle
	a.Progress = 0
	a.Message = ""
	a.LastRunAt = &now
	a.UpdatedAt = now
}

// Advance moves the run to a later phase and records progress.
func (a *Application) Advance(to AppStatus, progress int, message string) error {
	if err := ValidateTransition(a.Status, to); err != nil {
		return err
	}
	a.Status = to
	if progress > a.Progress {
		a.Progress = min(progress, 100)
	}
	a.Message = message
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail ends the run with an error. The message is kept for observers.
func (a *Application) Fail(message string) {
	a.Status = StatusError
	a.Progress = 0
	a.Message = message
	a.UpdatedAt = time.Now().UTC()
}

// Succeed ends the run successfully.
func (a *Application) Succeed(message string) error {
	if err := ValidateTransition(a.Status, StatusSuccess); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.Status = StatusSuccess
	a.Progress = 100
	a.Message = message
	a.UpdatedAt = now
	a.LastDeployedAt = &now
	return nil
}

// =============================================================================
// State Machine
// =============================================================================

// ValidateTransition checks that a run only moves forward. Error is reachable
// from every active phase; success only after verification.
func ValidateTransition(from, to AppStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == StatusError {
		return nil
	}
	if to == StatusSuccess && from != StatusVerifying {
		return fmt.Errorf("%w: %s -> %s skips verification", ErrInvalidTransition, from, to)
	}

	fromRank, ok := phaseRank[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	toRank, ok := phaseRank[to]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if toRank <= fromRank {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
