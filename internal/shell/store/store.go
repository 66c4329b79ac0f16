package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for applications and settings.
// Writes replace whole records; the last writer wins.
type Store interface {
	// Application operations
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	ListApplications(ctx context.Context) ([]domain.Application, error)
	SaveApplication(ctx context.Context, app *domain.Application) error
	DeleteApplication(ctx context.Context, id string) error

	// Settings operations. A missing or unreadable record yields defaults.
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Drivers
// =============================================================================

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open creates a store for the named driver. For the json driver, location
// is a directory; for sqlite, a database file or ":memory:".
func Open(driver, location string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "", DriverJSON:
		return NewJSONStore(location, logger)
	case DriverSQLite:
		if location != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
				return nil, NewStoreError("Open", "", "", err.Error(), ErrConnectionFailed)
			}
		}
		return NewSQLiteStore(location)
	}
	return nil, NewStoreError("Open", "", "", "driver "+driver+" is not supported", ErrUnknownDriver)
}
