package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// JSONStore
// =============================================================================

const (
	appsDirName      = "apps"
	settingsFileName = "settings.json"
)

// JSONStore implements Store with one JSON file per record:
//
//	{dir}/apps/{id}.json
//	{dir}/settings.json
//
// Files are replaced atomically through a rename.
type JSONStore struct {
	dir    string
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewJSONStore creates the directory layout and returns a store rooted at dir.
func NewJSONStore(dir string, logger *slog.Logger) (*JSONStore, error) {
	if dir == "" {
		return nil, NewStoreError("NewJSONStore", "", "", "directory cannot be empty", ErrConnectionFailed)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, appsDirName), 0o755); err != nil {
		return nil, NewStoreError("NewJSONStore", "", "", err.Error(), ErrConnectionFailed)
	}
	return &JSONStore{dir: dir, logger: logger.With("component", "store")}, nil
}

// Close is a no-op; every write is already durable.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) appPath(id string) string {
	return filepath.Join(s.dir, appsDirName, id+".json")
}

// =============================================================================
// Application Operations
// =============================================================================

func (s *JSONStore) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	if err := domain.ValidateAppID(id); err != nil {
		return nil, NewStoreError("GetApplication", "application", id, "application not found", ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readApplication(id)
}

func (s *JSONStore) readApplication(id string) (*domain.Application, error) {
	data, err := os.ReadFile(s.appPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewStoreError("GetApplication", "application", id, "application not found", ErrNotFound)
		}
		return nil, NewStoreError("GetApplication", "application", id, err.Error(), err)
	}
	var app domain.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, NewStoreError("GetApplication", "application", id, "failed to parse stored application", ErrInvalidData)
	}
	return &app, nil
}

// ListApplications returns every readable application sorted by id.
// Unreadable files are skipped and logged.
func (s *JSONStore) ListApplications(ctx context.Context) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, appsDirName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Application{}, nil
		}
		return nil, NewStoreError("ListApplications", "application", "", err.Error(), err)
	}

	apps := make([]domain.Application, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		app, err := s.readApplication(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable application record", "file", name, "error", err)
			continue
		}
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps, nil
}

func (s *JSONStore) SaveApplication(ctx context.Context, app *domain.Application) error {
	if err := domain.ValidateAppID(app.ID); err != nil {
		return NewStoreError("SaveApplication", "application", app.ID, err.Error(), ErrInvalidData)
	}
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return NewStoreError("SaveApplication", "application", app.ID, "failed to serialize application", ErrInvalidData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteFileAtomic(s.appPath(app.ID), data, 0o644); err != nil {
		return NewStoreError("SaveApplication", "application", app.ID, err.Error(), ErrWriteFailed)
	}
	return nil
}

func (s *JSONStore) DeleteApplication(ctx context.Context, id string) error {
	if err := domain.ValidateAppID(id); err != nil {
		return NewStoreError("DeleteApplication", "application", id, "application not found", ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.appPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewStoreError("DeleteApplication", "application", id, "application not found", ErrNotFound)
		}
		return NewStoreError("DeleteApplication", "application", id, err.Error(), ErrWriteFailed)
	}
	return nil
}

// =============================================================================
// Settings Operations
// =============================================================================

// GetSettings returns the stored settings. A missing or corrupt file yields
// defaults.
func (s *JSONStore) GetSettings(ctx context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, settingsFileName))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("settings unreadable, using defaults", "error", err)
		}
		return domain.DefaultSettings(), nil
	}

	settings := domain.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("settings corrupt, using defaults", "error", err)
		return domain.DefaultSettings(), nil
	}
	return settings.Normalize(), nil
}

func (s *JSONStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	data, err := json.MarshalIndent(settings.Normalize(), "", "  ")
	if err != nil {
		return NewStoreError("SaveSettings", "settings", "", "failed to serialize settings", ErrInvalidData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteFileAtomic(filepath.Join(s.dir, settingsFileName), data, 0o644); err != nil {
		return NewStoreError("SaveSettings", "settings", "", err.Error(), ErrWriteFailed)
	}
	return nil
}

// =============================================================================
// Atomic Writes
// =============================================================================

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over path, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Compile-time check that JSONStore implements Store.
var _ Store = (*JSONStore)(nil)
