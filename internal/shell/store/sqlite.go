package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite. Records are stored as JSON
// documents next to the columns used for listing.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Application Operations
// =============================================================================

// applicationRow represents an application row in the database.
type applicationRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	SourceKind string `db:"source_kind"`
	Data       string `db:"data"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM applications WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetApplication", "application", id, "application not found", ErrNotFound)
		}
		return nil, NewStoreError("GetApplication", "application", id, err.Error(), err)
	}
	return rowToApplication(row)
}

func (s *SQLiteStore) ListApplications(ctx context.Context) ([]domain.Application, error) {
	var rows []applicationRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM applications ORDER BY id`); err != nil {
		return nil, NewStoreError("ListApplications", "application", "", err.Error(), err)
	}

	apps := make([]domain.Application, 0, len(rows))
	for _, row := range rows {
		app, err := rowToApplication(row)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, nil
}

func (s *SQLiteStore) SaveApplication(ctx context.Context, app *domain.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return NewStoreError("SaveApplication", "application", app.ID, "failed to serialize application", ErrInvalidData)
	}

	row := applicationRow{
		ID:         app.ID,
		Name:       app.Name,
		SourceKind: string(app.SourceKind),
		Data:       string(data),
		CreatedAt:  app.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  app.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO applications (id, name, source_kind, data, created_at, updated_at)
		VALUES (:id, :name, :source_kind, :data, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_kind = excluded.source_kind,
			data = excluded.data,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return NewStoreError("SaveApplication", "application", app.ID, err.Error(), ErrWriteFailed)
	}
	return nil
}

func (s *SQLiteStore) DeleteApplication(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteApplication", "application", id, err.Error(), ErrWriteFailed)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("DeleteApplication", "application", id, "application not found", ErrNotFound)
	}
	return nil
}

func rowToApplication(row applicationRow) (*domain.Application, error) {
	var app domain.Application
	if err := json.Unmarshal([]byte(row.Data), &app); err != nil {
		return nil, NewStoreError("GetApplication", "application", row.ID, "failed to parse stored application", ErrInvalidData)
	}
	return &app, nil
}

// =============================================================================
// Settings Operations
// =============================================================================

func (s *SQLiteStore) GetSettings(ctx context.Context) (domain.Settings, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM settings WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, NewStoreError("GetSettings", "settings", "", err.Error(), err)
	}

	settings := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return domain.DefaultSettings(), nil
	}
	return settings.Normalize(), nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings.Normalize())
	if err != nil {
		return NewStoreError("SaveSettings", "settings", "", "failed to serialize settings", ErrInvalidData)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return NewStoreError("SaveSettings", "settings", "", err.Error(), ErrWriteFailed)
	}
	return nil
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
