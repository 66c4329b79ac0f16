package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

// drivers runs each test against both implementations.
func drivers(t *testing.T) map[string]Store {
	t.Helper()
	jsonStore, err := NewJSONStore(t.TempDir(), nil)
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		sqliteStore.Close()
	})

	return map[string]Store{DriverJSON: jsonStore, DriverSQLite: sqliteStore}
}

func newTestApp(t *testing.T, id string) *domain.Application {
	t.Helper()
	app, err := domain.NewApplication(id, "App "+id, domain.SourceRepository)
	require.NoError(t, err)
	app.RepoURL = "https://github.com/example/" + id
	app.Branch = "main"
	app.AutoUpdate = true
	return app
}

// =============================================================================
// Application Tests
// =============================================================================

func TestStore_ApplicationRoundTrip(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			app := newTestApp(t, "jellyfin")
			app.Status = domain.StatusSuccess
			app.Progress = 100
			app.IsInstalled = true
			deployed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			app.LastDeployedAt = &deployed

			require.NoError(t, s.SaveApplication(ctx, app))

			got, err := s.GetApplication(ctx, "jellyfin")
			require.NoError(t, err)
			assert.Equal(t, app.RepoURL, got.RepoURL)
			assert.Equal(t, domain.StatusSuccess, got.Status)
			assert.Equal(t, 100, got.Progress)
			assert.True(t, got.IsInstalled)
			require.NotNil(t, got.LastDeployedAt)
			assert.True(t, deployed.Equal(*got.LastDeployedAt))
		})
	}
}

func TestStore_SaveIsLastWriterWins(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			app := newTestApp(t, "immich")
			require.NoError(t, s.SaveApplication(ctx, app))

			app.Message = "second"
			app.Progress = 45
			require.NoError(t, s.SaveApplication(ctx, app))

			got, err := s.GetApplication(ctx, "immich")
			require.NoError(t, err)
			assert.Equal(t, "second", got.Message)
			assert.Equal(t, 45, got.Progress)

			all, err := s.ListApplications(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_ListSortedAndDelete(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"zeta", "alpha", "mid"} {
				require.NoError(t, s.SaveApplication(ctx, newTestApp(t, id)))
			}

			all, err := s.ListApplications(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "alpha", all[0].ID)
			assert.Equal(t, "zeta", all[2].ID)

			require.NoError(t, s.DeleteApplication(ctx, "mid"))
			assert.ErrorIs(t, s.DeleteApplication(ctx, "mid"), ErrNotFound)

			_, err = s.GetApplication(ctx, "mid")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetApplication(context.Background(), "nothing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// =============================================================================
// Settings Tests
// =============================================================================

func TestStore_SettingsDefaultsThenSaved(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.GetSettings(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.DefaultSettings(), got)

			want := domain.Settings{ConcurrencyLimit: 3, PUID: "1001", PGID: "1002", RefDomain: "example.com", RefScheme: "https"}
			require.NoError(t, s.SaveSettings(ctx, want))

			got, err = s.GetSettings(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, got.ConcurrencyLimit)
			assert.Equal(t, "example.com", got.RefDomain)
			assert.Equal(t, "-", got.RefSeparator)
		})
	}
}

// =============================================================================
// JSON Driver Specifics
// =============================================================================

func TestJSONStore_CorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFileName), []byte("{not json"), 0o644))
	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)

	require.NoError(t, s.SaveApplication(ctx, newTestApp(t, "good")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, appsDirName, "bad.json"), []byte("]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, appsDirName, "notes.txt"), []byte("x"), 0o644))

	all, err := s.ListApplications(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)

	_, err = s.GetApplication(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestJSONStore_RejectsPathLikeIDs(t *testing.T) {
	s, err := NewJSONStore(t.TempDir(), nil)
	require.NoError(t, err)

	app := newTestApp(t, "ok")
	app.ID = "../escape"
	assert.ErrorIs(t, s.SaveApplication(context.Background(), app), ErrInvalidData)

	_, err = s.GetApplication(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.yml")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpen(t *testing.T) {
	s, err := Open("", t.TempDir(), nil)
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = Open(DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("postgres", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
