package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minisuite/minisuite/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./minisuite.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./minisuite.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestBuildSQLiteDSN(t *testing.T) {
	t.Run("RejectsURL", func(t *testing.T) {
		_, err := buildSQLiteDSN(config.StoreConfig{URL: "libsql://example.turso.io"})
		require.Error(t, err)
	})

	t.Run("StripsFilePrefix", func(t *testing.T) {
		dir := t.TempDir()
		dsn, err := buildSQLiteDSN(config.StoreConfig{Path: "file:" + filepath.Join(dir, "data", "app.db")})
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "data", "app.db"), dsn)
		require.DirExists(t, filepath.Join(dir, "data"))
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}

func TestOpenSQLiteMemoryStore(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, "sqlite", s.Driver())
	require.Equal(t, 1, s.DB.Stats().MaxOpenConnections)
	require.NoError(t, s.Ping(context.Background()))

	// Migrate is idempotent.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestOpenSQLiteFileStore_ConfiguresWAL(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "minisuite.db")})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var journalMode string
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)
}
