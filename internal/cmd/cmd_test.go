package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minisuite/minisuite/internal/config"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/core/store"
	"github.com/minisuite/minisuite/internal/output"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, config.StoreConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRateLimitBackendMemory(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Backend: "memory", SweepInterval: time.Minute}}

	backend, err := openRateLimitBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.name)
	assert.NotNil(t, backend.janitor(cfg.RateLimit))
	assert.Nil(t, backend.health)
	require.NoError(t, backend.close())
}

func TestOpenRateLimitBackendSQL(t *testing.T) {
	db := testStore(t)
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Backend: "sql"}}

	backend, err := openRateLimitBackend(context.Background(), cfg, db)
	require.NoError(t, err)

	limiter := ratelimit.New(backend.counters, time.Minute, 2)
	_, err = limiter.Take(context.Background(), "198.51.100.1")
	require.NoError(t, err)

	buckets, err := backend.inspector.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "198.51.100.1", buckets[0].ClientKey)

	_, err = openRateLimitBackend(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestOpenRateLimitBackendRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{Backend: "redis"},
		Redis:     config.RedisConfig{Addr: mr.Addr(), Prefix: "test:rl"},
	}

	backend, err := openRateLimitBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer backend.close() // nolint:errcheck

	assert.Equal(t, "redis", backend.name)
	assert.Nil(t, backend.janitor(cfg.RateLimit), "redis expires keys itself")
	require.NotNil(t, backend.health)
	require.NoError(t, backend.health.CheckHealth(context.Background()))
}

func TestOpenRateLimitBackendUnknown(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Backend: "memcached"}}
	_, err := openRateLimitBackend(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBucketAdmins(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	mem := ratelimit.NewMemoryStore()

	admins := map[string]bucketAdmin{
		"sql":       sqlBucketAdmin{db: db},
		"inspector": inspectorBucketAdmin{inspector: mem, close: func() error { return nil }},
	}
	counters := map[string]ratelimit.CounterStore{
		"sql":       db.RateBuckets(),
		"inspector": mem,
	}

	for name, admin := range admins {
		t.Run(name, func(t *testing.T) {
			limiter := ratelimit.New(counters[name], time.Minute, 5)
			for _, key := range []string{"10.0.0.1", "10.0.0.2", "192.0.2.9"} {
				_, err := limiter.Take(ctx, key)
				require.NoError(t, err)
			}

			all, err := admin.List(ctx, store.RateBucketQuery{All: true})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			matched, err := admin.Count(ctx, store.RateBucketQuery{Prefix: "10.0."})
			require.NoError(t, err)
			assert.Equal(t, 2, matched)

			exact, err := admin.List(ctx, store.RateBucketQuery{Key: "10.0.0.1"})
			require.NoError(t, err)
			require.Len(t, exact, 1)

			deleted, err := admin.Reset(ctx, store.RateBucketQuery{Prefix: "10.0."})
			require.NoError(t, err)
			assert.EqualValues(t, 2, deleted)

			left, err := admin.List(ctx, store.RateBucketQuery{All: true})
			require.NoError(t, err)
			require.Len(t, left, 1)
			assert.Equal(t, "192.0.2.9", left[0].ClientKey)

			_, err = admin.List(ctx, store.RateBucketQuery{})
			require.Error(t, err, "empty query must be rejected")
		})
	}
}

func TestWriteRateLimitResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRateLimitResetResult(output.FormatJSON, &buf, 3, 2, false))

	var result rateLimitResetResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, rateLimitResetResult{Matched: 3, Deleted: 2}, result)

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, 4, 0, true))
	assert.Equal(t, "Would delete 4 rate limit bucket(s)\n", buf.String())
}

func TestServeOverrides(t *testing.T) {
	serverHost, serverPort = "", 0
	assert.Nil(t, serveOverrides())

	serverHost, serverPort = "0.0.0.0", 9000
	t.Cleanup(func() { serverHost, serverPort = "", 0 })
	assert.Equal(t, map[string]any{"server": map[string]any{"host": "0.0.0.0", "port": 9000}}, serveOverrides())
}

func TestLoadDotenv(t *testing.T) {
	require.NoError(t, loadDotenv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MINISUITE_DOTENV_PROBE=from-file\nMINISUITE_DOTENV_KEEP=from-file\n"), 0o600))

	t.Setenv("MINISUITE_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("MINISUITE_DOTENV_PROBE"))
	t.Setenv("MINISUITE_DOTENV_KEEP", "from-env")

	require.NoError(t, loadDotenv(path))
	assert.Equal(t, "from-file", os.Getenv("MINISUITE_DOTENV_PROBE"))
	assert.Equal(t, "from-env", os.Getenv("MINISUITE_DOTENV_KEEP"))
}

func TestResolveOutPath(t *testing.T) {
	_, err := resolveOutPath("a.json", "dir", "x", output.FormatJSON)
	require.Error(t, err)

	dir := t.TempDir()
	path, err := resolveOutPath("", dir, "users.list", output.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users.list.yaml"), path)
}
