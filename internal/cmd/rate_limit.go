package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/core/store"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset persisted rate limit buckets",
	Long: `Inspect and reset rate limit buckets kept by the sql or redis backend.

The memory backend keeps buckets inside the server process; use
GET /api/admin/rate-limits against a running server instead.`,
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

// bucketAdmin is the administrative view over a persisted backend.
type bucketAdmin interface {
	List(ctx context.Context, q store.RateBucketQuery) ([]core.RateBucket, error)
	Count(ctx context.Context, q store.RateBucketQuery) (int, error)
	Reset(ctx context.Context, q store.RateBucketQuery) (int64, error)
	Close() error
}

type sqlBucketAdmin struct {
	db *store.Store
}

func (a sqlBucketAdmin) List(ctx context.Context, q store.RateBucketQuery) ([]core.RateBucket, error) {
	return a.db.ListRateBuckets(ctx, q)
}

func (a sqlBucketAdmin) Count(ctx context.Context, q store.RateBucketQuery) (int, error) {
	return a.db.CountRateBuckets(ctx, q)
}

func (a sqlBucketAdmin) Reset(ctx context.Context, q store.RateBucketQuery) (int64, error) {
	return a.db.ResetRateBuckets(ctx, q)
}

func (a sqlBucketAdmin) Close() error { return a.db.Close() }

// inspectorBucketAdmin adapts a prefix-only Inspector such as the redis store.
type inspectorBucketAdmin struct {
	inspector ratelimit.Inspector
	close     func() error
}

func (a inspectorBucketAdmin) prefix(q store.RateBucketQuery) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(q.Key) != "" {
		return strings.TrimSpace(q.Key), nil
	}
	if q.All {
		return "", nil
	}
	return strings.TrimSpace(q.Prefix), nil
}

func (a inspectorBucketAdmin) List(ctx context.Context, q store.RateBucketQuery) ([]core.RateBucket, error) {
	prefix, err := a.prefix(q)
	if err != nil {
		return nil, err
	}
	buckets, err := a.inspector.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return filterExactKey(buckets, q.Key), nil
}

func (a inspectorBucketAdmin) Count(ctx context.Context, q store.RateBucketQuery) (int, error) {
	buckets, err := a.List(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(buckets), nil
}

func (a inspectorBucketAdmin) Reset(ctx context.Context, q store.RateBucketQuery) (int64, error) {
	if strings.TrimSpace(q.Key) != "" {
		return 0, errors.New("--key is not supported by this backend; use --prefix")
	}
	prefix, err := a.prefix(q)
	if err != nil {
		return 0, err
	}
	return a.inspector.Reset(ctx, prefix)
}

func (a inspectorBucketAdmin) Close() error { return a.close() }

func filterExactKey(buckets []core.RateBucket, key string) []core.RateBucket {
	key = strings.TrimSpace(key)
	if key == "" {
		return buckets
	}
	out := buckets[:0]
	for _, b := range buckets {
		if b.ClientKey == key {
			out = append(out, b)
		}
	}
	return out
}

// openBucketAdmin opens the persisted backend selected by configuration.
func openBucketAdmin(ctx context.Context) (bucketAdmin, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	switch cfg.RateLimit.Backend {
	case "sql":
		db, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return sqlBucketAdmin{db: db}, nil
	case "redis":
		backend, err := openRateLimitBackend(ctx, cfg, nil)
		if err != nil {
			return nil, err
		}
		return inspectorBucketAdmin{inspector: backend.inspector, close: backend.close}, nil
	default:
		return nil, fmt.Errorf("rate_limit.backend %q keeps no persisted state", cfg.RateLimit.Backend)
	}
}
