package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
)

// RateBuckets persists fixed-window counters in the rate_buckets table so that
// every process sharing the database sees one count per client key.
type RateBuckets struct {
	store *Store
}

var (
	_ ratelimit.CounterStore = (*RateBuckets)(nil)
	_ ratelimit.Inspector    = (*RateBuckets)(nil)
	_ ratelimit.Sweeper      = (*RateBuckets)(nil)
)

// RateBuckets returns the SQL-backed counter store.
func (s *Store) RateBuckets() *RateBuckets {
	return &RateBuckets{store: s}
}

// Hit resets and increments a bucket in one statement.
func (r *RateBuckets) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (core.RateBucket, error) {
	if r == nil || r.store == nil || r.store.DB == nil {
		return core.RateBucket{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nowMs := now.UTC().UnixMilli()
	resetMs := now.UTC().Add(window).UnixMilli()

	var (
		count   int
		resetAt int64
	)
	row := r.store.DB.QueryRowContext(ctx, `
		INSERT INTO rate_buckets (client_key, count, window_reset_at)
		VALUES (?, 1, ?)
		ON CONFLICT(client_key) DO UPDATE SET
			count = CASE
				WHEN ? >= rate_buckets.window_reset_at THEN 1
				WHEN rate_buckets.count <= ? THEN rate_buckets.count + 1
				ELSE rate_buckets.count
			END,
			window_reset_at = CASE
				WHEN ? >= rate_buckets.window_reset_at THEN ?
				ELSE rate_buckets.window_reset_at
			END
		RETURNING count, window_reset_at
	`, key, resetMs, nowMs, max, nowMs, resetMs)
	if err := row.Scan(&count, &resetAt); err != nil {
		return core.RateBucket{}, fmt.Errorf("store rate bucket: %w", err)
	}

	return core.RateBucket{
		ClientKey:     key,
		Count:         count,
		WindowResetAt: time.UnixMilli(resetAt).UTC(),
	}, nil
}

// Sweep deletes buckets whose window ended before the cutoff.
func (r *RateBuckets) Sweep(ctx context.Context, before time.Time) (int, error) {
	if r == nil || r.store == nil || r.store.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := r.store.DB.ExecContext(ctx, `DELETE FROM rate_buckets WHERE window_reset_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep rate buckets: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rate buckets: %w", err)
	}
	return int(affected), nil
}

// List implements ratelimit.Inspector.
func (r *RateBuckets) List(ctx context.Context, prefix string) ([]core.RateBucket, error) {
	return r.store.ListRateBuckets(ctx, prefixQuery(prefix))
}

// Reset implements ratelimit.Inspector.
func (r *RateBuckets) Reset(ctx context.Context, prefix string) (int64, error) {
	return r.store.ResetRateBuckets(ctx, prefixQuery(prefix))
}

func prefixQuery(prefix string) RateBucketQuery {
	if prefix == "" {
		return RateBucketQuery{All: true}
	}
	return RateBucketQuery{Prefix: prefix}
}
