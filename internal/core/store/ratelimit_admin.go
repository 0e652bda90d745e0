package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minisuite/minisuite/internal/core"
)

// RateBucketQuery selects buckets for administration.
type RateBucketQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q RateBucketQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

func (q RateBucketQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE client_key = ?", []any{key}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return `WHERE client_key LIKE ? ESCAPE '\'`, []any{escapeLike(prefix) + "%"}, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) ListRateBuckets(ctx context.Context, q RateBucketQuery) ([]core.RateBucket, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT client_key, count, window_reset_at
		FROM rate_buckets
		%s
		ORDER BY client_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate buckets: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	buckets := []core.RateBucket{}
	for rows.Next() {
		var (
			bucket  core.RateBucket
			resetAt int64
		)
		if err := rows.Scan(&bucket.ClientKey, &bucket.Count, &resetAt); err != nil {
			return nil, fmt.Errorf("scan rate buckets: %w", err)
		}
		bucket.WindowResetAt = time.UnixMilli(resetAt).UTC()
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate buckets: %w", err)
	}

	return buckets, nil
}

func (s *Store) CountRateBuckets(ctx context.Context, q RateBucketQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM rate_buckets
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate buckets: %w", err)
	}
	return count, nil
}

func (s *Store) ResetRateBuckets(ctx context.Context, q RateBucketQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM rate_buckets
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate buckets: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate buckets: %w", err)
	}
	return affected, nil
}
