package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minisuite/minisuite/internal/core/ratelimit"
)

func TestRateBucketsFixedWindow(t *testing.T) {
	ctx := context.Background()
	buckets := openTestStore(t).RateBuckets()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(buckets, time.Minute, 2)
	limiter.Clock = func() time.Time { return now }

	first, err := limiter.Take(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Equal(t, 1, first.Remaining)
	require.Equal(t, now.Add(time.Minute), first.ResetAt)

	now = now.Add(10 * time.Second)
	second, err := limiter.Take(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, second.Allowed)
	require.Equal(t, 0, second.Remaining)

	now = now.Add(10 * time.Second)
	for i := 0; i < 3; i++ {
		denied, err := limiter.Take(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.False(t, denied.Allowed)
		require.Equal(t, 0, denied.Remaining)
		require.Equal(t, 3, denied.Count)
		require.Equal(t, first.ResetAt, denied.ResetAt)
	}

	now = first.ResetAt
	reset, err := limiter.Take(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, reset.Allowed)
	require.Equal(t, 1, reset.Count)
	require.Equal(t, now.Add(time.Minute), reset.ResetAt)
}

func TestRateBucketsConcurrentHits(t *testing.T) {
	ctx := context.Background()
	buckets := openTestStore(t).RateBuckets()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := buckets.Hit(ctx, "shared", now, time.Minute, 1000)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := buckets.List(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 20, entries[0].Count)
}

func TestRateBucketsAdmin(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	buckets := s.RateBuckets()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		_, err := buckets.Hit(ctx, fmt.Sprintf("10.0.0.%d", i), now, time.Minute, 10)
		require.NoError(t, err)
	}
	_, err := buckets.Hit(ctx, "10_0_0_9", now, time.Minute, 10)
	require.NoError(t, err)

	require.Error(t, RateBucketQuery{}.Validate())

	count, err := s.CountRateBuckets(ctx, RateBucketQuery{Prefix: "10."})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	exact, err := s.ListRateBuckets(ctx, RateBucketQuery{Key: "10.0.0.2"})
	require.NoError(t, err)
	require.Len(t, exact, 1)

	listed, err := buckets.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, listed, 4)
	require.Equal(t, "10.0.0.1", listed[0].ClientKey)

	deleted, err := buckets.Reset(ctx, "10.")
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)

	remaining, err := s.CountRateBuckets(ctx, RateBucketQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
}

func TestRateBucketsSweep(t *testing.T) {
	ctx := context.Background()
	buckets := openTestStore(t).RateBuckets()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := buckets.Hit(ctx, "old", now, time.Minute, 10)
	require.NoError(t, err)
	_, err = buckets.Hit(ctx, "fresh", now.Add(5*time.Minute), time.Minute, 10)
	require.NoError(t, err)

	removed, err := buckets.Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	left, err := buckets.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "fresh", left[0].ClientKey)
}
