package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minisuite/minisuite/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(window time.Duration, max int) (*Limiter, *MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	limiter := New(store, window, max)
	limiter.Clock = clock.Now
	return limiter, store, clock
}

func TestLimiterScenarioTwoPerMinute(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter(time.Minute, 2)

	first, err := limiter.Take(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Equal(t, 1, first.Remaining)
	require.Equal(t, 2, first.Limit)

	clock.Advance(10 * time.Second)
	second, err := limiter.Take(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, second.Allowed)
	require.Equal(t, 0, second.Remaining)

	clock.Advance(10 * time.Second)
	third, err := limiter.Take(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, third.Allowed)
	require.Equal(t, 0, third.Remaining)
	require.Equal(t, first.ResetAt, third.ResetAt)
	require.Equal(t, 40*time.Second, third.RetryAfter(clock.Now()))
}

func TestLimiterCountSaturatesAtMaxPlusOne(t *testing.T) {
	ctx := context.Background()
	limiter, store, _ := newTestLimiter(time.Minute, 3)

	for i := 0; i < 10; i++ {
		decision, err := limiter.Take(ctx, "client")
		require.NoError(t, err)
		require.Equal(t, i < 3, decision.Allowed, "request %d", i+1)
	}

	bucket, ok := store.Get("client")
	require.True(t, ok)
	require.Equal(t, 4, bucket.Count)
}

func TestLimiterWindowReset(t *testing.T) {
	ctx := context.Background()
	limiter, store, clock := newTestLimiter(time.Minute, 1)

	start := clock.Now()
	_, err := limiter.Take(ctx, "k")
	require.NoError(t, err)
	denied, err := limiter.Take(ctx, "k")
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	clock.Advance(time.Minute + time.Second)
	decision, err := limiter.Take(ctx, "k")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Count)
	require.Equal(t, clock.Now().Add(time.Minute), decision.ResetAt)

	bucket, _ := store.Get("k")
	require.Equal(t, 1, bucket.Count)
	require.True(t, bucket.WindowResetAt.After(start.Add(time.Minute)))
}

func TestLimiterResetsExactlyAtBoundary(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter(time.Minute, 1)

	_, err := limiter.Take(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	decision, err := limiter.Take(ctx, "k")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 1, decision.Count)
}

func TestLimiterRemainingNeverIncreasesWithinWindow(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter(time.Minute, 5)

	last := 5
	for i := 0; i < 12; i++ {
		decision, err := limiter.Take(ctx, "k")
		require.NoError(t, err)
		require.GreaterOrEqual(t, decision.Remaining, 0)
		require.LessOrEqual(t, decision.Remaining, last)
		last = decision.Remaining
		clock.Advance(time.Second)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, store, _ := newTestLimiter(time.Minute, 1)

	a, err := limiter.Take(ctx, "a")
	require.NoError(t, err)
	b, err := limiter.Take(ctx, "b")
	require.NoError(t, err)
	require.True(t, a.Allowed)
	require.True(t, b.Allowed)
	require.Equal(t, 2, store.Len())
}

func TestLimiterBlankKeyUsesUnknown(t *testing.T) {
	limiter, store, _ := newTestLimiter(time.Minute, 1)

	decision, err := limiter.Take(context.Background(), "  ")
	require.NoError(t, err)
	require.Equal(t, UnknownClientKey, decision.Key)
	_, ok := store.Get(UnknownClientKey)
	require.True(t, ok)
}

func TestLimiterConcurrentHitsAreCounted(t *testing.T) {
	ctx := context.Background()
	limiter, store, _ := newTestLimiter(time.Minute, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = limiter.Take(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	bucket, ok := store.Get("shared")
	require.True(t, ok)
	require.Equal(t, 500, bucket.Count)
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Time, time.Duration, int) (core.RateBucket, error) {
	return core.RateBucket{}, errors.New("backend down")
}

func TestLimiterPropagatesStoreErrors(t *testing.T) {
	limiter := New(failingStore{}, time.Minute, 1)
	_, err := limiter.Take(context.Background(), "k")
	require.Error(t, err)

	var nilLimiter *Limiter
	_, err = nilLimiter.Take(context.Background(), "k")
	require.Error(t, err)
}

func TestMemoryStoreSweepAndReset(t *testing.T) {
	ctx := context.Background()
	limiter, store, clock := newTestLimiter(time.Minute, 10)

	_, _ = limiter.Take(ctx, "10.0.0.1")
	_, _ = limiter.Take(ctx, "10.0.0.2")
	clock.Advance(2 * time.Minute)
	_, _ = limiter.Take(ctx, "192.168.1.1")

	removed, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, 1, store.Len())

	buckets, err := store.List(ctx, "192.")
	require.NoError(t, err)
	require.Len(t, buckets, 1)

	deleted, err := store.Reset(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	require.Equal(t, 0, store.Len())
}

func TestJanitorRunOnceHonorsGrace(t *testing.T) {
	ctx := context.Background()
	limiter, store, clock := newTestLimiter(time.Minute, 10)
	_, _ = limiter.Take(ctx, "k")

	var swept int
	janitor := &Janitor{
		Sweeper: store,
		Grace:   5 * time.Minute,
		Clock:   clock.Now,
		OnSweep: func(removed int, err error) { swept += removed },
	}

	clock.Advance(3 * time.Minute)
	removed, err := janitor.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)

	clock.Advance(5 * time.Minute)
	removed, err = janitor.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, swept)
}
