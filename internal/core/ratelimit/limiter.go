package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/minisuite/minisuite/internal/core"
)

// Defaults applied when a Limiter is built without explicit values.
const (
	DefaultWindow = time.Minute
	DefaultMax    = 100
)

// UnknownClientKey is shared by every request that carries no forwarding header.
const UnknownClientKey = "unknown"

// CounterStore holds one fixed-window bucket per client key.
//
// Hit must be atomic with respect to concurrent calls for the same key: it resets the
// bucket when now >= WindowResetAt (new reset time now+window), increments the count
// while it is <= max and returns the resulting bucket.
type CounterStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (core.RateBucket, error)
}

// Inspector exposes stored buckets for administration.
type Inspector interface {
	List(ctx context.Context, prefix string) ([]core.RateBucket, error)
	Reset(ctx context.Context, prefix string) (int64, error)
}

// Sweeper drops buckets whose window ended before the cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// Limiter applies the fixed-window policy on top of a CounterStore.
type Limiter struct {
	Store  CounterStore
	Window time.Duration
	Max    int
	Clock  func() time.Time
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed   bool
	Key       string
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the time left until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// New builds a limiter over store with the given window and per-window maximum.
func New(store CounterStore, window time.Duration, max int) *Limiter {
	return &Limiter{Store: store, Window: window, Max: max}
}

// Take records one request for key and reports whether it is within the limit.
func (l *Limiter) Take(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.Store == nil {
		return Decision{}, errors.New("rate limiter is not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		key = UnknownClientKey
	}

	window := l.window()
	max := l.max()

	bucket, err := l.Store.Hit(ctx, key, l.Now(), window, max)
	if err != nil {
		return Decision{}, err
	}

	remaining := max - bucket.Count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   bucket.Count <= max,
		Key:       key,
		Count:     bucket.Count,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   bucket.WindowResetAt,
	}, nil
}

func (l *Limiter) window() time.Duration {
	if l.Window <= 0 {
		return DefaultWindow
	}
	return l.Window
}

func (l *Limiter) max() int {
	if l.Max < 0 {
		return DefaultMax
	}
	return l.Max
}

// Now returns the limiter clock reading.
func (l *Limiter) Now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

// nextBucket applies the window reset and saturating increment to a bucket snapshot.
func nextBucket(b core.RateBucket, now time.Time, window time.Duration, max int) core.RateBucket {
	if b.WindowResetAt.IsZero() || !now.Before(b.WindowResetAt) {
		b.Count = 0
		b.WindowResetAt = now.Add(window)
	}
	if b.Count <= max {
		b.Count++
	}
	return b
}
