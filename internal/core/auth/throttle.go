package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limits login attempts per identifier with a token bucket, independent of
// the per-IP request limiter.
type Throttle struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	clock   func() time.Time
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewThrottle allows burst attempts at once, refilled at one attempt per interval.
func NewThrottle(burst int, interval time.Duration) *Throttle {
	if burst <= 0 {
		burst = 5
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Throttle{
		entries: make(map[string]*throttleEntry),
		limit:   rate.Every(interval),
		burst:   burst,
		idleTTL: 30 * time.Minute,
		clock:   time.Now,
	}
}

// Allow consumes one attempt for id.
func (t *Throttle) Allow(id string) bool {
	if t == nil {
		return true
	}
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entries[id]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(t.limit, t.burst)}
		t.entries[id] = ent
	}
	ent.lastSeen = now
	return ent.lim.AllowN(now, 1)
}

// Reset forgets id, called after a successful login.
func (t *Throttle) Reset(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Cleanup drops entries idle for longer than the idle TTL and returns how many were removed.
func (t *Throttle) Cleanup() int {
	if t == nil {
		return 0
	}
	cutoff := t.clock().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports how many identifiers are tracked.
func (t *Throttle) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Start runs Cleanup every interval until ctx is cancelled.
func (t *Throttle) Start(ctx context.Context, every time.Duration) {
	if t == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Cleanup()
			}
		}
	}()
}
