package ratelimit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minisuite/minisuite/internal/core"
)

// MemoryStore is a process-local CounterStore guarded by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*core.RateBucket
}

var (
	_ CounterStore = (*MemoryStore)(nil)
	_ Inspector    = (*MemoryStore)(nil)
	_ Sweeper      = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*core.RateBucket)}
}

// Hit implements CounterStore.
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, max int) (core.RateBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &core.RateBucket{ClientKey: key}
		s.buckets[key] = b
	}
	*b = nextBucket(*b, now, window, max)
	return *b, nil
}

// Get returns a copy of the bucket for key.
func (s *MemoryStore) Get(key string) (core.RateBucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		return core.RateBucket{}, false
	}
	return *b, true
}

// Len reports how many buckets are tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// List implements Inspector.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]core.RateBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.RateBucket, 0, len(s.buckets))
	for key, b := range s.buckets {
		if strings.HasPrefix(key, prefix) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientKey < out[j].ClientKey })
	return out, nil
}

// Reset implements Inspector.
func (s *MemoryStore) Reset(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key := range s.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed, nil
}

// Sweep implements Sweeper.
func (s *MemoryStore) Sweep(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if b.WindowResetAt.Before(before) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed, nil
}
