package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/config"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/core/store"
	"github.com/minisuite/minisuite/internal/metrics"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/server/handlers"
)

// rateLimitBackend is the counter storage chosen by rate_limit.backend.
type rateLimitBackend struct {
	name      string
	counters  ratelimit.CounterStore
	inspector ratelimit.Inspector
	// sweeper is nil when the backend expires buckets itself.
	sweeper ratelimit.Sweeper
	health  handlers.HealthChecker
	close   func() error
}

// openRateLimitBackend builds the configured backend. db is required for "sql".
func openRateLimitBackend(ctx context.Context, cfg *config.Config, db *store.Store) (*rateLimitBackend, error) {
	switch cfg.RateLimit.Backend {
	case "", "memory":
		mem := ratelimit.NewMemoryStore()
		return &rateLimitBackend{
			name:      "memory",
			counters:  mem,
			inspector: mem,
			sweeper:   mem,
			close:     func() error { return nil },
		}, nil

	case "sql":
		if db == nil {
			return nil, fmt.Errorf("sql rate limit backend requires a store")
		}
		buckets := db.RateBuckets()
		return &rateLimitBackend{
			name:      "sql",
			counters:  buckets,
			inspector: buckets,
			sweeper:   buckets,
			close:     func() error { return nil },
		}, nil

	case "redis":
		rs, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return &rateLimitBackend{
			name:      "redis",
			counters:  rs,
			inspector: rs,
			health:    handlers.CheckerFunc(rs.Ping),
			close:     rs.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
}

// janitor returns the sweep loop for backends that need one.
func (b *rateLimitBackend) janitor(cfg config.RateLimitConfig) *ratelimit.Janitor {
	if b.sweeper == nil {
		return nil
	}
	name := b.name
	return &ratelimit.Janitor{
		Sweeper:  b.sweeper,
		Interval: cfg.SweepInterval,
		Grace:    cfg.Grace,
		OnSweep: func(removed int, err error) {
			metrics.RecordBucketsSwept(name, removed)
			if err != nil && observability.ServerLogger != nil {
				observability.ServerLogger.Warn("Rate limit sweep failed",
					zap.String("backend", name), zap.Error(err))
			}
		},
	}
}
