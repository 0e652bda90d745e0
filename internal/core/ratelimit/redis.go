package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minisuite/minisuite/internal/core"
)

// DefaultRedisPrefix namespaces bucket keys in Redis.
const DefaultRedisPrefix = "minisuite:ratelimit"

// hitScript resets and increments one bucket hash in a single server-side step.
// KEYS[1] bucket key; ARGV now_ms, window_ms, max. Returns {count, reset_ms}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset') or '0')
if reset == 0 or now >= reset then
  count = 0
  reset = now + window
end
if count <= max then
  count = count + 1
end
redis.call('HSET', KEYS[1], 'count', tostring(count), 'reset', tostring(reset))
redis.call('PEXPIRE', KEYS[1], reset - now)
return {count, reset}
`)

// RedisStore keeps buckets in Redis so several instances share one count.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ CounterStore = (*RedisStore)(nil)
	_ Inspector    = (*RedisStore)(nil)
)

// RedisConfig configures a RedisStore connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit implements CounterStore.
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (core.RateBucket, error) {
	values, err := hitScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return core.RateBucket{}, fmt.Errorf("redis rate limit hit: %w", err)
	}
	if len(values) != 2 {
		return core.RateBucket{}, fmt.Errorf("redis rate limit hit: unexpected reply length %d", len(values))
	}

	return core.RateBucket{
		ClientKey:     key,
		Count:         int(values[0]),
		WindowResetAt: time.UnixMilli(values[1]).UTC(),
	}, nil
}

// List implements Inspector.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]core.RateBucket, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}

	buckets := make([]core.RateBucket, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read rate limit bucket: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		count, _ := strconv.Atoi(fields["count"])
		reset, _ := strconv.ParseInt(fields["reset"], 10, 64)
		buckets = append(buckets, core.RateBucket{
			ClientKey:     strings.TrimPrefix(key, s.prefix+":"),
			Count:         count,
			WindowResetAt: time.UnixMilli(reset).UTC(),
		})
	}
	return buckets, nil
}

// Reset implements Inspector.
func (s *RedisStore) Reset(ctx context.Context, prefix string) (int64, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("reset rate limit buckets: %w", err)
	}
	return deleted, nil
}

// Ping checks connectivity, used by health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) key(clientKey string) string {
	return s.prefix + ":" + clientKey
}

func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	pattern := s.prefix + ":" + escapeGlob(prefix) + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan rate limit buckets: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}
