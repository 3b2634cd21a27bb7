package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter keys in a shared Redis.
const DefaultPrefix = "chapterquiz:ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key is within quota.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// INCR the window counter, arm its expiry on first hit, return count and
// remaining ttl.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisFixedWindow limits requests per key in fixed windows shared across
// replicas through Redis.
type RedisFixedWindow struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisFixedWindow builds a limiter on an existing client.
func NewRedisFixedWindow(client *redis.Client, prefix string, limit int, window time.Duration) (*RedisFixedWindow, error) {
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisFixedWindow{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}, nil
}

// Allow fails closed when Redis is unreachable.
func (l *RedisFixedWindow) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{RetryAfter: time.Minute}
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(res) != 2 {
		return Decision{RetryAfter: l.window}
	}
	if res[0] <= int64(l.limit) {
		return Decision{Allowed: true}
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return Decision{RetryAfter: retry}
}

// MemoryFixedWindow is the single-process limiter used when no Redis is
// configured.
type MemoryFixedWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*bucket
}

type bucket struct {
	slot  int64
	count int
}

// NewMemoryFixedWindow builds an in-process limiter.
func NewMemoryFixedWindow(limit int, window time.Duration) (*MemoryFixedWindow, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &MemoryFixedWindow{limit: limit, window: window, now: time.Now, buckets: map[string]*bucket{}}, nil
}

func (l *MemoryFixedWindow) Allow(_ context.Context, key string) Decision {
	now := l.now().UTC()
	windowMs := l.window.Milliseconds()
	slot := now.UnixMilli() / windowMs
	key = normalizeKey(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok || b.slot != slot {
		// Drop stale buckets lazily so the map tracks active keys only.
		for k, old := range l.buckets {
			if old.slot < slot {
				delete(l.buckets, k)
			}
		}
		b = &bucket{slot: slot}
		l.buckets[key] = b
	}
	b.count++
	if b.count <= l.limit {
		return Decision{Allowed: true}
	}
	next := time.UnixMilli((slot + 1) * windowMs)
	return Decision{RetryAfter: next.Sub(now)}
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
