package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisFixedWindow(t *testing.T) {
	_, client := newRedisClient(t)
	limiter, err := NewRedisFixedWindow(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	if !limiter.Allow(ctx, "/api/auth/login|ip-1").Allowed {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow(ctx, "/api/auth/login|ip-1").Allowed {
		t.Fatalf("second request should pass")
	}
	d := limiter.Allow(ctx, "/api/auth/login|ip-1")
	if d.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v", d.RetryAfter)
	}
	if !limiter.Allow(ctx, "/api/auth/login|ip-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestRedisFixedWindowFailClosed(t *testing.T) {
	mr, client := newRedisClient(t)
	limiter, err := NewRedisFixedWindow(client, "", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow(context.Background(), "ip-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestRedisFixedWindowRequiresClient(t *testing.T) {
	limiter, err := NewRedisFixedWindow(nil, "", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}

func TestMemoryFixedWindowResetsOnNextWindow(t *testing.T) {
	limiter, err := NewMemoryFixedWindow(1, time.Minute)
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if !limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("first request should pass")
	}
	d := limiter.Allow(ctx, "k")
	if d.Allowed {
		t.Fatalf("second request should be blocked")
	}
	if d.RetryAfter != 50*time.Second {
		t.Fatalf("retry after = %v, want 50s", d.RetryAfter)
	}

	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("request in next window should pass")
	}
}

func TestLimitersRejectNonPositiveSettings(t *testing.T) {
	if _, err := NewMemoryFixedWindow(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	_, client := newRedisClient(t)
	if _, err := NewRedisFixedWindow(client, "", 1, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
