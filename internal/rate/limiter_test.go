package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := New(client, Config{Prefix: "test", Limit: limit, Window: window})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, mr
}

func TestAllowWithinBudget(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Allow(ctx, "ip:198.51.100.7"); err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
	}
	retry, err := l.Allow(ctx, "ip:198.51.100.7")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry after %v", retry)
	}
	if _, err := l.Allow(ctx, "ip:198.51.100.8"); err != nil {
		t.Fatalf("other keys have their own budget: %v", err)
	}
}

func TestWindowResets(t *testing.T) {
	l, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()
	if _, err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("first hit: %v", err)
	}
	if _, err := l.Allow(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}
	mr.FastForward(61 * time.Second)
	if _, err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("expected a fresh window, got %v", err)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()
	_, _ = l.Allow(ctx, "k")
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("expected budget after reset, got %v", err)
	}
}

func TestRedisFailureIsUnavailable(t *testing.T) {
	l, mr := newTestLimiter(t, 1, time.Minute)
	mr.Close()
	if _, err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := New(client, Config{Limit: 0, Window: time.Minute}); err == nil {
		t.Fatalf("expected zero limit to be rejected")
	}
	if _, err := New(nil, Config{Limit: 1, Window: time.Minute}); err == nil {
		t.Fatalf("expected nil client to be rejected")
	}
}
