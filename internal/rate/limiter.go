package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config sets the budget of one limiter: at most Limit hits per key within
// Window.
type Config struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// Limiter is a fixed-window request counter in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("rate: nil redis client")
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("rate: limit and window must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "authgate:rl"
	}
	return &Limiter{redis: redisClient, config: cfg}, nil
}

// Allow counts one hit for key. Past the budget it returns ErrRateLimited
// and the time until the window resets.
func (l *Limiter) Allow(ctx context.Context, key string) (time.Duration, error) {
	k := l.config.Prefix + ":" + key
	count, err := l.incrementWithTTL(ctx, k, l.config.Window)
	if err != nil {
		return 0, err
	}
	if count <= int64(l.config.Limit) {
		return 0, nil
	}
	ttl, err := l.redis.PTTL(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		ttl = l.config.Window
	}
	return ttl, ErrRateLimited
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.config.Prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
