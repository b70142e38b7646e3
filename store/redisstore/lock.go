package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/store"
)

const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLockLua = redis.NewScript(releaseLockScript)

// ErrLockTimeout is returned when the lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("redisstore: lock wait timed out")

// Locker is a per-key mutual exclusion lock shared by every process that
// talks to the same Redis. Locks expire after TTL so a crashed holder never
// blocks a user forever.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewLocker returns a Locker. Zero ttl defaults to 10s, zero retry to 10ms.
func NewLocker(client redis.UniversalClient, prefix string, ttl, retry time.Duration) *Locker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 10 * time.Millisecond
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl, retry: retry}
}

// Lock blocks until the key is held or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}
	redisKey := l.prefix + ":{" + key + "}:lock"

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, unavailable(err)
		}
		if ok {
			return func() {
				// Release uses a fresh context: the caller's may already be done.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseLockLua.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func newLockToken() (string, error) {
	token, err := internal.NewToken(16)
	if err != nil {
		return "", store.ErrUnavailable
	}
	return token, nil
}
