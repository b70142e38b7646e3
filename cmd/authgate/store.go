package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/config"
	"github.com/MrEthical07/authgate/store"
	"github.com/MrEthical07/authgate/store/memory"
	"github.com/MrEthical07/authgate/store/postgres"
	"github.com/MrEthical07/authgate/store/redisstore"
)

const (
	redisLockTTL   = 5 * time.Second
	redisLockRetry = 20 * time.Millisecond
)

// backend is an opened store plus the lock that matches it.
type backend struct {
	store  store.Store
	locker authgate.Locker
	// redis is set for the redis driver and backs request throttling.
	redis redis.UniversalClient
	close func() error
}

func openBackend(ctx context.Context, s *config.Settings, logger log.FieldLogger) (*backend, error) {
	switch s.StoreDriver {
	case config.DriverMemory:
		logger.Warn("authgate: using the in-memory store, state is lost on restart")
		st := memory.New()
		return &backend{store: st, close: st.Close}, nil

	case config.DriverRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{s.RedisAddr},
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		st, err := redisstore.New(client, s.RedisPrefix)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		b := &backend{store: st, redis: client, close: client.Close}
		if s.RedisLock {
			b.locker = redisstore.NewLocker(client, s.RedisPrefix, redisLockTTL, redisLockRetry)
		}
		logger.WithField("addr", s.RedisAddr).Info("authgate: using the redis store")
		return b, nil

	case config.DriverPostgres:
		st, err := postgres.Open(ctx, s.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("authgate: using the postgres store")
		return &backend{store: st, close: st.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", s.StoreDriver)
}
