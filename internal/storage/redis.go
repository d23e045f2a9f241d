package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Redis is the production Backend. Entries carry no TTL; the store owns their
// lifecycle.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to Redis and registers lifecycle hooks that ping the
// server on start and close the client on stop.
func NewRedis(lc fx.Lifecycle, logger *zap.Logger, addr, password string, db int) *Redis {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("attempting to connect to redis...", zap.String("addr", addr))
			if err := rdb.Ping(ctx).Err(); err != nil {
				logger.Error("redis ping failed", zap.Error(err))
				return fmt.Errorf("[REDIS CONNECTION FAILED] cannot reach redis. Please check: 1) Redis is running, 2) REDIS_ADDR is correct, 3) Credentials are valid. Error: %w", err)
			}
			logger.Info("redis connection established successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", zap.Error(err))
				return err
			}
			logger.Info("redis connection closed")
			return nil
		},
	})

	return &Redis{rdb: rdb}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
