package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "storybook:saved:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore stores values under "storybook:saved:<key>". A zero ttl keeps
// them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) Store {
	return &redisStore{client: client, ttl: ttl, logger: logger.Named("RedisStore")}
}

var _ Store = (*redisStore)(nil)

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get key", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to set key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		r.logger.Error("Failed to delete key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
