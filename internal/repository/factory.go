package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/database"
)

// Open builds the Store selected by cfg.StoreBackend. The returned close
// function releases the underlying connections.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("Using Redis store", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.SavedStoryTTL))
		return NewRedisStore(client, cfg.SavedStoryTTL, logger), func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		if err := database.ApplyMigrations(cfg.GetDSN(), logger); err != nil {
			return nil, nil, err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using PostgreSQL store")
		return NewPostgresStore(pool, logger), pool.Close, nil

	default:
		logger.Info("Using in-memory store")
		return NewMemoryStore(), func() {}, nil
	}
}
