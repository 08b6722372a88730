package database

import (
	"context"
	"fmt"
	"time"

	"github.com/outerfields/platform/pkg/common/config"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// OpenRedis returns nil when REDIS_HOST is unset; callers treat a nil client
// as "no cache".
func OpenRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisHost == "" {
		logger.Log.Info("Redis not configured, webhook replay cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Log.WithError(err).Error("Failed to connect to Redis")
	} else {
		logger.Log.Info("Connected to Redis")
	}

	return client
}

func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
