package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studiopix/studiopix/models"
)

// GetRedis returns a *redis.Client instance for the configured server.
func GetRedis(cfg models.StudioConfig) *redis.Client {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
}

// CacheGet reads a cached string; a miss returns "" with no error.
func CacheGet(ctx context.Context, r *redis.Client, key string) (string, error) {
	val, err := r.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// CacheSet writes a string with a TTL.
func CacheSet(ctx context.Context, r *redis.Client, key, value string, ttl time.Duration) error {
	return r.Set(ctx, key, value, ttl).Err()
}
