package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/retry"
)

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError checks if the error is retryable (network/connection errors).
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	// Don't retry on cache miss or context errors
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// redisCache implements a Redis-based cache.
type redisCache struct {
	logger     observability.Logger
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

// newRedisCache creates a new Redis cache.
func newRedisCache(cfg *config.CacheConfig, logger observability.Logger) (*redisCache, error) {
	if cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%w: redis address is required", ErrInvalidConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("redis cache initialized",
		observability.String("address", cfg.Redis.Address),
		observability.Int("db", cfg.Redis.DB))

	return &redisCache{
		logger:     logger,
		client:     client,
		keyPrefix:  "avtenantd:",
		defaultTTL: cfg.TTL.Duration(),
	}, nil
}

// resolveKey applies the key prefix.
func (c *redisCache) resolveKey(key string) string {
	return c.keyPrefix + key
}

// Get retrieves a value from the cache.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		result, err := c.client.Get(ctx, c.resolveKey(key)).Bytes()
		if err != nil {
			return err
		}
		value = result
		return nil
	}, &retry.Options{ShouldRetry: isRetryableRedisError})

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	return value, nil
}

// Set stores a value in the cache.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return c.client.Set(ctx, c.resolveKey(key), value, ttl).Err()
	}, &retry.Options{ShouldRetry: isRetryableRedisError})

	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Delete removes a value from the cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return c.client.Del(ctx, c.resolveKey(key)).Err()
	}, &retry.Options{ShouldRetry: isRetryableRedisError})

	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

// Exists checks if a key exists in the cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	var count int64

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		result, err := c.client.Exists(ctx, c.resolveKey(key)).Result()
		if err != nil {
			return err
		}
		count = result
		return nil
	}, &retry.Options{ShouldRetry: isRetryableRedisError})

	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}

	return count > 0, nil
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	return c.client.Close()
}
