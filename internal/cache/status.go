// Package cache keeps reminder statuses in Redis with a bounded lifetime.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/retry"
)

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// StatusCache stores values with a TTL. A miss is reported as redis.Nil
// and is not retried.
type StatusCache struct {
	client redisClient
	ttl    time.Duration
}

// NewStatusCache creates a cache whose keys expire after ttl. Zero ttl keeps
// keys forever.
func NewStatusCache(client redisClient, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func (c *StatusCache) SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error {
	return retry.Do(func() error {
		return c.client.Set(ctx, key, value, c.ttl).Err()
	}, strategy)
}

func (c *StatusCache) GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error) {
	var (
		value  string
		getErr error
	)

	err := retry.Do(func() error {
		value, getErr = c.client.Get(ctx, key).Result()
		if errors.Is(getErr, redis.Nil) {
			return nil
		}
		return getErr
	}, strategy)
	if getErr != nil {
		return "", getErr
	}
	if err != nil {
		return "", err
	}

	return value, nil
}
