package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache abstracts the Redis operations used for session results.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis. A missing key returns redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Delete removes a key. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

const (
	processingMarker = "processing"
	processingTTL    = time.Minute
	resultTTL        = 15 * time.Minute
)

func sessionKey(requestID string) string {
	return fmt.Sprintf("fitting:%s", requestID)
}

// processingValue marks a request as in flight for shopperID. Anonymous
// requests store the bare marker.
func processingValue(shopperID string) string {
	if shopperID == "" {
		return processingMarker
	}
	return processingMarker + ":" + shopperID
}

func isProcessing(value string) bool {
	return value == processingMarker || strings.HasPrefix(value, processingMarker+":")
}

func processingOwner(value string) string {
	return strings.TrimPrefix(strings.TrimPrefix(value, processingMarker), ":")
}
