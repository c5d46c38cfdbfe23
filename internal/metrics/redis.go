package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMetrics wraps a Redis client and instruments cache operations
type RedisMetrics struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisMetrics creates a new instrumented Redis client
func NewRedisMetrics(client *redis.Client) *RedisMetrics {
	return &RedisMetrics{client: client}
}

// Client returns the wrapped client
func (rm *RedisMetrics) Client() *redis.Client {
	return rm.client
}

// Get performs a Redis GET and records hit/miss metrics.
// A missing key returns redis.Nil.
func (rm *RedisMetrics) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rm.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		rm.misses.Add(1)
		RecordCacheOperation(CacheMiss)
		rm.updateHitRate()
		return nil, err
	case err != nil:
		RecordCacheOperation(CacheError)
		return nil, err
	}

	rm.hits.Add(1)
	RecordCacheOperation(CacheHit)
	rm.updateHitRate()
	return val, nil
}

// Set performs a Redis SET and records metrics
func (rm *RedisMetrics) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := rm.client.Set(ctx, key, value, expiration).Err(); err != nil {
		RecordCacheOperation(CacheError)
		return err
	}
	RecordCacheOperation(CacheStore)
	return nil
}

// Del performs a Redis DEL
func (rm *RedisMetrics) Del(ctx context.Context, keys ...string) error {
	return rm.client.Del(ctx, keys...).Err()
}

// Stats returns the hit and miss counts
func (rm *RedisMetrics) Stats() (hits, misses int64) {
	return rm.hits.Load(), rm.misses.Load()
}

// HitRate returns hits / (hits + misses), or 0 before any lookup
func (rm *RedisMetrics) HitRate() float64 {
	hits, misses := rm.Stats()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (rm *RedisMetrics) updateHitRate() {
	CacheHitRate.Set(rm.HitRate())
}
