package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

// DefaultCacheTTL is how long memoized results are kept
const DefaultCacheTTL = time.Hour

// Cache memoizes evaluation results in Redis.
// Keys combine the strategy ID with a canonical encoding of the parameter
// set. Redis failures degrade to a miss and never fail an evaluation.
type Cache struct {
	store    *metrics.RedisMetrics
	prefix   string
	strategy string
	ttl      time.Duration
}

// NewCache creates a cache for one strategy
func NewCache(client *redis.Client, prefix, strategyID string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = "stratlab:eval"
	}
	return &Cache{
		store:    metrics.NewRedisMetrics(client),
		prefix:   prefix,
		strategy: strategyID,
		ttl:      ttl,
	}
}

// Key returns the cache key of a parameter set.
// Names are sorted and values use the shortest exact float encoding.
func (c *Cache) Key(ps backtest.ParameterSet) string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(c.prefix)
	b.WriteByte(':')
	b.WriteString(c.strategy)
	b.WriteByte(':')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(ps[name], 'g', -1, 64))
	}
	return b.String()
}

// Stats returns cache hits and misses
func (c *Cache) Stats() (hits, misses int64) {
	return c.store.Stats()
}

// Wrap returns next with results memoized. Failed evaluations are not cached.
func (c *Cache) Wrap(next optimize.EvaluateFunc) optimize.EvaluateFunc {
	return func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		key := c.Key(ps)

		if result, ok := c.lookup(ctx, key); ok {
			return result, nil
		}

		result, err := next(ctx, ps)
		if err != nil || result == nil {
			return result, err
		}

		c.save(ctx, key, result)
		return result, nil
	}
}

func (c *Cache) save(ctx context.Context, key string, result *backtest.BacktestResult) {
	data, err := json.Marshal(result)
	if err != nil {
		metrics.RecordCacheOperation(metrics.CacheError)
		log.Warn().Err(err).Str("key", key).Msg("Failed to encode evaluation result")
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Evaluation cache store failed")
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (*backtest.BacktestResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("Evaluation cache lookup failed")
		}
		return nil, false
	}

	var result backtest.BacktestResult
	if err := json.Unmarshal(data, &result); err != nil {
		metrics.RecordCacheOperation(metrics.CacheError)
		log.Warn().Err(err).Str("key", key).Msg("Discarding corrupt cache entry")
		if err := c.store.Del(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete corrupt cache entry")
		}
		return nil, false
	}
	return &result, true
}
