package evaluation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, "test", "sma", time.Minute), mr
}

func TestCacheKeyIsCanonical(t *testing.T) {
	c, _ := newTestCache(t)

	a := c.Key(backtest.ParameterSet{"slow_period": 30, "fast_period": 10, "threshold": 0.005})
	b := c.Key(backtest.ParameterSet{"threshold": 0.005, "fast_period": 10, "slow_period": 30})
	assert.Equal(t, a, b)
	assert.Equal(t, "test:sma:fast_period=10,slow_period=30,threshold=0.005", a)

	assert.NotEqual(t, a, c.Key(backtest.ParameterSet{"fast_period": 10.5, "slow_period": 30, "threshold": 0.005}))
}

func TestCacheHitAndMiss(t *testing.T) {
	c, mr := newTestCache(t)

	var calls atomic.Int32
	eval := c.Wrap(countingEvaluator(&calls, nil))
	ps := backtest.ParameterSet{"x": 0.25}

	first, err := eval(context.Background(), ps)
	require.NoError(t, err)
	second, err := eval(context.Background(), ps)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second call served from cache")
	assert.Equal(t, first.WinRate, second.WinRate)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	assert.True(t, mr.Exists(c.Key(ps)))
	ttl := mr.TTL(c.Key(ps))
	assert.Equal(t, time.Minute, ttl)
}

func TestCacheSkipsFailures(t *testing.T) {
	c, mr := newTestCache(t)

	var calls atomic.Int32
	eval := c.Wrap(countingEvaluator(&calls, errBackendDown))
	ps := backtest.ParameterSet{"x": 1}

	_, err := eval(context.Background(), ps)
	assert.ErrorIs(t, err, errBackendDown)
	assert.False(t, mr.Exists(c.Key(ps)))
}

func TestCacheDegradesWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var calls atomic.Int32
	eval := c.Wrap(countingEvaluator(&calls, nil))

	for i := 0; i < 2; i++ {
		result, err := eval(context.Background(), backtest.ParameterSet{"x": 0.75})
		require.NoError(t, err)
		assert.Equal(t, 0.75, result.WinRate)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheDiscardsCorruptEntries(t *testing.T) {
	c, mr := newTestCache(t)
	ps := backtest.ParameterSet{"x": 0.1}
	require.NoError(t, mr.Set(c.Key(ps), "not json"))

	var calls atomic.Int32
	result, err := c.Wrap(countingEvaluator(&calls, nil))(context.Background(), ps)
	require.NoError(t, err)
	assert.Equal(t, 0.1, result.WinRate)
	assert.Equal(t, int32(1), calls.Load())

	// A corrupt entry is removed on lookup
	stale := c.Key(backtest.ParameterSet{"x": 0.2})
	require.NoError(t, mr.Set(stale, "{"))
	_, hit := c.lookup(context.Background(), stale)
	assert.False(t, hit)
	assert.False(t, mr.Exists(stale))
}

func TestCacheWithBackend(t *testing.T) {
	c, _ := newTestCache(t)
	backend := NewSyntheticBackend(BackendConfig{Bars: 200, Seed: 11})
	eval := c.Wrap(backend.Evaluate)
	ps := backend.Strategy().Defaults()

	direct, err := backend.Evaluate(context.Background(), ps)
	require.NoError(t, err)

	_, err = eval(context.Background(), ps)
	require.NoError(t, err)
	cached, err := eval(context.Background(), ps)
	require.NoError(t, err)

	assert.Equal(t, direct.TotalTrades, cached.TotalTrades)
	assert.InDelta(t, direct.FinalBalance, cached.FinalBalance, 1e-9)
	assert.Len(t, cached.Trades, len(direct.Trades))
}
