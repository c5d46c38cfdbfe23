package evaluation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

var errBackendDown = errors.New("backend down")

func countingEvaluator(calls *atomic.Int32, err error) optimize.EvaluateFunc {
	return func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		calls.Add(1)
		if err != nil {
			return nil, err
		}
		return &backtest.BacktestResult{WinRate: ps["x"]}, nil
	}
}

func blockingEvaluator(ctx context.Context, _ backtest.ParameterSet) (*backtest.BacktestResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGuardPassThrough(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard("pass", GuardConfig{Timeout: time.Second})
	eval := g.Wrap(countingEvaluator(&calls, nil))

	result, err := eval(context.Background(), backtest.ParameterSet{"x": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.WinRate)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardTimeout(t *testing.T) {
	g := NewGuard("timeout", GuardConfig{Timeout: 20 * time.Millisecond})
	eval := g.Wrap(blockingEvaluator)

	start := time.Now()
	_, err := eval(context.Background(), backtest.ParameterSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard("failing", GuardConfig{
		Breaker: BreakerSettings{MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Minute},
	})
	eval := g.Wrap(countingEvaluator(&calls, errBackendDown))

	for i := 0; i < 2; i++ {
		_, err := eval(context.Background(), backtest.ParameterSet{})
		assert.ErrorIs(t, err, errBackendDown)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := eval(context.Background(), backtest.ParameterSet{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not call the backend")
}

func TestGuardCallerCancelDoesNotTrip(t *testing.T) {
	g := NewGuard("cancel", GuardConfig{
		Breaker: BreakerSettings{MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Minute},
	})
	eval := g.Wrap(blockingEvaluator)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := eval(ctx, backtest.ParameterSet{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardRateLimit(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard("limited", GuardConfig{RateLimit: 0.001, Burst: 1})
	eval := g.Wrap(countingEvaluator(&calls, nil))

	_, err := eval(context.Background(), backtest.ParameterSet{})
	require.NoError(t, err, "burst allows the first call")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = eval(ctx, backtest.ParameterSet{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuardWithOptimizer(t *testing.T) {
	backend := NewSyntheticBackend(BackendConfig{Bars: 300, Seed: 7})
	g := NewGuard("optimizer", GuardConfig{Timeout: time.Second})

	cfg := optimize.DefaultConfig().WithSeed(3).WithIterations(3)
	result, err := optimize.Run(context.Background(), optimize.KindGenetic, cfg, backend.Strategy(), g.Wrap(backend.Evaluate))
	require.NoError(t, err)
	assert.Positive(t, result.Evaluations)
	require.NoError(t, backtest.ValidateParameters(backend.Strategy(), result.BestParameters))
}
