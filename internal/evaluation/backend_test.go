package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/walkforward"
)

func TestSyntheticBackendDeterministic(t *testing.T) {
	a := NewSyntheticBackend(BackendConfig{Bars: 250, Seed: 42})
	b := NewSyntheticBackend(BackendConfig{Bars: 250, Seed: 42})
	c := NewSyntheticBackend(BackendConfig{Bars: 250, Seed: 43})

	assert.Equal(t, a.Prices(), b.Prices())
	assert.NotEqual(t, a.Prices(), c.Prices())

	ps := a.Strategy().Defaults()
	ra, err := a.Evaluate(context.Background(), ps)
	require.NoError(t, err)
	rb, err := b.Evaluate(context.Background(), ps)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestSyntheticBackendTrades(t *testing.T) {
	backend := NewSyntheticBackend(BackendConfig{Bars: 500, Seed: 1})
	require.NoError(t, backend.Strategy().Validate())

	trades := backend.Trades(backtest.ParameterSet{ParamFastPeriod: 5, ParamSlowPeriod: 20, ParamThreshold: 0})
	require.NotEmpty(t, trades)
	assert.Equal(t, 0, len(trades)%2, "every entry is closed")

	ids := make(map[string]struct{}, len(trades))
	for i, tr := range trades {
		require.NoError(t, tr.Validate())
		want := backtest.SideBuy
		if i%2 == 1 {
			want = backtest.SideSell
		}
		assert.Equal(t, want, tr.Side)
		if i > 0 {
			assert.False(t, tr.Timestamp.Before(trades[i-1].Timestamp))
		}
		ids[tr.ID] = struct{}{}
	}
	assert.Len(t, ids, len(trades), "trade IDs are unique")
}

func TestSyntheticBackendParameters(t *testing.T) {
	backend := NewSyntheticBackend(BackendConfig{Bars: 300, Seed: 5})

	swapped := backend.Trades(backtest.ParameterSet{ParamFastPeriod: 20, ParamSlowPeriod: 5})
	ordered := backend.Trades(backtest.ParameterSet{ParamFastPeriod: 5, ParamSlowPeriod: 20})
	require.Len(t, swapped, len(ordered))
	for i := range ordered {
		assert.Equal(t, ordered[i].Price, swapped[i].Price)
	}

	assert.Empty(t, backend.Trades(backtest.ParameterSet{ParamFastPeriod: 10, ParamSlowPeriod: 10}))
	assert.Empty(t, backend.Trades(backtest.ParameterSet{ParamFastPeriod: 5, ParamSlowPeriod: 400}))

	loose := backend.Trades(backtest.ParameterSet{ParamFastPeriod: 5, ParamSlowPeriod: 20, ParamThreshold: 0})
	strict := backend.Trades(backtest.ParameterSet{ParamFastPeriod: 5, ParamSlowPeriod: 20, ParamThreshold: 0.05})
	assert.LessOrEqual(t, len(strict), len(loose))
}

func TestSyntheticBackendWindows(t *testing.T) {
	backend := NewSyntheticBackend(BackendConfig{Bars: 400, Seed: 9})
	ps := backend.Strategy().Defaults()

	start := backend.Start()
	mid := start.AddDate(0, 0, 200)
	for _, tr := range backend.TradesBetween(ps, start, mid) {
		assert.True(t, tr.Timestamp.Before(mid))
	}
	assert.Empty(t, backend.TradesBetween(ps, mid, mid))

	_, err := backend.EvaluatorBetween(start, mid)(context.Background(), ps)
	require.NoError(t, err)
}

func TestSyntheticBackendCanceled(t *testing.T) {
	backend := NewSyntheticBackend(BackendConfig{Bars: 100, Seed: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Evaluate(ctx, backend.Strategy().Defaults())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticBackendWalkForward(t *testing.T) {
	backend := NewSyntheticBackend(BackendConfig{Bars: 360, Seed: 21})
	strategy := backend.Strategy()

	analyzer := walkforward.NewAnalyzer(strategy)
	analyzer.WindowDays = 120
	analyzer.Iterations = 2
	analyzer.OptimizerConfig = analyzer.OptimizerConfig.WithSeed(4)

	trades := backend.Trades(strategy.Defaults())
	result, err := analyzer.Analyze(context.Background(), trades, backend.Start(), backend.End(), backend.WindowEvaluators(nil))
	require.NoError(t, err)
	require.NotEmpty(t, result.Windows)
	for _, w := range result.Windows {
		require.NoError(t, backtest.ValidateParameters(strategy, w.Parameters))
	}
}
