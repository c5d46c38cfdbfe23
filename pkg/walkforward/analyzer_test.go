package walkforward

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

var day = 24 * time.Hour

func testStrategy() *backtest.Strategy {
	return &backtest.Strategy{
		ID:   "sma-cross",
		Name: "SMA Crossover",
		Parameters: []backtest.StrategyParameter{
			{Name: "fast_period", Value: 10, Min: 2, Max: 50, Step: 4},
			{Name: "slow_period", Value: 50, Min: 10, Max: 200, Step: 10},
		},
	}
}

// dailyTrades produces one trade every 12 hours from start, alternating sides
func dailyTrades(start time.Time, days int) []backtest.Trade {
	var trades []backtest.Trade
	for i := 0; i < days*2; i++ {
		side := backtest.SideBuy
		if i%2 == 1 {
			side = backtest.SideSell
		}
		trades = append(trades, backtest.Trade{
			ID:        fmt.Sprintf("trade-%d", i),
			Symbol:    "BTC/USDT",
			Side:      side,
			Price:     100 + float64(i%7),
			Amount:    1,
			Timestamp: start.Add(time.Duration(i) * 12 * time.Hour),
		})
	}
	return trades
}

func quadraticFactory(w Window) optimize.EvaluateFunc {
	return func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		d := (ps["fast_period"] - 12) / 48
		return &backtest.BacktestResult{ProfitFactor: 1 - d*d, WinRate: 0.5}, nil
	}
}

func smallAnalyzer() *Analyzer {
	a := NewAnalyzer(testStrategy())
	a.Iterations = 3
	a.OptimizerConfig = optimize.DefaultConfig().WithSeed(5)
	a.OptimizerConfig.Genetic.Population = 6
	return a
}

func TestGenerateWindowsContiguous(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(365 * day)

	a := NewAnalyzer(testStrategy())
	windows, err := a.GenerateWindows(nil, start, end)
	require.NoError(t, err)
	require.NotEmpty(t, windows)

	size := 90 * day
	for i, w := range windows {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, w.InSampleEnd, w.OutSampleStart)
		assert.True(t, w.InSampleStart.Before(w.InSampleEnd))
		assert.False(t, w.OutSampleEnd.After(end))
		if i < len(windows)-1 {
			assert.Equal(t, size, w.OutSampleEnd.Sub(w.InSampleStart))
			// Next out-of-sample period starts where this one ends
			assert.Equal(t, w.OutSampleEnd, windows[i+1].OutSampleStart)
		}
	}
	assert.Equal(t, end, windows[len(windows)-1].OutSampleEnd)
	assert.Equal(t, windows[0].InSampleStart, start)
}

func TestGenerateWindowsInSampleOverlap(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(365 * day)

	a := NewAnalyzer(testStrategy())
	windows, err := a.GenerateWindows(nil, start, end)
	require.NoError(t, err)
	require.Greater(t, len(windows), 1)

	first, second := windows[0], windows[1]
	inLen := first.InSampleEnd.Sub(first.InSampleStart)
	outLen := first.OutSampleEnd.Sub(first.OutSampleStart)
	require.Greater(t, inLen, outLen)

	assert.Equal(t, first.InSampleStart.Add(outLen), second.InSampleStart)
	assert.True(t, second.InSampleStart.Before(first.InSampleEnd))
	assert.Equal(t, inLen-outLen, first.InSampleEnd.Sub(second.InSampleStart))
}

func TestOutOfSampleTradesPartitionRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(200 * day)
	trades := dailyTrades(start, 201) // includes a trade exactly at end

	a := NewAnalyzer(testStrategy())
	windows, err := a.GenerateWindows(trades, start, end)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, w := range windows {
		for _, tr := range w.OutSample {
			assert.False(t, seen[tr.ID], "duplicate trade %s", tr.ID)
			seen[tr.ID] = true
			assert.False(t, tr.Timestamp.Before(w.OutSampleStart))
		}
		for _, tr := range w.InSample {
			assert.True(t, tr.Timestamp.Before(w.InSampleEnd))
		}
	}

	// Every trade in [first out-of-sample start, end] lands in exactly one window
	expected := 0
	for _, tr := range trades {
		if !tr.Timestamp.Before(windows[0].OutSampleStart) && !tr.Timestamp.After(end) {
			expected++
			assert.True(t, seen[tr.ID], "missing trade %s", tr.ID)
		}
	}
	assert.Equal(t, expected, len(seen))
}

func TestGenerateWindowsErrors(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAnalyzer(testStrategy())

	_, err := a.GenerateWindows(nil, start, start)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = a.GenerateWindows(nil, start, start.Add(30*day))
	assert.ErrorIs(t, err, ErrNoWindows)

	a.InSampleRatio = 1
	a.WindowDays = 0
	_, err = a.GenerateWindows(nil, start, start.Add(365*day))
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Contains(t, err.Error(), "window days")
	assert.Contains(t, err.Error(), "in-sample ratio")
}

func TestAnalyze(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(180 * day)
	trades := dailyTrades(start, 180)

	a := smallAnalyzer()
	windows, err := a.GenerateWindows(trades, start, end)
	require.NoError(t, err)

	var factoryCalls []int
	factory := func(w Window) optimize.EvaluateFunc {
		factoryCalls = append(factoryCalls, w.Index)
		return quadraticFactory(w)
	}

	result, err := a.Analyze(context.Background(), trades, start, end, factory)
	require.NoError(t, err)

	require.Len(t, result.Windows, len(windows))
	assert.Len(t, factoryCalls, len(windows))

	var outOfSample []backtest.Trade
	for i, wr := range result.Windows {
		assert.Equal(t, windows[i].OutSampleStart, wr.Period.Start)
		assert.Equal(t, windows[i].OutSampleEnd, wr.Period.End)
		assert.Equal(t, len(windows[i].InSample), wr.InSampleTrades)
		assert.Equal(t, len(windows[i].OutSample), wr.Performance.TotalTrades)
		assert.Contains(t, wr.Parameters, "fast_period")
		outOfSample = append(outOfSample, windows[i].OutSample...)
	}

	// Aggregate is computed over the concatenated trades
	expected := backtest.CalculateMetrics(outOfSample, a.InitialBalance)
	assert.Equal(t, expected.TotalTrades, result.Aggregate.TotalTrades)
	assert.Equal(t, expected.WinRate, result.Aggregate.WinRate)
	assert.Equal(t, expected.FinalBalance, result.Aggregate.FinalBalance)
}

func TestAnalyzePropagatesOptimizerErrors(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	errBacktest := errors.New("backtest failed")

	factory := func(w Window) optimize.EvaluateFunc {
		return func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
			return nil, errBacktest
		}
	}

	_, err := smallAnalyzer().Analyze(context.Background(), nil, start, start.Add(120*day), factory)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBacktest)

	var evalErr *optimize.EvaluationError
	assert.True(t, errors.As(err, &evalErr))
}

func TestAnalyzeCanceled(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := smallAnalyzer().Analyze(ctx, nil, start, start.Add(120*day), quadraticFactory)
	assert.ErrorIs(t, err, context.Canceled)
}
