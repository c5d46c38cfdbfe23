// Performance Metrics Unit Tests
package backtest

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

// alternatingTrades builds n trades alternating buy at price and sell at price+spread
func alternatingTrades(n int, price, spread float64) []Trade {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := make([]Trade, n)
	for i := 0; i < n; i++ {
		t := Trade{
			ID:        fmt.Sprintf("t-%d", i),
			Symbol:    "BTC/USD",
			Side:      SideBuy,
			Price:     price,
			Amount:    1,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		}
		if i%2 == 1 {
			t.Side = SideSell
			t.Price = price + spread
		}
		trades[i] = t
	}
	return trades
}

func flowTrades(flows ...float64) []Trade {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := make([]Trade, len(flows))
	for i, f := range flows {
		side := SideSell
		if f < 0 {
			side = SideBuy
		}
		trades[i] = Trade{
			ID:        fmt.Sprintf("f-%d", i),
			Symbol:    "ETH/USD",
			Side:      side,
			Price:     math.Abs(f),
			Amount:    1,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return trades
}

func assertFinite(t *testing.T, r *BacktestResult) {
	t.Helper()
	for name, v := range map[string]float64{
		"win_rate":      r.WinRate,
		"profit_factor": r.ProfitFactor,
		"max_drawdown":  r.MaxDrawdown,
		"sharpe":        r.SharpeRatio,
		"sortino":       r.SortinoRatio,
		"calmar":        r.CalmarRatio,
		"expectancy":    r.Expectancy,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s must be finite, got %v", name, v)
	}
}

// ============================================================================
// METRICS CALCULATION TESTS
// ============================================================================

func TestCalculateMetricsAlternatingScenario(t *testing.T) {
	trades := alternatingTrades(10, 100, 1)

	result := CalculateMetrics(trades, 10000)
	require.NotNil(t, result)

	// 5 buys of -100, 5 sells of +101
	assert.Equal(t, 10, result.TotalTrades)
	assert.Equal(t, 0.5, result.WinRate)
	assert.Equal(t, 505.0/500.0, result.ProfitFactor)
	assert.Equal(t, 10005.0, result.FinalBalance)
	assert.Equal(t, 101.0, result.AverageWin)
	assert.Equal(t, 100.0, result.AverageLoss)
	assert.InDelta(t, 0.5, result.Expectancy, 1e-12)
	assert.Equal(t, 1, result.ConsecutiveWins)
	assert.Equal(t, 1, result.ConsecutiveLosses)

	// First buy is the deepest drop relative to its peak
	assert.InDelta(t, 0.01, result.MaxDrawdown, 1e-12)
	assertFinite(t, result)
}

func TestCalculateMetricsDeterministic(t *testing.T) {
	trades := flowTrades(120, -40, 35, -80, 200, -15, 60, -90, 10)

	first := CalculateMetrics(trades, 5000)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, CalculateMetrics(trades, 5000))
	}
}

func TestCalculateMetricsEmpty(t *testing.T) {
	result := CalculateMetrics(nil, 1000)

	assert.Equal(t, 0, result.TotalTrades)
	assert.Equal(t, 1000.0, result.FinalBalance)
	assert.Zero(t, result.WinRate)
	assert.Zero(t, result.ProfitFactor)
	assert.Zero(t, result.MaxDrawdown)
	assert.Zero(t, result.SharpeRatio)
	assert.Zero(t, result.SortinoRatio)
	assert.Zero(t, result.CalmarRatio)
}

func TestCalculateMetricsZeroVariance(t *testing.T) {
	// Identical winning trades: no variance, no downside, no drawdown
	result := CalculateMetrics(flowTrades(50, 50, 50, 50), 1000)

	assert.Equal(t, 1.0, result.WinRate)
	assert.Equal(t, 200.0, result.ProfitFactor, "no losses degrades to gross profit")
	assert.Zero(t, result.SharpeRatio)
	assert.Zero(t, result.SortinoRatio)
	assert.Zero(t, result.CalmarRatio)
	assert.Zero(t, result.MaxDrawdown)
	assert.Equal(t, 4, result.ConsecutiveWins)
	assertFinite(t, result)
}

func TestCalculateMetricsRatios(t *testing.T) {
	flows := []float64{100, -50, 80, -20}
	result := CalculateMetrics(flowTrades(flows...), 1000)

	mean := 27.5
	var sq float64
	for _, f := range flows {
		sq += (f - mean) * (f - mean)
	}
	std := math.Sqrt(sq / 4)
	downside := math.Sqrt((50*50 + 20*20) / 4.0)

	assert.InDelta(t, mean/std*math.Sqrt(252), result.SharpeRatio, 1e-9)
	assert.InDelta(t, mean/downside*math.Sqrt(252), result.SortinoRatio, 1e-9)
	require.Greater(t, result.MaxDrawdown, 0.0)
	assert.InDelta(t, mean*252/result.MaxDrawdown, result.CalmarRatio, 1e-9)
}

func TestMaxDrawdownClamped(t *testing.T) {
	tests := []struct {
		name     string
		flows    []float64
		initial  float64
		expected float64
	}{
		{"no drawdown", []float64{10, 20, 30}, 100, 0},
		{"half", []float64{100, -100}, 100, 0.5},
		{"wiped out below zero", []float64{-300}, 100, 1},
		{"non positive peak ignored", []float64{-10, -10}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, MaxDrawdown(tt.flows, tt.initial), 1e-12)
		})
	}
}

func TestEquityCurve(t *testing.T) {
	curve := EquityCurve(flowTrades(100, -30, 50), 1000)
	assert.Equal(t, []float64{1000, 1100, 1070, 1120}, curve)
}

func TestLongestStreaks(t *testing.T) {
	wins, losses := longestStreaks([]float64{1, 2, 3, -1, -2, 0, 4, -1, -1, -1, -1})
	assert.Equal(t, 3, wins)
	assert.Equal(t, 4, losses)
}

// ============================================================================
// STATISTICS TESTS
// ============================================================================

func TestStatistics(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.Equal(t, 5.0, Mean(values))
	assert.Equal(t, 2.0, StdDev(values))
	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev([]float64{3}))

	sorted := SortedCopy([]float64{5, 1, 3})
	assert.Equal(t, []float64{1, 3, 5}, sorted)
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 3.0, Percentile(sorted, 0.5))
	assert.Equal(t, 5.0, Percentile(sorted, 1), "clamped to last element")
	assert.Zero(t, Percentile(nil, 0.5))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.0, Correlation(x, []float64{2, 4, 6, 8}), 1e-12)
	assert.InDelta(t, -1.0, Correlation(x, []float64{8, 6, 4, 2}), 1e-12)
	assert.Zero(t, Correlation(x, []float64{3, 3, 3, 3}), "zero denominator yields 0")
	assert.Zero(t, Correlation(x, []float64{1, 2}), "length mismatch yields 0")
}

// ============================================================================
// FITNESS AND REPORT TESTS
// ============================================================================

func TestDefaultFitness(t *testing.T) {
	r := &BacktestResult{ProfitFactor: 2, WinRate: 0.6, MaxDrawdown: 0.2}
	assert.InDelta(t, 2*0.4+0.6*0.3+0.8*0.3, DefaultFitness(r), 1e-12)

	custom := FitnessWeights{ProfitFactor: 1}.Objective()
	assert.Equal(t, 2.0, custom(r))
}

func TestObjectiveByName(t *testing.T) {
	for _, name := range ObjectiveNames() {
		fn, ok := ObjectiveByName(name)
		assert.True(t, ok, name)
		assert.NotNil(t, fn)
	}

	_, ok := ObjectiveByName("unknown")
	assert.False(t, ok)
}
