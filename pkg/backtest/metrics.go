// Performance metrics calculation for trade sequences
package backtest

import (
	"math"
)

// tradingDaysPerYear annualizes per-trade ratios
const tradingDaysPerYear = 252.0

// ============================================================================
// PERFORMANCE METRICS
// ============================================================================

// BacktestResult holds the metrics of a trade sequence.
// It is the fitness signal consumed by every optimizer.
type BacktestResult struct {
	Trades         []Trade `json:"trades,omitempty" yaml:"trades,omitempty"`
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
	FinalBalance   float64 `json:"final_balance" yaml:"final_balance"`
	TotalTrades    int     `json:"total_trades" yaml:"total_trades"`

	WinRate      float64 `json:"win_rate" yaml:"win_rate"`           // 0.0 to 1.0
	ProfitFactor float64 `json:"profit_factor" yaml:"profit_factor"` // Gross profit / gross loss
	MaxDrawdown  float64 `json:"max_drawdown" yaml:"max_drawdown"`   // 0.0 to 1.0, peak relative

	SharpeRatio  float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio" yaml:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio" yaml:"calmar_ratio"`

	AverageWin        float64 `json:"average_win" yaml:"average_win"`
	AverageLoss       float64 `json:"average_loss" yaml:"average_loss"` // Positive value
	Expectancy        float64 `json:"expectancy" yaml:"expectancy"`
	ConsecutiveWins   int     `json:"consecutive_wins" yaml:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses" yaml:"consecutive_losses"`
}

// CalculateMetrics converts a trade sequence into a metrics record.
// It is a pure function of its inputs.
func CalculateMetrics(trades []Trade, initialBalance float64) *BacktestResult {
	flows := CashFlows(trades)

	result := &BacktestResult{
		Trades:         trades,
		InitialBalance: initialBalance,
		FinalBalance:   initialBalance + sum(flows),
		TotalTrades:    len(trades),
	}

	calculateTradeStatistics(result, flows)

	result.MaxDrawdown = MaxDrawdown(flows, initialBalance)

	calculateRiskRatios(result, flows)

	result.ConsecutiveWins, result.ConsecutiveLosses = longestStreaks(flows)

	return result
}

// CashFlows returns the signed cash flow of each trade
func CashFlows(trades []Trade) []float64 {
	flows := make([]float64, len(trades))
	for i, t := range trades {
		flows[i] = t.CashFlow()
	}
	return flows
}

// EquityCurve returns the running balance, starting with initialBalance
func EquityCurve(trades []Trade, initialBalance float64) []float64 {
	curve := make([]float64, 0, len(trades)+1)
	balance := initialBalance
	curve = append(curve, balance)
	for _, t := range trades {
		balance += t.CashFlow()
		curve = append(curve, balance)
	}
	return curve
}

// MaxDrawdown returns the largest peak-relative decline of the balance curve.
// The result is clamped to [0, 1]; non-positive peaks are ignored.
func MaxDrawdown(flows []float64, initialBalance float64) float64 {
	peak := initialBalance
	balance := initialBalance
	maxDD := 0.0

	for _, f := range flows {
		balance += f
		if balance > peak {
			peak = balance
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - balance) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}

	return math.Min(maxDD, 1)
}

// calculateTradeStatistics fills win rate, profit factor, averages and expectancy
func calculateTradeStatistics(result *BacktestResult, flows []float64) {
	if len(flows) == 0 {
		return
	}

	var grossProfit, grossLoss float64
	var wins, losses int

	for _, f := range flows {
		switch {
		case f > 0:
			wins++
			grossProfit += f
		case f < 0:
			losses++
			grossLoss += -f
		}
	}

	result.WinRate = float64(wins) / float64(len(flows))

	// No losses: profit factor degrades to gross profit
	if grossLoss == 0 {
		result.ProfitFactor = grossProfit
	} else {
		result.ProfitFactor = grossProfit / grossLoss
	}

	if wins > 0 {
		result.AverageWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		result.AverageLoss = grossLoss / float64(losses)
	}

	result.Expectancy = result.WinRate*result.AverageWin - (1-result.WinRate)*result.AverageLoss
}

// calculateRiskRatios fills the Sharpe, Sortino and Calmar ratios.
// Zero variance or zero drawdown yields 0.
func calculateRiskRatios(result *BacktestResult, flows []float64) {
	if len(flows) == 0 {
		return
	}

	mean := Mean(flows)

	if std := StdDev(flows); std > 0 {
		result.SharpeRatio = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	var downsideSq float64
	for _, f := range flows {
		if f < 0 {
			downsideSq += f * f
		}
	}
	if downside := math.Sqrt(downsideSq / float64(len(flows))); downside > 0 {
		result.SortinoRatio = mean / downside * math.Sqrt(tradingDaysPerYear)
	}

	if result.MaxDrawdown > 0 {
		result.CalmarRatio = mean * tradingDaysPerYear / result.MaxDrawdown
	}
}

// longestStreaks returns the longest runs of winning and losing trades.
// A flat trade breaks both runs.
func longestStreaks(flows []float64) (maxWins, maxLosses int) {
	var wins, losses int
	for _, f := range flows {
		switch {
		case f > 0:
			wins++
			losses = 0
		case f < 0:
			losses++
			wins = 0
		default:
			wins, losses = 0, 0
		}
		maxWins = max(maxWins, wins)
		maxLosses = max(maxLosses, losses)
	}
	return maxWins, maxLosses
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
