package montecarlo

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ValueAtRisk holds tail-loss statistics of the return-from-initial-balance
// distribution. Losses are reported as positive fractions.
type ValueAtRisk struct {
	VaR95  float64 `json:"var_95" yaml:"var_95"`
	VaR99  float64 `json:"var_99" yaml:"var_99"`
	CVaR95 float64 `json:"cvar_95" yaml:"cvar_95"`
	CVaR99 float64 `json:"cvar_99" yaml:"cvar_99"`
}

// StreakAnalysis describes runs of winning and losing trades
type StreakAnalysis struct {
	MaxWinStreak  int     `json:"max_win_streak" yaml:"max_win_streak"`
	MaxLossStreak int     `json:"max_loss_streak" yaml:"max_loss_streak"`
	AvgWinStreak  float64 `json:"avg_win_streak" yaml:"avg_win_streak"`
	AvgLossStreak float64 `json:"avg_loss_streak" yaml:"avg_loss_streak"`
}

// RecoveryAnalysis describes drawdown recovery across simulated equity curves.
// Times are measured in trades from the trough back to a new peak.
type RecoveryAnalysis struct {
	AverageRecoveryTime float64 `json:"average_recovery_time" yaml:"average_recovery_time"`
	MaxRecoveryTime     int     `json:"max_recovery_time" yaml:"max_recovery_time"`
	RecoveryProbability float64 `json:"recovery_probability" yaml:"recovery_probability"`
	Drawdowns           int     `json:"drawdowns" yaml:"drawdowns"`
}

// EnhancedResult extends Result with tail risk, streak and recovery analysis
type EnhancedResult struct {
	Result   `yaml:",inline"`
	Risk     ValueAtRisk      `json:"value_at_risk" yaml:"value_at_risk"`
	Streaks  StreakAnalysis   `json:"streaks" yaml:"streaks"`
	Recovery RecoveryAnalysis `json:"recovery" yaml:"recovery"`
}

// SimulateEnhanced runs Simulate and adds VaR/CVaR, streak statistics on the
// original trade order and recovery statistics over every simulated curve
func (s *Simulator) SimulateEnhanced(trades []backtest.Trade, initialBalance float64) (*EnhancedResult, error) {
	start := time.Now()
	r, err := s.execute(trades, initialBalance)
	if err != nil {
		return nil, err
	}
	base := r.summarize(start)

	curves := make([][]float64, len(r.orders))
	for i, order := range r.orders {
		curves[i] = backtest.EquityCurve(order, initialBalance)
	}

	result := &EnhancedResult{
		Result:   *base,
		Risk:     CalculateValueAtRisk(base.Distributions.FinalBalances, initialBalance),
		Streaks:  AnalyzeStreaks(trades),
		Recovery: AnalyzeRecovery(curves),
	}
	result.Duration = time.Since(start)

	log.Info().
		Float64("var_95", result.Risk.VaR95).
		Float64("cvar_95", result.Risk.CVaR95).
		Float64("recovery_probability", result.Recovery.RecoveryProbability).
		Msg("Enhanced Monte Carlo analysis complete")

	return result, nil
}

// CalculateValueAtRisk converts final balances to returns and reads the 5%
// and 1% order statistics. CVaR averages the returns strictly below the VaR
// index and equals VaR when that tail is empty.
func CalculateValueAtRisk(finalBalances []float64, initialBalance float64) ValueAtRisk {
	if len(finalBalances) == 0 || !(initialBalance > 0) {
		return ValueAtRisk{}
	}

	returns := make([]float64, len(finalBalances))
	for i, b := range finalBalances {
		returns[i] = (b - initialBalance) / initialBalance
	}
	sorted := backtest.SortedCopy(returns)

	var95, cvar95 := tailRisk(sorted, 0.05)
	var99, cvar99 := tailRisk(sorted, 0.01)
	return ValueAtRisk{VaR95: var95, VaR99: var99, CVaR95: cvar95, CVaR99: cvar99}
}

func tailRisk(sorted []float64, q float64) (valueAtRisk, conditional float64) {
	idx := int(q * float64(len(sorted)))
	valueAtRisk = -backtest.Percentile(sorted, q)
	if idx == 0 {
		return valueAtRisk, valueAtRisk
	}
	return valueAtRisk, -backtest.Mean(sorted[:idx])
}

// AnalyzeStreaks measures runs of consecutive winning and losing trades.
// A flat trade ends the current run without starting a new one.
func AnalyzeStreaks(trades []backtest.Trade) StreakAnalysis {
	var wins, losses []int
	current, sign := 0, 0

	closeRun := func() {
		switch sign {
		case 1:
			wins = append(wins, current)
		case -1:
			losses = append(losses, current)
		}
	}

	for _, t := range trades {
		s := 0
		switch f := t.CashFlow(); {
		case f > 0:
			s = 1
		case f < 0:
			s = -1
		}

		if s == sign && s != 0 {
			current++
			continue
		}
		closeRun()
		sign, current = s, 1
	}
	closeRun()

	return StreakAnalysis{
		MaxWinStreak:  maxInt(wins),
		MaxLossStreak: maxInt(losses),
		AvgWinStreak:  meanInt(wins),
		AvgLossStreak: meanInt(losses),
	}
}

// AnalyzeRecovery finds every drawdown in each equity curve and measures the
// trades from its trough to the next new peak. Unrecovered drawdowns count
// against the recovery probability.
func AnalyzeRecovery(curves [][]float64) RecoveryAnalysis {
	var times []int
	drawdowns := 0

	for _, curve := range curves {
		if len(curve) == 0 {
			continue
		}
		peak := curve[0]
		inDrawdown := false
		trough, troughAt := 0.0, 0

		for i, v := range curve {
			switch {
			case v > peak:
				peak = v
				if inDrawdown {
					times = append(times, i-troughAt)
					inDrawdown = false
				}
			case v < peak && !inDrawdown:
				inDrawdown = true
				drawdowns++
				trough, troughAt = v, i
			case inDrawdown && v < trough:
				trough, troughAt = v, i
			}
		}
	}

	analysis := RecoveryAnalysis{
		AverageRecoveryTime: meanInt(times),
		MaxRecoveryTime:     maxInt(times),
		Drawdowns:           drawdowns,
	}
	if drawdowns > 0 {
		analysis.RecoveryProbability = float64(len(times)) / float64(drawdowns)
	}
	return analysis
}

func maxInt(values []int) int {
	m := 0
	for _, v := range values {
		m = max(m, v)
	}
	return m
}

func meanInt(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += v
	}
	return float64(total) / float64(len(values))
}
