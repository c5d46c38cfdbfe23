package backtest

import (
	"math"
)

// ============================================================================
// OBJECTIVE FUNCTIONS
// ============================================================================

// ObjectiveFunction calculates a fitness score from backtest metrics.
// Higher is better.
type ObjectiveFunction func(*BacktestResult) float64

// FitnessWeights weights the components of the default fitness
type FitnessWeights struct {
	ProfitFactor float64 `mapstructure:"profit_factor" yaml:"profit_factor"`
	WinRate      float64 `mapstructure:"win_rate" yaml:"win_rate"`
	Drawdown     float64 `mapstructure:"drawdown" yaml:"drawdown"`
}

// DefaultFitnessWeights is 40% profit factor, 30% win rate, 30% drawdown
var DefaultFitnessWeights = FitnessWeights{
	ProfitFactor: 0.4,
	WinRate:      0.3,
	Drawdown:     0.3,
}

// Objective builds an ObjectiveFunction from the weights
func (w FitnessWeights) Objective() ObjectiveFunction {
	return func(r *BacktestResult) float64 {
		if r == nil {
			return math.Inf(-1)
		}
		return w.ProfitFactor*r.ProfitFactor + w.WinRate*r.WinRate + w.Drawdown*(1-r.MaxDrawdown)
	}
}

// Predefined objective functions
var (
	// DefaultFitness is profitFactor*0.4 + winRate*0.3 + (1-maxDrawdown)*0.3
	DefaultFitness ObjectiveFunction = DefaultFitnessWeights.Objective()

	// MaximizeSharpeRatio optimizes for risk-adjusted returns
	MaximizeSharpeRatio ObjectiveFunction = func(r *BacktestResult) float64 {
		return r.SharpeRatio
	}

	// MaximizeSortinoRatio optimizes for downside risk-adjusted returns
	MaximizeSortinoRatio ObjectiveFunction = func(r *BacktestResult) float64 {
		return r.SortinoRatio
	}

	// MaximizeCalmarRatio optimizes for return/max drawdown
	MaximizeCalmarRatio ObjectiveFunction = func(r *BacktestResult) float64 {
		return r.CalmarRatio
	}

	// MaximizeProfitFactor optimizes for profit/loss ratio
	MaximizeProfitFactor ObjectiveFunction = func(r *BacktestResult) float64 {
		return r.ProfitFactor
	}

	// MinimizeDrawdown optimizes for low drawdown
	MinimizeDrawdown ObjectiveFunction = func(r *BacktestResult) float64 {
		return -r.MaxDrawdown // Negative because we minimize
	}

	// BalancedObjective combines multiple metrics
	BalancedObjective ObjectiveFunction = func(r *BacktestResult) float64 {
		// Weighted combination: 40% Sharpe, 30% Win Rate, 30% Calmar
		sharpe := math.Max(0, r.SharpeRatio)
		calmar := math.Max(0, r.CalmarRatio)
		return 0.4*sharpe + 0.3*r.WinRate + 0.3*calmar
	}
)

// objectives maps names accepted in configuration to objective functions
var objectives = map[string]ObjectiveFunction{
	"default":  DefaultFitness,
	"sharpe":   MaximizeSharpeRatio,
	"sortino":  MaximizeSortinoRatio,
	"calmar":   MaximizeCalmarRatio,
	"profit":   MaximizeProfitFactor,
	"drawdown": MinimizeDrawdown,
	"balanced": BalancedObjective,
}

// ObjectiveByName returns a predefined objective function.
// An empty name selects DefaultFitness.
func ObjectiveByName(name string) (ObjectiveFunction, bool) {
	if name == "" {
		return DefaultFitness, true
	}
	fn, ok := objectives[name]
	return fn, ok
}

// ObjectiveNames lists the names accepted by ObjectiveByName
func ObjectiveNames() []string {
	return []string{"default", "sharpe", "sortino", "calmar", "profit", "drawdown", "balanced"}
}
