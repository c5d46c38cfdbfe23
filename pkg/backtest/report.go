// Text report generation for backtest results
package backtest

import (
	"fmt"
	"strings"
)

// ============================================================================
// REPORT GENERATOR
// ============================================================================

// GenerateReport creates a human-readable performance report
func GenerateReport(result *BacktestResult) string {
	if result == nil {
		return "no backtest result\n"
	}

	returnPct := 0.0
	if result.InitialBalance != 0 {
		returnPct = (result.FinalBalance - result.InitialBalance) / result.InitialBalance * 100
	}

	report := fmt.Sprintf(`
================================================================================
BACKTEST PERFORMANCE REPORT
================================================================================

OVERVIEW
--------
Initial Balance:  $%.2f
Final Balance:    $%.2f
Total Return:     $%.2f (%.2f%%)

RISK METRICS
------------
Max Drawdown:     %.2f%%
Sharpe Ratio:     %.2f
Sortino Ratio:    %.2f
Calmar Ratio:     %.2f

TRADE STATISTICS
----------------
Total Trades:     %d
Win Rate:         %.2f%%
Average Win:      $%.2f
Average Loss:     $%.2f
Profit Factor:    %.2f
Expectancy:       $%.2f per trade
Longest Win Run:  %d
Longest Loss Run: %d

================================================================================
`,
		result.InitialBalance,
		result.FinalBalance,
		result.FinalBalance-result.InitialBalance,
		returnPct,
		result.MaxDrawdown*100,
		result.SharpeRatio,
		result.SortinoRatio,
		result.CalmarRatio,
		result.TotalTrades,
		result.WinRate*100,
		result.AverageWin,
		result.AverageLoss,
		result.ProfitFactor,
		result.Expectancy,
		result.ConsecutiveWins,
		result.ConsecutiveLosses,
	)

	return report
}

// FormatParameters renders a parameter set in strategy order
func FormatParameters(s *Strategy, ps ParameterSet) string {
	var b strings.Builder
	for i, p := range s.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%.4f", p.Name, ps[p.Name])
	}
	return b.String()
}
