package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratlab/internal/risk"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/montecarlo"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
	"github.com/ajitpratap0/stratlab/pkg/walkforward"
)

// report is the rendered outcome of one mode
type report interface {
	Text() string
	YAML() ([]byte, error)
}

// sizingAdvice is Kelly and fixed-fraction sizing for a trade history
type sizingAdvice struct {
	Stats          *risk.TradingStats `yaml:"stats"`
	KellyPercent   float64            `yaml:"kelly_percent"`
	Recommendation string             `yaml:"recommendation"`
	KellySize      string             `yaml:"kelly_size"`
	RiskPerTrade   string             `yaml:"risk_per_trade,omitempty"`
	MaxLoss        string             `yaml:"max_loss,omitempty"`
	Generated      time.Time          `yaml:"generated"`
}

func (s *sizingAdvice) text(b *strings.Builder) {
	fmt.Fprintf(b, "\nPOSITION SIZING\n---------------\n")
	fmt.Fprintf(b, "Kelly Fraction:   %.2f%% (%s)\n", s.KellyPercent*100, s.Recommendation)
	fmt.Fprintf(b, "Kelly Size:       $%s\n", s.KellySize)
	if s.RiskPerTrade != "" {
		fmt.Fprintf(b, "Risk Per Trade:   $%s\n", s.RiskPerTrade)
		fmt.Fprintf(b, "Max Loss:         $%s\n", s.MaxLoss)
	}
}

// withoutTrades drops the trade list from a result for compact output
func withoutTrades(r *backtest.BacktestResult) *backtest.BacktestResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Trades = nil
	return &c
}

// ============================================================================
// OPTIMIZE
// ============================================================================

type optimizeReport struct {
	RunID    string
	Strategy *backtest.Strategy
	Result   *optimize.Result
	Best     *backtest.BacktestResult
	Sizing   *sizingAdvice
}

func (r *optimizeReport) YAML() ([]byte, error) {
	return yaml.Marshal(struct {
		RunID          string                   `yaml:"run_id"`
		Strategy       string                   `yaml:"strategy"`
		Method         optimize.Kind            `yaml:"method"`
		Seed           int64                    `yaml:"seed"`
		BestParameters backtest.ParameterSet    `yaml:"best_parameters"`
		BestFitness    float64                  `yaml:"best_fitness"`
		Evaluations    int                      `yaml:"evaluations"`
		Iterations     int                      `yaml:"iterations"`
		Duration       time.Duration            `yaml:"duration"`
		Performance    *backtest.BacktestResult `yaml:"performance"`
		Sizing         *sizingAdvice            `yaml:"sizing"`
	}{
		RunID:          r.RunID,
		Strategy:       r.Strategy.Name,
		Method:         r.Result.Method,
		Seed:           r.Result.Seed,
		BestParameters: r.Result.BestParameters,
		BestFitness:    r.Result.BestFitness,
		Evaluations:    r.Result.Evaluations,
		Iterations:     r.Result.Iterations,
		Duration:       r.Result.Duration,
		Performance:    withoutTrades(r.Best),
		Sizing:         r.Sizing,
	})
}

func (r *optimizeReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "OPTIMIZATION %s (%s)\n", r.RunID, r.Result.Method)
	fmt.Fprintf(&b, "Strategy:         %s\n", r.Strategy.Name)
	fmt.Fprintf(&b, "Best Parameters:  %s\n", backtest.FormatParameters(r.Strategy, r.Result.BestParameters))
	fmt.Fprintf(&b, "Best Fitness:     %.4f\n", r.Result.BestFitness)
	fmt.Fprintf(&b, "Evaluations:      %d in %s\n", r.Result.Evaluations, r.Result.Duration.Round(time.Millisecond))
	b.WriteString(backtest.GenerateReport(r.Best))
	fmt.Fprintf(&b, "Sharpe:           %s\n", risk.SharpeInterpretation(r.Best.SharpeRatio))
	fmt.Fprintf(&b, "Drawdown:         %s\n", risk.DrawdownInterpretation(r.Best.MaxDrawdown))
	r.Sizing.text(&b)
	return b.String()
}

// ============================================================================
// MONTE CARLO
// ============================================================================

type monteCarloReport struct {
	Strategy   *backtest.Strategy
	Parameters backtest.ParameterSet
	Trades     int
	Result     *montecarlo.EnhancedResult
	Sizing     *sizingAdvice
}

func (r *monteCarloReport) YAML() ([]byte, error) {
	return yaml.Marshal(struct {
		Strategy   string                     `yaml:"strategy"`
		Parameters backtest.ParameterSet      `yaml:"parameters"`
		Trades     int                        `yaml:"trades"`
		Result     *montecarlo.EnhancedResult `yaml:"result"`
		Sizing     *sizingAdvice              `yaml:"sizing"`
	}{r.Strategy.Name, r.Parameters, r.Trades, r.Result, r.Sizing})
}

func (r *monteCarloReport) Text() string {
	res := r.Result
	ci := res.ConfidenceIntervals

	var b strings.Builder
	fmt.Fprintf(&b, "MONTE CARLO SIMULATION\n")
	fmt.Fprintf(&b, "Strategy:         %s (%s)\n", r.Strategy.Name, backtest.FormatParameters(r.Strategy, r.Parameters))
	fmt.Fprintf(&b, "Trades:           %d\n", r.Trades)
	fmt.Fprintf(&b, "Simulations:      %d at %.0f%% confidence (seed %d)\n", res.Simulations, res.ConfidenceLevel*100, res.Seed)

	fmt.Fprintf(&b, "\nCONFIDENCE INTERVALS\n--------------------\n")
	fmt.Fprintf(&b, "Win Rate:         %.2f%% .. %.2f%%\n", ci.WinRate.Lower*100, ci.WinRate.Upper*100)
	fmt.Fprintf(&b, "Max Drawdown:     %.2f%% .. %.2f%%\n", ci.MaxDrawdown.Lower*100, ci.MaxDrawdown.Upper*100)
	fmt.Fprintf(&b, "Final Balance:    $%.2f .. $%.2f\n", ci.FinalBalance.Lower, ci.FinalBalance.Upper)
	fmt.Fprintf(&b, "Sharpe Ratio:     %.2f .. %.2f\n", ci.SharpeRatio.Lower, ci.SharpeRatio.Upper)
	fmt.Fprintf(&b, "Profit Factor:    %.2f .. %.2f\n", ci.ProfitFactor.Lower, ci.ProfitFactor.Upper)

	fmt.Fprintf(&b, "\nTAIL RISK\n---------\n")
	fmt.Fprintf(&b, "VaR 95/99:        %.2f%% / %.2f%% (%s)\n", res.Risk.VaR95*100, res.Risk.VaR99*100, risk.VaRInterpretation(res.Risk.VaR95))
	fmt.Fprintf(&b, "CVaR 95/99:       %.2f%% / %.2f%%\n", res.Risk.CVaR95*100, res.Risk.CVaR99*100)

	fmt.Fprintf(&b, "\nSTREAKS\n-------\n")
	fmt.Fprintf(&b, "Max Win/Loss:     %d / %d\n", res.Streaks.MaxWinStreak, res.Streaks.MaxLossStreak)
	fmt.Fprintf(&b, "Avg Win/Loss:     %.2f / %.2f\n", res.Streaks.AvgWinStreak, res.Streaks.AvgLossStreak)

	fmt.Fprintf(&b, "\nRECOVERY\n--------\n")
	fmt.Fprintf(&b, "Drawdowns:        %d\n", res.Recovery.Drawdowns)
	fmt.Fprintf(&b, "Recovery Prob.:   %.2f%%\n", res.Recovery.RecoveryProbability*100)
	fmt.Fprintf(&b, "Avg/Max Trades:   %.1f / %d\n", res.Recovery.AverageRecoveryTime, res.Recovery.MaxRecoveryTime)

	r.Sizing.text(&b)
	return b.String()
}

// ============================================================================
// WALK-FORWARD
// ============================================================================

type walkForwardReport struct {
	Strategy   *backtest.Strategy
	Parameters backtest.ParameterSet
	WindowDays int
	Result     *walkforward.Result
}

func (r *walkForwardReport) YAML() ([]byte, error) {
	windows := make([]walkforward.WindowResult, len(r.Result.Windows))
	for i, w := range r.Result.Windows {
		w.Performance = withoutTrades(w.Performance)
		windows[i] = w
	}
	return yaml.Marshal(struct {
		Strategy   string                     `yaml:"strategy"`
		Parameters backtest.ParameterSet      `yaml:"parameters"`
		WindowDays int                        `yaml:"window_days"`
		Windows    []walkforward.WindowResult `yaml:"windows"`
		Aggregate  *backtest.BacktestResult   `yaml:"aggregate"`
		Duration   time.Duration              `yaml:"duration"`
	}{r.Strategy.Name, r.Parameters, r.WindowDays, windows, withoutTrades(r.Result.Aggregate), r.Result.Duration})
}

func (r *walkForwardReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "WALK-FORWARD ANALYSIS\n")
	fmt.Fprintf(&b, "Strategy:         %s\n", r.Strategy.Name)
	fmt.Fprintf(&b, "Windows:          %d x %d days\n\n", len(r.Result.Windows), r.WindowDays)

	fmt.Fprintf(&b, "%-3s %-10s %-10s %8s %7s %8s  %s\n", "#", "FROM", "TO", "IS-FIT", "TRADES", "OOS-WR", "PARAMETERS")
	for i, w := range r.Result.Windows {
		fmt.Fprintf(&b, "%-3d %-10s %-10s %8.4f %7d %7.2f%%  %s\n",
			i+1,
			w.Period.Start.Format("2006-01-02"),
			w.Period.End.Format("2006-01-02"),
			w.InSampleFitness,
			w.Performance.TotalTrades,
			w.Performance.WinRate*100,
			backtest.FormatParameters(r.Strategy, w.Parameters),
		)
	}

	b.WriteString("\nAGGREGATE OUT-OF-SAMPLE")
	b.WriteString(backtest.GenerateReport(r.Result.Aggregate))
	return b.String()
}

// ============================================================================
// SENSITIVITY
// ============================================================================

type sensitivityReport struct {
	Result *optimize.SensitivityReport
}

func (r *sensitivityReport) YAML() ([]byte, error) {
	return yaml.Marshal(r.Result)
}

func (r *sensitivityReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SENSITIVITY ANALYSIS\n")
	fmt.Fprintf(&b, "Strategy:         %s\n", r.Result.Strategy)
	fmt.Fprintf(&b, "Evaluations:      %d in %s\n", r.Result.Evaluations, r.Result.Duration.Round(time.Millisecond))

	for _, p := range r.Result.Parameters {
		fmt.Fprintf(&b, "\n%s\n%s\n", strings.ToUpper(p.Parameter), strings.Repeat("-", len(p.Parameter)))
		fmt.Fprintf(&b, "%12s %9s %9s %9s %9s\n", "VALUE", "WIN%", "PF", "DD%", "SHARPE")
		for _, pt := range p.Points {
			fmt.Fprintf(&b, "%12.4f %9.2f %9.2f %9.2f %9.2f\n",
				pt.Value, pt.WinRate*100, pt.ProfitFactor, pt.MaxDrawdown*100, pt.SharpeRatio)
		}

		metrics := make([]string, 0, len(p.Correlations))
		for m := range p.Correlations {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		b.WriteString("correlation:")
		for _, m := range metrics {
			fmt.Fprintf(&b, " %s=%.3f", m, p.Correlations[m])
		}
		b.WriteString("\n")
	}
	return b.String()
}
