package optimize

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// Metric names reported by sensitivity analysis
const (
	MetricWinRate      = "win_rate"
	MetricProfitFactor = "profit_factor"
	MetricMaxDrawdown  = "max_drawdown"
	MetricSharpeRatio  = "sharpe_ratio"
)

// ============================================================================
// SENSITIVITY ANALYSIS
// ============================================================================

// SensitivityConfig configures a one-at-a-time parameter sweep
type SensitivityConfig struct {
	// Samples is the number of evenly spaced values per parameter
	Samples     int `mapstructure:"samples" yaml:"samples"`
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
}

// SensitivityPoint is the outcome of one swept value
type SensitivityPoint struct {
	Value        float64 `json:"value" yaml:"value"`
	WinRate      float64 `json:"win_rate" yaml:"win_rate"`
	ProfitFactor float64 `json:"profit_factor" yaml:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown" yaml:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"`
}

// ParameterSensitivity is the sweep of one parameter
type ParameterSensitivity struct {
	Parameter string             `json:"parameter" yaml:"parameter"`
	Points    []SensitivityPoint `json:"points" yaml:"points"`
	// Pearson correlation of the swept value against each metric
	Correlations map[string]float64 `json:"correlations" yaml:"correlations"`
}

// SensitivityReport holds the sweep of every parameter
type SensitivityReport struct {
	Strategy    string                 `json:"strategy" yaml:"strategy"`
	Parameters  []ParameterSensitivity `json:"parameters" yaml:"parameters"`
	Evaluations int                    `json:"evaluations" yaml:"evaluations"`
	Duration    time.Duration          `json:"duration" yaml:"duration"`
}

// AnalyzeSensitivity sweeps each parameter over evenly spaced values with the
// others held at their current value. Evaluation failures abort the analysis.
func AnalyzeSensitivity(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc, cfg SensitivityConfig) (*SensitivityReport, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Samples < 2 {
		cfg.Samples = 10
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}

	start := time.Now()
	defaults := strategy.Defaults()
	report := &SensitivityReport{Strategy: strategy.Name}

	log.Info().
		Str("strategy", strategy.Name).
		Int("parameters", len(strategy.Parameters)).
		Int("samples", cfg.Samples).
		Msg("Starting sensitivity analysis")

	for _, param := range strategy.Parameters {
		values := linspace(param, cfg.Samples)
		points := make([]SensitivityPoint, len(values))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Parallelism)

		for i, v := range values {
			params := defaults.Clone()
			params[param.Name] = v

			g.Go(func() error {
				result, err := evaluate(gctx, params)
				if err == nil && result == nil {
					err = ErrNilResult
				}
				if err != nil {
					return fmt.Errorf("sensitivity of %q at %v: %w", param.Name, v, err)
				}
				points[i] = SensitivityPoint{
					Value:        v,
					WinRate:      result.WinRate,
					ProfitFactor: result.ProfitFactor,
					MaxDrawdown:  result.MaxDrawdown,
					SharpeRatio:  result.SharpeRatio,
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		report.Evaluations += len(values)
		report.Parameters = append(report.Parameters, ParameterSensitivity{
			Parameter:    param.Name,
			Points:       points,
			Correlations: correlations(points),
		})
	}

	report.Duration = time.Since(start)

	log.Info().
		Int("evaluations", report.Evaluations).
		Dur("duration", report.Duration).
		Msg("Sensitivity analysis complete")

	return report, nil
}

// linspace returns n evenly spaced values from min to max inclusive
func linspace(p backtest.StrategyParameter, n int) []float64 {
	values := make([]float64, n)
	step := p.Range() / float64(n-1)
	for i := range values {
		values[i] = p.Clamp(p.Min + step*float64(i))
	}
	values[n-1] = p.Max
	return values
}

func correlations(points []SensitivityPoint) map[string]float64 {
	x := make([]float64, len(points))
	series := map[string][]float64{
		MetricWinRate:      make([]float64, len(points)),
		MetricProfitFactor: make([]float64, len(points)),
		MetricMaxDrawdown:  make([]float64, len(points)),
		MetricSharpeRatio:  make([]float64, len(points)),
	}
	for i, pt := range points {
		x[i] = pt.Value
		series[MetricWinRate][i] = pt.WinRate
		series[MetricProfitFactor][i] = pt.ProfitFactor
		series[MetricMaxDrawdown][i] = pt.MaxDrawdown
		series[MetricSharpeRatio][i] = pt.SharpeRatio
	}

	out := make(map[string]float64, len(series))
	for name, y := range series {
		out[name] = backtest.Correlation(x, y)
	}
	return out
}
