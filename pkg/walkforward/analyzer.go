// Package walkforward re-optimizes a strategy on rolling in-sample windows and
// scores it only on the unseen period that follows each one
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

// Defaults
const (
	DefaultWindowDays     = 90
	DefaultInSampleRatio  = 0.7
	DefaultIterations     = 50
	DefaultInitialBalance = 10000.0
)

var (
	ErrInvalidRange    = errors.New("end date must be after start date")
	ErrNoWindows       = errors.New("time range shorter than one window")
	ErrInvalidSettings = errors.New("invalid walk-forward settings")
)

// ============================================================================
// WINDOWS
// ============================================================================

// Window is one in-sample/out-of-sample split of the timeline.
// In-sample covers [InSampleStart, InSampleEnd); out-of-sample covers
// [OutSampleStart, OutSampleEnd), closed at OutSampleEnd for the last window.
type Window struct {
	Index          int              `json:"index" yaml:"index"`
	InSampleStart  time.Time        `json:"in_sample_start" yaml:"in_sample_start"`
	InSampleEnd    time.Time        `json:"in_sample_end" yaml:"in_sample_end"`
	OutSampleStart time.Time        `json:"out_sample_start" yaml:"out_sample_start"`
	OutSampleEnd   time.Time        `json:"out_sample_end" yaml:"out_sample_end"`
	InSample       []backtest.Trade `json:"-" yaml:"-"`
	OutSample      []backtest.Trade `json:"-" yaml:"-"`
}

// Period is a half-open time range
type Period struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// WindowResult records the optimization and out-of-sample score of one window
type WindowResult struct {
	Period          Period                   `json:"period" yaml:"period"`
	Parameters      backtest.ParameterSet    `json:"parameters" yaml:"parameters"`
	InSampleFitness float64                  `json:"in_sample_fitness" yaml:"in_sample_fitness"`
	InSampleTrades  int                      `json:"in_sample_trades" yaml:"in_sample_trades"`
	Performance     *backtest.BacktestResult `json:"performance" yaml:"performance"`
}

// Result aggregates every window.
// Aggregate is computed over the concatenated out-of-sample trades rather
// than averaged per window.
type Result struct {
	Windows   []WindowResult           `json:"windows" yaml:"windows"`
	Aggregate *backtest.BacktestResult `json:"aggregate" yaml:"aggregate"`
	Duration  time.Duration            `json:"duration" yaml:"duration"`
}

// EvaluatorFactory builds the evaluation function used to optimize one window.
// Implementations typically replay the strategy over the window's in-sample period.
type EvaluatorFactory func(window Window) optimize.EvaluateFunc

// ============================================================================
// ANALYZER
// ============================================================================

// Analyzer runs walk-forward analysis
type Analyzer struct {
	Strategy        *backtest.Strategy
	WindowDays      int
	InSampleRatio   float64
	Iterations      int
	Optimizer       optimize.Kind
	OptimizerConfig optimize.Config
	InitialBalance  float64
}

// NewAnalyzer creates an analyzer with default settings and the genetic optimizer
func NewAnalyzer(strategy *backtest.Strategy) *Analyzer {
	return &Analyzer{
		Strategy:        strategy,
		WindowDays:      DefaultWindowDays,
		InSampleRatio:   DefaultInSampleRatio,
		Iterations:      DefaultIterations,
		Optimizer:       optimize.KindGenetic,
		OptimizerConfig: optimize.DefaultConfig(),
		InitialBalance:  DefaultInitialBalance,
	}
}

func (a *Analyzer) validate() error {
	var errs []error
	if a.WindowDays <= 0 {
		errs = append(errs, fmt.Errorf("%w: window days must be positive, got %d", ErrInvalidSettings, a.WindowDays))
	}
	if !(a.InSampleRatio > 0 && a.InSampleRatio < 1) {
		errs = append(errs, fmt.Errorf("%w: in-sample ratio must be in (0, 1), got %v", ErrInvalidSettings, a.InSampleRatio))
	}
	if a.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidSettings, a.Iterations))
	}
	if !(a.InitialBalance > 0) {
		errs = append(errs, fmt.Errorf("%w: initial balance must be positive, got %v", ErrInvalidSettings, a.InitialBalance))
	}
	return errors.Join(errs...)
}

// GenerateWindows slices [start, end] into windows of WindowDays.
// Consecutive windows advance by the out-of-sample length so every
// out-of-sample period starts where the previous one ended. In-sample periods
// of consecutive windows therefore overlap whenever the in-sample length
// exceeds the out-of-sample length. The last out-of-sample period is extended
// to end. Trades are assigned by timestamp.
func (a *Analyzer) GenerateWindows(trades []backtest.Trade, start, end time.Time) ([]Window, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	size := time.Duration(a.WindowDays) * 24 * time.Hour
	inSample := time.Duration(float64(size) * a.InSampleRatio)
	step := size - inSample

	var windows []Window
	for current := start; !current.Add(size).After(end); current = current.Add(step) {
		windows = append(windows, Window{
			Index:          len(windows),
			InSampleStart:  current,
			InSampleEnd:    current.Add(inSample),
			OutSampleStart: current.Add(inSample),
			OutSampleEnd:   current.Add(size),
		})
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: %s available, %s required", ErrNoWindows, end.Sub(start), size)
	}
	windows[len(windows)-1].OutSampleEnd = end

	last := len(windows) - 1
	for i := range windows {
		w := &windows[i]
		w.InSample = filterTrades(trades, w.InSampleStart, w.InSampleEnd, false)
		w.OutSample = filterTrades(trades, w.OutSampleStart, w.OutSampleEnd, i == last)
	}

	return windows, nil
}

// Analyze optimizes each window on its in-sample trades and scores the chosen
// parameters on its out-of-sample trades. Windows run sequentially.
func (a *Analyzer) Analyze(ctx context.Context, trades []backtest.Trade, start, end time.Time, factory EvaluatorFactory) (*Result, error) {
	started := time.Now()

	windows, err := a.GenerateWindows(trades, start, end)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("strategy", a.Strategy.Name).
		Int("windows", len(windows)).
		Int("window_days", a.WindowDays).
		Float64("in_sample_ratio", a.InSampleRatio).
		Str("optimizer", string(a.Optimizer)).
		Msg("Starting walk-forward analysis")

	cfg := a.OptimizerConfig.WithIterations(a.Iterations)

	result := &Result{Windows: make([]WindowResult, 0, len(windows))}
	var outOfSample []backtest.Trade

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Info().
			Int("window", w.Index+1).
			Int("total", len(windows)).
			Time("train_start", w.InSampleStart).
			Time("train_end", w.InSampleEnd).
			Time("test_start", w.OutSampleStart).
			Time("test_end", w.OutSampleEnd).
			Int("train_trades", len(w.InSample)).
			Int("test_trades", len(w.OutSample)).
			Msg("Processing walk-forward window")

		opt, err := optimize.Run(ctx, a.Optimizer, cfg, a.Strategy, factory(w))
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", w.Index, err)
		}

		performance := backtest.CalculateMetrics(w.OutSample, a.InitialBalance)
		result.Windows = append(result.Windows, WindowResult{
			Period:          Period{Start: w.OutSampleStart, End: w.OutSampleEnd},
			Parameters:      opt.BestParameters,
			InSampleFitness: opt.BestFitness,
			InSampleTrades:  len(w.InSample),
			Performance:     performance,
		})
		outOfSample = append(outOfSample, w.OutSample...)

		metrics.RecordWalkForwardWindow()

		log.Info().
			Int("window", w.Index+1).
			Float64("in_sample_score", opt.BestFitness).
			Float64("out_sample_win_rate", performance.WinRate).
			Float64("out_sample_profit_factor", performance.ProfitFactor).
			Msg("Walk-forward window complete")
	}

	result.Aggregate = backtest.CalculateMetrics(outOfSample, a.InitialBalance)
	result.Duration = time.Since(started)

	log.Info().
		Int("windows", len(result.Windows)).
		Int("out_sample_trades", len(outOfSample)).
		Float64("aggregate_profit_factor", result.Aggregate.ProfitFactor).
		Dur("duration", result.Duration).
		Msg("Walk-forward analysis complete")

	return result, nil
}

// filterTrades returns trades with start <= timestamp < end, or <= end when closed
func filterTrades(trades []backtest.Trade, start, end time.Time, closed bool) []backtest.Trade {
	var out []backtest.Trade
	for _, t := range trades {
		if t.Timestamp.Before(start) {
			continue
		}
		if t.Timestamp.Before(end) || (closed && t.Timestamp.Equal(end)) {
			out = append(out, t)
		}
	}
	return out
}
