// Package montecarlo resamples a fixed trade set to characterize the
// distribution of performance metrics
package montecarlo

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// Defaults
const (
	DefaultSimulations     = 1000
	DefaultConfidenceLevel = 0.95
	DefaultParallelism     = 4
)

var (
	ErrInvalidConfidence = errors.New("confidence level must be in (0, 1)")
	ErrInvalidBalance    = errors.New("initial balance must be positive")
)

// ============================================================================
// RESULT TYPES
// ============================================================================

// Interval is a two-sided confidence interval
type Interval struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// ConfidenceIntervals holds one interval per headline metric
type ConfidenceIntervals struct {
	WinRate      Interval `json:"win_rate" yaml:"win_rate"`
	MaxDrawdown  Interval `json:"max_drawdown" yaml:"max_drawdown"`
	FinalBalance Interval `json:"final_balance" yaml:"final_balance"`
	SharpeRatio  Interval `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	ProfitFactor Interval `json:"profit_factor" yaml:"profit_factor"`
}

// Distributions holds the per-simulation value of each metric, in simulation order
type Distributions struct {
	WinRates      []float64 `json:"win_rates" yaml:"win_rates"`
	MaxDrawdowns  []float64 `json:"max_drawdowns" yaml:"max_drawdowns"`
	FinalBalances []float64 `json:"final_balances" yaml:"final_balances"`
	SharpeRatios  []float64 `json:"sharpe_ratios" yaml:"sharpe_ratios"`
	ProfitFactors []float64 `json:"profit_factors" yaml:"profit_factors"`
}

// Result is the outcome of a Monte Carlo run
type Result struct {
	Simulations         int                 `json:"simulations" yaml:"simulations"`
	ConfidenceLevel     float64             `json:"confidence_level" yaml:"confidence_level"`
	Seed                int64               `json:"seed" yaml:"seed"`
	ConfidenceIntervals ConfidenceIntervals `json:"confidence_intervals" yaml:"confidence_intervals"`
	Distributions       Distributions       `json:"distributions" yaml:"-"`
	Duration            time.Duration       `json:"duration" yaml:"duration"`
}

// ============================================================================
// SIMULATOR
// ============================================================================

// Simulator shuffles trade order and recomputes metrics for every permutation.
// Zero fields take their defaults; a zero Seed uses the current time.
type Simulator struct {
	Simulations     int     `mapstructure:"simulations" yaml:"simulations"`
	ConfidenceLevel float64 `mapstructure:"confidence_level" yaml:"confidence_level"`
	Seed            int64   `mapstructure:"seed" yaml:"seed"`
	Parallelism     int     `mapstructure:"parallelism" yaml:"parallelism"`
}

// NewSimulator creates a simulator with default settings
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		Simulations:     DefaultSimulations,
		ConfidenceLevel: DefaultConfidenceLevel,
		Seed:            seed,
		Parallelism:     DefaultParallelism,
	}
}

// run holds the permuted sequences of one simulation batch
type run struct {
	sim     Simulator
	seed    int64
	results []*backtest.BacktestResult
	orders  [][]backtest.Trade
}

// Simulate runs the configured number of shuffles.
// Permutations are drawn from one seeded source so results are reproducible;
// metric computation is spread over Parallelism workers.
func (s *Simulator) Simulate(trades []backtest.Trade, initialBalance float64) (*Result, error) {
	start := time.Now()
	r, err := s.execute(trades, initialBalance)
	if err != nil {
		return nil, err
	}
	return r.summarize(start), nil
}

func (s *Simulator) withDefaults() Simulator {
	sim := *s
	if sim.Simulations <= 0 {
		sim.Simulations = DefaultSimulations
	}
	if sim.ConfidenceLevel == 0 {
		sim.ConfidenceLevel = DefaultConfidenceLevel
	}
	if sim.Parallelism <= 0 {
		sim.Parallelism = DefaultParallelism
	}
	return sim
}

func (s *Simulator) execute(trades []backtest.Trade, initialBalance float64) (*run, error) {
	sim := s.withDefaults()
	if !(sim.ConfidenceLevel > 0 && sim.ConfidenceLevel < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, sim.ConfidenceLevel)
	}
	if !(initialBalance > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidBalance, initialBalance)
	}

	seed := sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- Non-cryptographic use: resampling must be reproducible

	log.Info().
		Int("trades", len(trades)).
		Int("simulations", sim.Simulations).
		Float64("confidence_level", sim.ConfidenceLevel).
		Int64("seed", seed).
		Msg("Starting Monte Carlo simulation")

	r := &run{
		sim:     sim,
		seed:    seed,
		results: make([]*backtest.BacktestResult, sim.Simulations),
		orders:  make([][]backtest.Trade, sim.Simulations),
	}
	for i := range r.orders {
		r.orders[i] = shuffle(rng, trades)
	}

	var g errgroup.Group
	g.SetLimit(sim.Parallelism)
	for i, order := range r.orders {
		g.Go(func() error {
			r.results[i] = backtest.CalculateMetrics(order, initialBalance)
			return nil
		})
	}
	_ = g.Wait()

	metrics.RecordMonteCarlo(sim.Simulations)
	return r, nil
}

func (r *run) summarize(start time.Time) *Result {
	n := len(r.results)
	d := Distributions{
		WinRates:      make([]float64, n),
		MaxDrawdowns:  make([]float64, n),
		FinalBalances: make([]float64, n),
		SharpeRatios:  make([]float64, n),
		ProfitFactors: make([]float64, n),
	}
	for i, res := range r.results {
		d.WinRates[i] = res.WinRate
		d.MaxDrawdowns[i] = res.MaxDrawdown
		d.FinalBalances[i] = res.FinalBalance
		d.SharpeRatios[i] = res.SharpeRatio
		d.ProfitFactors[i] = res.ProfitFactor
	}

	cl := r.sim.ConfidenceLevel
	result := &Result{
		Simulations:     n,
		ConfidenceLevel: cl,
		Seed:            r.seed,
		ConfidenceIntervals: ConfidenceIntervals{
			WinRate:      ConfidenceInterval(d.WinRates, cl),
			MaxDrawdown:  ConfidenceInterval(d.MaxDrawdowns, cl),
			FinalBalance: ConfidenceInterval(d.FinalBalances, cl),
			SharpeRatio:  ConfidenceInterval(d.SharpeRatios, cl),
			ProfitFactor: ConfidenceInterval(d.ProfitFactors, cl),
		},
		Distributions: d,
		Duration:      time.Since(start),
	}

	log.Info().
		Float64("final_balance_lower", result.ConfidenceIntervals.FinalBalance.Lower).
		Float64("final_balance_upper", result.ConfidenceIntervals.FinalBalance.Upper).
		Float64("max_drawdown_upper", result.ConfidenceIntervals.MaxDrawdown.Upper).
		Dur("duration", result.Duration).
		Msg("Monte Carlo simulation complete")

	return result
}

// ConfidenceInterval returns sorted[⌊(1−cl)/2·n⌋] and sorted[⌊(1+cl)/2·n⌋],
// each index clamped to the last element
func ConfidenceInterval(values []float64, confidenceLevel float64) Interval {
	sorted := backtest.SortedCopy(values)
	return Interval{
		Lower: backtest.Percentile(sorted, (1-confidenceLevel)/2),
		Upper: backtest.Percentile(sorted, (1+confidenceLevel)/2),
	}
}

// shuffle returns a Fisher-Yates permutation of trades; the input is not modified
func shuffle(rng *rand.Rand, trades []backtest.Trade) []backtest.Trade {
	out := make([]backtest.Trade, len(trades))
	copy(out, trades)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
