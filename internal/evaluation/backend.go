package evaluation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cinar/indicator/v2/trend"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
	"github.com/ajitpratap0/stratlab/pkg/walkforward"
)

// Parameter names understood by the synthetic backend
const (
	ParamFastPeriod = "fast_period"
	ParamSlowPeriod = "slow_period"
	ParamThreshold  = "threshold"
)

// Synthetic market defaults
const (
	DefaultBars           = 1000
	DefaultStartPrice     = 100.0
	DefaultVolatility     = 0.02
	DefaultDrift          = 0.0002
	DefaultTradeAmount    = 1.0
	DefaultBarInterval    = 24 * time.Hour
	DefaultInitialBalance = 10000.0
)

// tradeNamespace derives deterministic trade IDs
var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("stratlab/synthetic"))

// BackendConfig describes the simulated market
type BackendConfig struct {
	Symbol         string        `mapstructure:"symbol" yaml:"symbol"`
	Bars           int           `mapstructure:"bars" yaml:"bars"`
	StartPrice     float64       `mapstructure:"start_price" yaml:"start_price"`
	Volatility     float64       `mapstructure:"volatility" yaml:"volatility"`
	Drift          float64       `mapstructure:"drift" yaml:"drift"`
	TradeAmount    float64       `mapstructure:"trade_amount" yaml:"trade_amount"`
	InitialBalance float64       `mapstructure:"initial_balance" yaml:"initial_balance"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	Start          time.Time     `mapstructure:"start" yaml:"start"`
	// Seed drives the price walk; 0 picks a time-based seed
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// DefaultBackendConfig returns a one-symbol daily market
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Symbol:         "BTC/USDT",
		Bars:           DefaultBars,
		StartPrice:     DefaultStartPrice,
		Volatility:     DefaultVolatility,
		Drift:          DefaultDrift,
		TradeAmount:    DefaultTradeAmount,
		InitialBalance: DefaultInitialBalance,
		Interval:       DefaultBarInterval,
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (c BackendConfig) withDefaults() BackendConfig {
	def := DefaultBackendConfig()
	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	if c.Bars <= 0 {
		c.Bars = def.Bars
	}
	if c.StartPrice <= 0 {
		c.StartPrice = def.StartPrice
	}
	if c.Volatility <= 0 {
		c.Volatility = def.Volatility
	}
	if c.TradeAmount <= 0 {
		c.TradeAmount = def.TradeAmount
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = def.InitialBalance
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Start.IsZero() {
		c.Start = def.Start
	}
	return c
}

// ============================================================================
// SYNTHETIC BACKEND
// ============================================================================

// SyntheticBackend backtests a long-only SMA crossover strategy against a
// seeded random-walk price series. The series is generated once, so
// evaluations are pure functions of the parameter set.
type SyntheticBackend struct {
	cfg    BackendConfig
	prices []float64
	times  []time.Time
}

// NewSyntheticBackend generates the price series
func NewSyntheticBackend(cfg BackendConfig) *SyntheticBackend {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- simulation only

	prices := make([]float64, cfg.Bars)
	times := make([]time.Time, cfg.Bars)
	price := cfg.StartPrice
	for i := range prices {
		prices[i] = price
		times[i] = cfg.Start.Add(time.Duration(i) * cfg.Interval)
		price *= math.Exp(cfg.Drift + cfg.Volatility*rng.NormFloat64())
	}

	log.Debug().
		Str("symbol", cfg.Symbol).
		Int("bars", cfg.Bars).
		Int64("seed", seed).
		Float64("last_price", prices[len(prices)-1]).
		Msg("Generated synthetic price series")

	return &SyntheticBackend{cfg: cfg, prices: prices, times: times}
}

// Config returns the effective backend configuration
func (b *SyntheticBackend) Config() BackendConfig {
	return b.cfg
}

// Prices returns a copy of the close series
func (b *SyntheticBackend) Prices() []float64 {
	out := make([]float64, len(b.prices))
	copy(out, b.prices)
	return out
}

// Start returns the timestamp of the first bar
func (b *SyntheticBackend) Start() time.Time {
	return b.times[0]
}

// End returns the timestamp just after the last bar
func (b *SyntheticBackend) End() time.Time {
	return b.times[len(b.times)-1].Add(b.cfg.Interval)
}

// Strategy returns the SMA crossover strategy definition with bounds that
// fit the generated series
func (b *SyntheticBackend) Strategy() *backtest.Strategy {
	return &backtest.Strategy{
		ID:          "sma-crossover",
		Name:        "SMA Crossover",
		Description: fmt.Sprintf("Long-only moving average crossover on %s", b.cfg.Symbol),
		IsActive:    true,
		Parameters: []backtest.StrategyParameter{
			{Name: ParamFastPeriod, Value: 10, Min: 2, Max: 50, Step: 1},
			{Name: ParamSlowPeriod, Value: 30, Min: 10, Max: 200, Step: 5},
			{Name: ParamThreshold, Value: 0, Min: 0, Max: 0.05, Step: 0.005},
		},
	}
}

// Trades runs the strategy over the full series
func (b *SyntheticBackend) Trades(ps backtest.ParameterSet) []backtest.Trade {
	return b.trades(ps, 0, len(b.prices))
}

// TradesBetween runs the strategy over bars in [start, end)
func (b *SyntheticBackend) TradesBetween(ps backtest.ParameterSet, start, end time.Time) []backtest.Trade {
	from, to := b.barRange(start, end)
	return b.trades(ps, from, to)
}

// Evaluate backtests the full series; it satisfies optimize.EvaluateFunc
func (b *SyntheticBackend) Evaluate(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return backtest.CalculateMetrics(b.Trades(ps), b.cfg.InitialBalance), nil
}

// EvaluatorBetween returns an evaluation function restricted to [start, end)
func (b *SyntheticBackend) EvaluatorBetween(start, end time.Time) optimize.EvaluateFunc {
	return func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return backtest.CalculateMetrics(b.TradesBetween(ps, start, end), b.cfg.InitialBalance), nil
	}
}

// WindowEvaluators returns a walk-forward factory that re-runs the strategy
// on each window's in-sample bars. wrap, when set, decorates every evaluator.
func (b *SyntheticBackend) WindowEvaluators(wrap func(walkforward.Window, optimize.EvaluateFunc) optimize.EvaluateFunc) walkforward.EvaluatorFactory {
	return func(w walkforward.Window) optimize.EvaluateFunc {
		eval := b.EvaluatorBetween(w.InSampleStart, w.InSampleEnd)
		if wrap != nil {
			eval = wrap(w, eval)
		}
		return eval
	}
}

func (b *SyntheticBackend) barRange(start, end time.Time) (int, int) {
	from, to := len(b.times), len(b.times)
	for i, t := range b.times {
		if from == len(b.times) && !t.Before(start) {
			from = i
		}
		if !t.Before(end) {
			to = i
			break
		}
	}
	if from > to {
		from = to
	}
	return from, to
}

// trades simulates the crossover over prices[from:to]
func (b *SyntheticBackend) trades(ps backtest.ParameterSet, from, to int) []backtest.Trade {
	fast, slow, threshold := b.signalParams(ps)
	prices := b.prices[from:to]
	if fast == slow || len(prices) < slow {
		return nil
	}

	fastMA := movingAverage(prices, fast)
	slowMA := movingAverage(prices, slow)
	fastOffset := len(prices) - len(fastMA)
	slowOffset := len(prices) - len(slowMA)

	var trades []backtest.Trade
	long := false
	for i := slowOffset; i < len(prices); i++ {
		f := fastMA[i-fastOffset]
		s := slowMA[i-slowOffset]

		switch {
		case !long && f > s*(1+threshold):
			trades = append(trades, b.fill(ps, from+i, backtest.SideBuy))
			long = true
		case long && f < s*(1-threshold):
			trades = append(trades, b.fill(ps, from+i, backtest.SideSell))
			long = false
		}
	}

	// Close the open position on the last bar
	if long {
		trades = append(trades, b.fill(ps, to-1, backtest.SideSell))
	}
	return trades
}

func (b *SyntheticBackend) fill(ps backtest.ParameterSet, bar int, side backtest.Side) backtest.Trade {
	name := fmt.Sprintf("%s|%d|%s|%v|%v|%v", b.cfg.Symbol, bar, side,
		ps[ParamFastPeriod], ps[ParamSlowPeriod], ps[ParamThreshold])
	return backtest.Trade{
		ID:        uuid.NewSHA1(tradeNamespace, []byte(name)).String(),
		Symbol:    b.cfg.Symbol,
		Side:      side,
		Price:     b.prices[bar],
		Amount:    b.cfg.TradeAmount,
		Timestamp: b.times[bar],
	}
}

// signalParams rounds the periods and orders them so fast <= slow.
// Missing values fall back to the strategy defaults.
func (b *SyntheticBackend) signalParams(ps backtest.ParameterSet) (fast, slow int, threshold float64) {
	defaults := b.Strategy().Defaults()
	get := func(name string) float64 {
		if v, ok := ps[name]; ok && !math.IsNaN(v) {
			return v
		}
		return defaults[name]
	}

	fast = max(1, int(math.Round(get(ParamFastPeriod))))
	slow = max(1, int(math.Round(get(ParamSlowPeriod))))
	if fast > slow {
		fast, slow = slow, fast
	}
	threshold = math.Max(0, get(ParamThreshold))
	return fast, slow, threshold
}

// movingAverage computes a simple moving average; the result omits the
// first period-1 values
func movingAverage(values []float64, period int) []float64 {
	in := make(chan float64, len(values))
	for _, v := range values {
		in <- v
	}
	close(in)

	out := make([]float64, 0, len(values))
	for v := range trend.NewSmaWithPeriod[float64](period).Compute(in) {
		out = append(out, v)
	}
	return out
}
