// Core trading types shared by the analyzers and optimizers
package backtest

import (
	"fmt"
	"math"
	"time"
)

// ============================================================================
// TRADES
// ============================================================================

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade represents a single executed fill
type Trade struct {
	ID        string    `json:"id" yaml:"id"`
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Side      Side      `json:"side" yaml:"side"`
	Price     float64   `json:"price" yaml:"price"`
	Amount    float64   `json:"amount" yaml:"amount"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// CashFlow returns the signed cash movement of the trade.
// Buys spend cash, sells receive it. Position netting is not modelled.
func (t Trade) CashFlow() float64 {
	notional := t.Price * t.Amount
	if t.Side == SideBuy {
		return -notional
	}
	return notional
}

// Validate checks the trade invariants
func (t Trade) Validate() error {
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("trade %s: invalid side %q", t.ID, t.Side)
	}
	if !(t.Price > 0) {
		return fmt.Errorf("trade %s: price must be positive", t.ID)
	}
	if !(t.Amount > 0) {
		return fmt.Errorf("trade %s: amount must be positive", t.ID)
	}
	return nil
}

// Position is an open position used for exposure calculations
type Position struct {
	Symbol       string  `json:"symbol"`
	Amount       float64 `json:"amount"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	PnL          float64 `json:"pnl"`
}

// ============================================================================
// STRATEGY DEFINITION
// ============================================================================

// StrategyParameter is a tunable, bounded strategy input
type StrategyParameter struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Step  float64 `json:"step" yaml:"step"`
}

// Clamp restricts v to the parameter bounds
func (p StrategyParameter) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.Min
	}
	return math.Max(p.Min, math.Min(p.Max, v))
}

// Range returns max - min
func (p StrategyParameter) Range() float64 {
	return p.Max - p.Min
}

// Contains reports whether v lies inside [min, max]
func (p StrategyParameter) Contains(v float64) bool {
	return v >= p.Min && v <= p.Max
}

// StrategyPerformance is the summary attached to a strategy
type StrategyPerformance struct {
	TotalTrades  int     `json:"total_trades" yaml:"total_trades"`
	WinRate      float64 `json:"win_rate" yaml:"win_rate"`
	ProfitFactor float64 `json:"profit_factor" yaml:"profit_factor"`
}

// Strategy is a named, ordered set of bounded parameters.
// Parameter bounds are the search domain of every optimizer.
type Strategy struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description" yaml:"description"`
	Parameters  []StrategyParameter `json:"parameters" yaml:"parameters"`
	IsActive    bool                `json:"is_active" yaml:"is_active"`
	Performance StrategyPerformance `json:"performance" yaml:"performance"`
}

// Validate fails fast on malformed strategies
func (s *Strategy) Validate() error {
	if s == nil || len(s.Parameters) == 0 {
		return &ParameterError{Err: ErrNoParameters}
	}

	seen := make(map[string]struct{}, len(s.Parameters))
	for _, p := range s.Parameters {
		if _, dup := seen[p.Name]; dup {
			return &ParameterError{Parameter: p.Name, Err: ErrDuplicateParameter}
		}
		seen[p.Name] = struct{}{}

		if math.IsNaN(p.Min) || math.IsNaN(p.Max) || !(p.Min < p.Max) {
			return &ParameterError{
				Parameter: p.Name,
				Err:       fmt.Errorf("%w: min=%v max=%v", ErrInvalidBounds, p.Min, p.Max),
			}
		}
		if !p.Contains(p.Value) {
			return &ParameterError{
				Parameter: p.Name,
				Err:       fmt.Errorf("%w: value=%v not in [%v, %v]", ErrValueOutOfBounds, p.Value, p.Min, p.Max),
			}
		}
	}
	return nil
}

// Parameter looks up a parameter by name
func (s *Strategy) Parameter(name string) (StrategyParameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return StrategyParameter{}, false
}

// Defaults returns the current parameter values as a ParameterSet
func (s *Strategy) Defaults() ParameterSet {
	ps := make(ParameterSet, len(s.Parameters))
	for _, p := range s.Parameters {
		ps[p.Name] = p.Value
	}
	return ps
}

// ============================================================================
// PARAMETER SETS
// ============================================================================

// ParameterSet maps parameter names to values
type ParameterSet map[string]float64

// Clone creates a copy of the parameter set
func (ps ParameterSet) Clone() ParameterSet {
	clone := make(ParameterSet, len(ps))
	for k, v := range ps {
		clone[k] = v
	}
	return clone
}

// Vector returns the values in the strategy's parameter order
func (ps ParameterSet) Vector(s *Strategy) []float64 {
	vec := make([]float64, len(s.Parameters))
	for i, p := range s.Parameters {
		vec[i] = ps[p.Name]
	}
	return vec
}

// ValidateParameters rejects a parameter set with missing or out-of-bounds values
func ValidateParameters(s *Strategy, ps ParameterSet) error {
	for _, p := range s.Parameters {
		v, ok := ps[p.Name]
		if !ok {
			return &OutOfBoundsError{Parameter: p.Name, Value: math.NaN(), Min: p.Min, Max: p.Max}
		}
		if !p.Contains(v) {
			return &OutOfBoundsError{Parameter: p.Name, Value: v, Min: p.Min, Max: p.Max}
		}
	}
	return nil
}
