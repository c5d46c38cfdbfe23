// Package risk sizes positions and gates trading on drawdown
package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

var (
	ErrInvalidBalance   = errors.New("account balance must be positive")
	ErrInvalidPrice     = errors.New("entry price must be positive")
	ErrZeroStopDistance = errors.New("stop loss must differ from entry price")
	ErrInvalidLimits    = errors.New("invalid risk limits")
)

// Limits are the fractional risk limits of a Manager
type Limits struct {
	RiskPerTrade    float64 `mapstructure:"risk_per_trade" yaml:"risk_per_trade"`       // Fraction of balance risked per trade
	MaxDrawdown     float64 `mapstructure:"max_drawdown" yaml:"max_drawdown"`           // Trading stops at this drawdown
	MaxPositionSize float64 `mapstructure:"max_position_size" yaml:"max_position_size"` // Notional cap as a fraction of balance
}

// DefaultLimits returns 2% risk per trade, 15% max drawdown and a 10% position cap
func DefaultLimits() Limits {
	return Limits{
		RiskPerTrade:    0.02,
		MaxDrawdown:     0.15,
		MaxPositionSize: 0.10,
	}
}

// Validate checks every limit lies in (0, 1]
func (l Limits) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"risk_per_trade":    l.RiskPerTrade,
		"max_drawdown":      l.MaxDrawdown,
		"max_position_size": l.MaxPositionSize,
	} {
		if !(v > 0 && v <= 1) {
			errs = append(errs, fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidLimits, name, v))
		}
	}
	return errors.Join(errs...)
}

// ============================================================================
// RISK MANAGER
// ============================================================================

// Manager holds the account balance and risk limits.
// All arithmetic is carried out in decimal. It is safe for concurrent use.
type Manager struct {
	mu              sync.RWMutex
	balance         decimal.Decimal
	riskPerTrade    decimal.Decimal
	maxDrawdown     decimal.Decimal
	maxPositionSize decimal.Decimal
}

// NewManager creates a risk manager; zero limits take their defaults
func NewManager(balance float64, limits Limits) (*Manager, error) {
	if !(balance > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidBalance, balance)
	}

	d := DefaultLimits()
	if limits.RiskPerTrade == 0 {
		limits.RiskPerTrade = d.RiskPerTrade
	}
	if limits.MaxDrawdown == 0 {
		limits.MaxDrawdown = d.MaxDrawdown
	}
	if limits.MaxPositionSize == 0 {
		limits.MaxPositionSize = d.MaxPositionSize
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		balance:         decimal.NewFromFloat(balance),
		riskPerTrade:    decimal.NewFromFloat(limits.RiskPerTrade),
		maxDrawdown:     decimal.NewFromFloat(limits.MaxDrawdown),
		maxPositionSize: decimal.NewFromFloat(limits.MaxPositionSize),
	}, nil
}

// CalculatePositionSize returns the position size in units.
//
// The raw size risks RiskPerTrade of the balance between entry and stop. It
// is then clamped so its notional stays within the MaxPositionSize cap, and
// again so existing exposure plus the new notional never exceeds that cap.
// A fully used cap yields zero.
func (m *Manager) CalculatePositionSize(entryPrice, stopLoss float64, positions []backtest.Position) (decimal.Decimal, error) {
	if !(entryPrice > 0) {
		return decimal.Zero, fmt.Errorf("%w: got %v", ErrInvalidPrice, entryPrice)
	}

	entry := decimal.NewFromFloat(entryPrice)
	distance := entry.Sub(decimal.NewFromFloat(stopLoss)).Abs()
	if distance.IsZero() {
		return decimal.Zero, ErrZeroStopDistance
	}

	m.mu.RLock()
	riskAmount := m.balance.Mul(m.riskPerTrade)
	maxNotional := m.balance.Mul(m.maxPositionSize)
	m.mu.RUnlock()

	raw := riskAmount.Div(distance)
	size := decimal.Min(raw, maxNotional.Div(entry))

	exposure := Exposure(positions)
	remaining := decimal.Max(maxNotional.Sub(exposure), decimal.Zero).Div(entry)
	if remaining.LessThan(size) {
		size = remaining
	}

	log.Debug().
		Str("risk_amount", riskAmount.String()).
		Str("raw_size", raw.String()).
		Str("max_notional", maxNotional.String()).
		Str("exposure", exposure.String()).
		Str("size", size.String()).
		Msg("Position size calculated")

	return size, nil
}

// Exposure returns Σ amount × current price over the open positions
func Exposure(positions []backtest.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(decimal.NewFromFloat(p.Amount).Mul(decimal.NewFromFloat(p.CurrentPrice)))
	}
	return total
}

// CheckDrawdown reports whether trading may continue:
// true while 1 − equity/balance stays below MaxDrawdown
func (m *Manager) CheckDrawdown(currentEquity float64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	drawdown := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(currentEquity).Div(m.balance))
	ok := drawdown.LessThan(m.maxDrawdown)
	if !ok {
		log.Warn().
			Str("drawdown", drawdown.StringFixed(4)).
			Str("max_drawdown", m.maxDrawdown.String()).
			Msg("Drawdown limit reached")
	}
	return ok
}

// UpdateBalance replaces the reference balance
func (m *Manager) UpdateBalance(balance float64) error {
	if !(balance > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidBalance, balance)
	}
	m.mu.Lock()
	m.balance = decimal.NewFromFloat(balance)
	m.mu.Unlock()
	return nil
}

// Balance returns the reference balance
func (m *Manager) Balance() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// MaxLossAmount returns balance × MaxDrawdown
func (m *Manager) MaxLossAmount() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance.Mul(m.maxDrawdown)
}

// RiskPerTradeAmount returns balance × RiskPerTrade
func (m *Manager) RiskPerTradeAmount() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance.Mul(m.riskPerTrade)
}
