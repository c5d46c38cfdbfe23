package risk

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// Kelly sizing bounds
const (
	MinKellyTrades       = 30   // Below this the conservative fraction is used
	ConservativeFraction = 0.10 // Fallback share of capital
	NoEdgeFraction       = 0.01 // Share of capital when the edge is negative
	MaxKellyFraction     = 0.25 // Cap on the adjusted Kelly fraction
)

// TradingStats holds statistical data for Kelly Criterion calculation
type TradingStats struct {
	TotalTrades   int     `json:"total_trades" yaml:"total_trades"`
	WinningTrades int     `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades  int     `json:"losing_trades" yaml:"losing_trades"`
	AvgWin        float64 `json:"avg_win" yaml:"avg_win"`               // Average profit per winning trade
	AvgLoss       float64 `json:"avg_loss" yaml:"avg_loss"`             // Average loss per losing trade (positive value)
	WinRate       float64 `json:"win_rate" yaml:"win_rate"`             // 0.0 to 1.0
	AvgReturn     float64 `json:"avg_return" yaml:"avg_return"`         // Average cash flow per trade
	TotalProfit   float64 `json:"total_profit" yaml:"total_profit"`     // Sum of winning cash flows
	TotalLoss     float64 `json:"total_loss" yaml:"total_loss"`         // Sum of losing cash flows (positive value)
	LargestWin    float64 `json:"largest_win" yaml:"largest_win"`       // Largest single win
	LargestLoss   float64 `json:"largest_loss" yaml:"largest_loss"`     // Largest single loss (positive value)
	WinLossRatio  float64 `json:"win_loss_ratio" yaml:"win_loss_ratio"` // AvgWin / AvgLoss
}

// CalculateTradeStats computes trading statistics from trade cash flows.
// Flat trades count as losses.
func CalculateTradeStats(trades []backtest.Trade) *TradingStats {
	stats := &TradingStats{}

	if len(trades) == 0 {
		return stats
	}

	stats.TotalTrades = len(trades)

	for _, t := range trades {
		pl := t.CashFlow()

		if pl > 0 {
			stats.WinningTrades++
			stats.TotalProfit += pl
			if pl > stats.LargestWin {
				stats.LargestWin = pl
			}
		} else {
			stats.LosingTrades++
			absLoss := -pl
			stats.TotalLoss += absLoss
			if absLoss > stats.LargestLoss {
				stats.LargestLoss = absLoss
			}
		}
	}

	if stats.WinningTrades > 0 {
		stats.AvgWin = stats.TotalProfit / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = stats.TotalLoss / float64(stats.LosingTrades)
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	stats.AvgReturn = (stats.TotalProfit - stats.TotalLoss) / float64(stats.TotalTrades)

	if stats.AvgLoss > 0 {
		stats.WinLossRatio = stats.AvgWin / stats.AvgLoss
	}

	return stats
}

// KellyPercent returns the raw Kelly fraction f* = (p·b − q) / b.
// It returns 0 when the statistics cannot support an estimate.
func KellyPercent(stats *TradingStats) float64 {
	if stats.WinRate <= 0 || stats.WinRate >= 1 || stats.AvgWin <= 0 || stats.AvgLoss <= 0 {
		return 0
	}
	p := stats.WinRate
	q := 1 - p
	b := stats.WinLossRatio
	return (p*b - q) / b
}

// KellyPositionSize returns the capital to commit using a fractional Kelly
// criterion. Too few trades or degenerate statistics fall back to 10% of
// capital; a negative edge commits 1%. The adjusted fraction is bounded to
// [1%, 25%] and the result is rounded to cents.
func KellyPositionSize(stats *TradingStats, capital, kellyFraction float64) decimal.Decimal {
	c := decimal.NewFromFloat(capital)

	if stats.TotalTrades < MinKellyTrades {
		log.Debug().
			Int("total_trades", stats.TotalTrades).
			Msg("Not enough historical trades for Kelly Criterion - using conservative 10%")
		return c.Mul(decimal.NewFromFloat(ConservativeFraction))
	}

	if stats.WinRate <= 0 || stats.WinRate >= 1 || stats.AvgWin <= 0 || stats.AvgLoss <= 0 {
		log.Warn().
			Float64("win_rate", stats.WinRate).
			Float64("avg_win", stats.AvgWin).
			Float64("avg_loss", stats.AvgLoss).
			Msg("Degenerate trade statistics - using conservative 10%")
		return c.Mul(decimal.NewFromFloat(ConservativeFraction))
	}

	kellyPercent := KellyPercent(stats)
	if kellyPercent <= 0 {
		log.Warn().
			Float64("kelly_percent", kellyPercent).
			Msg("Negative Kelly percentage - no positive edge, using minimal 1%")
		return c.Mul(decimal.NewFromFloat(NoEdgeFraction))
	}

	adjusted := kellyPercent * kellyFraction
	if adjusted > MaxKellyFraction {
		log.Warn().
			Float64("adjusted_kelly", adjusted).
			Msg("Kelly percentage exceeds 25% cap - capping at 25%")
		adjusted = MaxKellyFraction
	}
	if adjusted < NoEdgeFraction {
		adjusted = NoEdgeFraction
	}

	size := c.Mul(decimal.NewFromFloat(adjusted)).Round(2)

	log.Info().
		Int("total_trades", stats.TotalTrades).
		Float64("win_rate", stats.WinRate*100).
		Float64("win_loss_ratio", stats.WinLossRatio).
		Float64("kelly_percent", kellyPercent*100).
		Float64("kelly_fraction", kellyFraction).
		Float64("adjusted_percent", adjusted*100).
		Str("position_size", size.StringFixed(2)).
		Msg("Kelly Criterion position sizing")

	return size
}
