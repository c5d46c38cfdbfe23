package risk

// KellyRecommendation provides interpretation of a Kelly fraction
func KellyRecommendation(kellyPercent float64) string {
	percent := kellyPercent * 100

	switch {
	case percent <= 0:
		return "No position recommended - negative edge (expected value < 0)"
	case percent <= 2:
		return "Very small position - minimal edge"
	case percent <= 5:
		return "Conservative position - moderate edge"
	case percent <= 10:
		return "Standard position - good edge"
	case percent <= 20:
		return "Large position - strong edge (monitor risk carefully)"
	case percent <= 30:
		return "Very large position - exceptional edge (high risk/reward)"
	default:
		return "Warning: Extremely large position suggested - verify calculations and strongly consider reducing Kelly fraction"
	}
}

// VaRInterpretation describes a value-at-risk expressed as a fraction
func VaRInterpretation(varValue float64) string {
	varPercent := varValue * 100

	switch {
	case varPercent <= 1:
		return "Very low risk - minimal downside"
	case varPercent <= 3:
		return "Low risk - acceptable for conservative portfolios"
	case varPercent <= 5:
		return "Moderate risk - typical for balanced strategies"
	case varPercent <= 10:
		return "Elevated risk - monitor closely"
	case varPercent <= 20:
		return "High risk - consider position sizing reduction"
	default:
		return "Very high risk - significant capital at risk"
	}
}

// SharpeInterpretation describes a Sharpe ratio
func SharpeInterpretation(sharpe float64) string {
	switch {
	case sharpe < 0:
		return "Poor - negative risk-adjusted returns"
	case sharpe < 1.0:
		return "Sub-optimal - returns below acceptable risk-adjusted level"
	case sharpe < 2.0:
		return "Good - acceptable risk-adjusted returns"
	case sharpe < 3.0:
		return "Very good - strong risk-adjusted returns"
	default:
		return "Excellent - exceptional risk-adjusted returns"
	}
}

// DrawdownInterpretation describes a maximum drawdown expressed as a fraction
func DrawdownInterpretation(maxDrawdown float64) string {
	maxDDPercent := maxDrawdown * 100

	switch {
	case maxDDPercent <= 5:
		return "Excellent - very low drawdown"
	case maxDDPercent <= 10:
		return "Good - acceptable drawdown for most strategies"
	case maxDDPercent <= 20:
		return "Moderate - typical for aggressive strategies"
	case maxDDPercent <= 30:
		return "High - monitor position sizing and risk"
	case maxDDPercent <= 50:
		return "Very high - significant capital at risk"
	default:
		return "Extreme - unacceptable drawdown level"
	}
}
