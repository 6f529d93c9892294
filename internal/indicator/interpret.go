package indicator

// Interpretation labels for dashboard display. Thresholds follow the
// conventional readings (RSI 70/30, MACD line vs signal crossovers).

// InterpretRSI maps an RSI level to a market-condition label.
func InterpretRSI(value float64) string {
	switch {
	case value >= 70:
		return "Overbought"
	case value <= 30:
		return "Oversold"
	default:
		return "Neutral"
	}
}

// InterpretMACD maps a MACD observation to a momentum label. Both the
// histogram sign and the line/signal ordering must agree before a
// directional call is made.
func InterpretMACD(p MACDPoint) string {
	switch {
	case p.Histogram > 0 && p.MACD > p.Signal:
		return "Bullish"
	case p.Histogram < 0 && p.MACD < p.Signal:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// InterpretBollinger maps a price relative to its Bollinger Bands to a
// mean-reversion label.
func InterpretBollinger(price float64, b BandPoint) string {
	switch {
	case price >= b.Upper:
		return "Overbought - possible reversal"
	case price <= b.Lower:
		return "Oversold - possible bounce"
	default:
		return "Within bands"
	}
}
