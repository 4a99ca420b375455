package indicator

// MACD returns EMA12 − EMA26, both computed over the same slice per the
// EMA seeding rule. Requires a non-empty slice.
func MACD(prices []float64) (float64, error) {
	fast, err := EMA(prices, EMAFastPeriod)
	if err != nil {
		return 0, err
	}
	slow, err := EMA(prices, EMASlowPeriod)
	if err != nil {
		return 0, err
	}
	return fast - slow, nil
}
