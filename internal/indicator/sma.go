package indicator

// SMA returns the arithmetic mean of the last period prices.
// Requires len(prices) >= period.
func SMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, insufficient("SMA")
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}
