package indicator

// RSI returns the relative strength index over the last period deltas.
//
// Per-step gains and losses are computed across the full price slice, then
// the LAST period of each is averaged: RS = avgGain/avgLoss and
// RSI = 100 - 100/(1+RS). A window with zero losses saturates at 100
// rather than propagating an infinite RS.
//
// Requires len(prices) >= period+1 (period deltas need period+1 points).
func RSI(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period+1 {
		return 0, insufficient("RSI")
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	var avgGain, avgLoss float64
	for _, g := range gains[len(gains)-period:] {
		avgGain += g
	}
	for _, l := range losses[len(losses)-period:] {
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
