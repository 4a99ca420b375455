package indicator

// EMA returns the exponential moving average of the whole supplied slice,
// applied left-to-right with k = 2/(period+1).
//
// The recurrence is seeded with the FIRST price of the slice rather than a
// separate SMA warm-up. This matches the reference semantics exactly and is
// kept for numeric reproducibility, even though it drifts from the textbook
// EMA on short windows. Consequence: the result depends on the slice's
// origin, so EMA12 and EMA26 feeding one MACD must be computed over the
// same slice (the full retained window).
//
// Because the seed is the first element, any non-empty slice is accepted;
// slices shorter than the period simply stay closer to the seed.
func EMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) == 0 {
		return 0, insufficient("EMA")
	}

	k := 2.0 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = p*k + ema*(1-k)
	}
	return ema, nil
}
