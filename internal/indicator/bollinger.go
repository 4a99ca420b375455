package indicator

import (
	"math"

	"marketpulse/internal/model"
)

// BollingerBands returns the SMA(period) envelope at ±k population standard
// deviations of the last period prices. Requires len(prices) >= period.
func BollingerBands(prices []float64, period int, k float64) (model.Bands, error) {
	middle, err := SMA(prices, period)
	if err != nil {
		return model.Bands{}, insufficient("Bollinger Bands")
	}

	window := prices[len(prices)-period:]
	variance := 0.0
	for _, p := range window {
		d := p - middle
		variance += d * d
	}
	variance /= float64(period) // population variance

	band := k * math.Sqrt(variance)
	return model.Bands{
		Upper:  middle + band,
		Middle: middle,
		Lower:  middle - band,
	}, nil
}
