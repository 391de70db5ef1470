// Package indicators provides pure numerical transforms over candle
// sequences: LWMA, Parabolic SAR, and CCI. All are deterministic given the
// same input history; stateful indicators (SAR, CCI) carry their state as
// an explicit value rather than inside a mutable object, so persistence
// and restart are a plain save/load of that value (spec §9).
package indicators

import "github.com/gridforge/hedgeengine/internal/models"

// LWMA computes the Linear Weighted Moving Average over the last period
// candles using weights 1..period assigned oldest-to-newest (spec §4.1),
// so the oldest candle is lightest and the newest heaviest. LWMAReverse
// applies the weights in the opposite direction.
//
// Returns 0 if fewer than period candles are available.
func LWMA(candles []models.Candle, period int) float64 {
	return lwma(candles, period, false)
}

// LWMAReverse assigns weights period..1 oldest-to-newest, so the oldest
// candle is heaviest and the newest lightest. Exposed per spec §9's open
// question about weight direction; not used by the engine.
func LWMAReverse(candles []models.Candle, period int) float64 {
	return lwma(candles, period, true)
}

func lwma(candles []models.Candle, period int, reverse bool) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	window := candles[len(candles)-period:]

	var weightedSum, weightSum float64
	for i, c := range window {
		w := float64(i + 1) // oldest (i=0) gets weight 1
		if reverse {
			w = float64(period - i)
		}
		weightedSum += c.WeightedPrice() * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}
