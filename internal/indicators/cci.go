package indicators

import "github.com/gridforge/hedgeengine/internal/models"

// cciScaleFactor is Lambert's constant used by convention to scale the
// mean deviation so CCI oscillates roughly in [-100, 100] during normal
// ranging conditions.
const cciScaleFactor = 0.015

// maxCCIHistory bounds the persisted CCI history tail (spec §6: ">=50
// values").
const maxCCIHistory = 200

// CCI computes the Commodity Channel Index over the last period candles.
// Returns 0 if fewer than period candles are available, or if the mean
// deviation is zero (flat typical price).
func CCI(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	window := candles[len(candles)-period:]

	var sum float64
	tps := make([]float64, len(window))
	for i, c := range window {
		tp := c.TypicalPrice()
		tps[i] = tp
		sum += tp
	}
	sma := sum / float64(len(tps))

	var devSum float64
	for _, tp := range tps {
		d := tp - sma
		if d < 0 {
			d = -d
		}
		devSum += d
	}
	md := devSum / float64(len(tps))
	if md == 0 {
		return 0
	}

	last := tps[len(tps)-1]
	return (last - sma) / (cciScaleFactor * md)
}

// PushCCI appends a new CCI reading to history, truncating the oldest
// entries once maxCCIHistory is exceeded.
func PushCCI(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > maxCCIHistory {
		history = history[len(history)-maxCCIHistory:]
	}
	return history
}

// CrossedAbove reports whether the last two CCI readings crossed up
// through level: prev < level && curr >= level.
func CrossedAbove(history []float64, level float64) bool {
	prev, curr, ok := lastTwo(history)
	if !ok {
		return false
	}
	return prev < level && curr >= level
}

// CrossedBelow reports whether the last two CCI readings crossed down
// through level: prev > level && curr <= level.
func CrossedBelow(history []float64, level float64) bool {
	prev, curr, ok := lastTwo(history)
	if !ok {
		return false
	}
	return prev > level && curr <= level
}

func lastTwo(history []float64) (prev, curr float64, ok bool) {
	if len(history) < 2 {
		return 0, 0, false
	}
	return history[len(history)-2], history[len(history)-1], true
}
