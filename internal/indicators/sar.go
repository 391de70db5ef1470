package indicators

import "github.com/gridforge/hedgeengine/internal/models"

// seedWindow is how many trailing candles the Parabolic SAR uses to seed
// its initial trend/EP/SAR on the very first step (spec §4.1).
const seedWindow = 5

// StepSAR advances the Parabolic SAR one candle. candles is the ascending
// window ending at the candle being evaluated; state is the indicator's
// state after the previous candle (the zero value means "uninitialized").
// The returned state is persistable as-is (spec §4.1: "SAR state must be
// persistable across process restarts").
func StepSAR(state models.SARState, candles []models.Candle, afStart, afMax float64) models.SARState {
	if !state.Initialized() {
		return seedSAR(candles, afStart)
	}
	if len(candles) < 3 {
		return state // not enough history to clamp against two prior candles
	}

	current := candles[len(candles)-1]
	prev1 := candles[len(candles)-2]
	prev2 := candles[len(candles)-3]

	sarPrime := state.SAR + state.AF*(state.EP-state.SAR)

	if state.Trend > 0 {
		sarPrime = min3(sarPrime, prev1.Low, prev2.Low)
		if current.Low < sarPrime {
			return models.SARState{Trend: -1, SAR: state.EP, EP: current.Low, AF: afStart}
		}
		next := models.SARState{Trend: 1, SAR: sarPrime, EP: state.EP, AF: state.AF}
		if current.High > state.EP {
			next.EP = current.High
			next.AF = minF(state.AF+afStart, afMax)
		}
		return next
	}

	sarPrime = max3(sarPrime, prev1.High, prev2.High)
	if current.High > sarPrime {
		return models.SARState{Trend: 1, SAR: state.EP, EP: current.High, AF: afStart}
	}
	next := models.SARState{Trend: -1, SAR: sarPrime, EP: state.EP, AF: state.AF}
	if current.Low < state.EP {
		next.EP = current.Low
		next.AF = minF(state.AF+afStart, afMax)
	}
	return next
}

func seedSAR(candles []models.Candle, afStart float64) models.SARState {
	if len(candles) < seedWindow {
		return models.SARState{} // undefined until enough history exists
	}
	window := candles[len(candles)-seedWindow:]
	last := window[len(window)-1]
	prior := window[len(window)-2]

	if last.Close > prior.Close {
		return models.SARState{Trend: 1, EP: maxHigh(window), SAR: minLow(window), AF: afStart}
	}
	return models.SARState{Trend: -1, EP: minLow(window), SAR: maxHigh(window), AF: afStart}
}

func maxHigh(candles []models.Candle) float64 {
	m := candles[0].High
	for _, c := range candles[1:] {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func minLow(candles []models.Candle) float64 {
	m := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}

func min3(a, b, c float64) float64 { return minF(a, minF(b, c)) }
func max3(a, b, c float64) float64 { return maxF(a, maxF(b, c)) }

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
