package grid

import (
	"math"

	"github.com/gridforge/hedgeengine/internal/models"
)

// MaxMartingaleCap bounds multiplier^n so a long losing streak cannot
// size an order into the balance (spec §4.3: "implementation-mandated
// cap... recommended 10").
const MaxMartingaleCap = 10.0

// LotParams is the subset of Settings CalcLot needs.
type LotParams struct {
	Levels     [4]models.GridLevelConfig
	Multiplier float64
	BaseLot    float64
	MinLot     float64
	MaxLot     float64
	Balance    float64
	Leverage   int
	LastPrice  float64
}

// CalcLot implements spec §4.3 calc_lot. n is the 0-based count of
// existing positions on the side being sized. LastPrice <= 0 skips the
// balance-safety cap (e.g. before the first tick has a price).
func CalcLot(p LotParams, n int) float64 {
	var lot float64
	if p.Multiplier > 0 {
		factor := math.Pow(p.Multiplier, float64(n))
		if factor > MaxMartingaleCap {
			factor = MaxMartingaleCap
		}
		lot = p.BaseLot * factor
	} else {
		level := levelForInsertion(p.Levels, n+1)
		lot = p.Levels[level].LotSize
	}

	if p.Leverage > 0 && p.LastPrice > 0 {
		safetyCap := (p.Balance * 0.1) / (float64(p.Leverage) * p.LastPrice)
		if lot > safetyCap {
			lot = safetyCap
		}
	}

	if lot < p.MinLot {
		lot = p.MinLot
	}
	if lot > p.MaxLot {
		lot = p.MaxLot
	}
	return lot
}
