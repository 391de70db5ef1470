package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a grid position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// GridPosition is one rung of a session's hedged ladder. It is owned by
// exactly one SessionState while open; on close it is removed and its
// realized PnL is folded into Performance.
type GridPosition struct {
	ID              string          `json:"id"`
	Side            Side            `json:"side"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	Lot             decimal.Decimal `json:"lot"`
	GridLevel       int             `json:"grid_level"` // 0..3, see I1
	ExchangeOrderID string          `json:"exchange_order_id"`
	OpenedAt        time.Time       `json:"opened_at"`
}

// PnLPercent returns the position's percentage gain/loss at currentPrice,
// positive for profit regardless of side.
func (p GridPosition) PnLPercent(currentPrice decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	diff := currentPrice.Sub(p.EntryPrice)
	if p.Side == Short {
		diff = diff.Neg()
	}
	return diff.Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// PnLAbsolute returns the position's absolute quote-currency PnL at
// currentPrice: lot * entry_price * pnl_percent/100.
func (p GridPosition) PnLAbsolute(currentPrice decimal.Decimal) decimal.Decimal {
	notional := p.Lot.Mul(p.EntryPrice)
	return notional.Mul(p.PnLPercent(currentPrice)).Div(decimal.NewFromInt(100))
}

// GridLevel (config) is one of the four immutable tiers a session is
// configured with. Percent is the adverse-move trigger distance, MaxOrders
// is how many grid additions this tier contributes, LotSize is the fixed
// lot used when multiplier-based sizing is disabled.
type GridLevelConfig struct {
	Percent   float64 `json:"percent" validate:"gt=0"`
	MaxOrders int     `json:"max_orders" validate:"gt=0"`
	LotSize   float64 `json:"lot_size" validate:"gt=0"`
}
