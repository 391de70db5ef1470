package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SARState is the persistable state of the Parabolic SAR indicator.
type SARState struct {
	Trend int     `json:"trend"` // +1 uptrend, -1 downtrend, 0 uninitialized
	EP    float64 `json:"ep"`
	SAR   float64 `json:"sar"`
	AF    float64 `json:"af"`
}

// Initialized reports whether the SAR state has seen its seed window.
func (s SARState) Initialized() bool {
	return s.Trend != 0
}

// IndicatorState is the mutable-across-ticks indicator state carried in a
// SessionState. SMA has no persisted state (pure function of the candle
// window); SAR and CCI do.
type IndicatorState struct {
	SAR        SARState
	CCIHistory []float64 // bounded ring, most recent last

	// LastSMA, LastCCI and LastSignal cache the most recent tick's
	// evaluation for the status_update snapshot; they carry no behavior
	// of their own.
	LastSMA    float64
	LastCCI    float64
	LastSignal string
}

// Performance tracks a session's cumulative trading results.
type Performance struct {
	TotalTrades  int             `json:"total_trades"`
	Winning      int             `json:"winning"`
	Losing       int             `json:"losing"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pnl"`
	StartedAt    time.Time       `json:"started_at"`
	LastTradeAt  time.Time       `json:"last_trade_at"`
}

// RecordClose folds a closed position's realized PnL into performance
// counters.
func (p *Performance) RecordClose(pnl decimal.Decimal) {
	p.TotalTrades++
	if pnl.IsPositive() {
		p.Winning++
	} else if pnl.IsNegative() {
		p.Losing++
	}
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.LastTradeAt = time.Now()
}

// SessionState is the full mutable trading context for one user session.
// It is owned and mutated only by that session's own engine tick task
// (spec §5, per-session serialization); the Session Manager's registry is
// the only structure shared across sessions.
type SessionState struct {
	UserID   string
	Symbol   string
	Leverage int
	Status   Status

	BuyPositions  []GridPosition
	SellPositions []GridPosition

	Indicators IndicatorState

	Balance      decimal.Decimal
	LastPrice    decimal.Decimal
	LastCandleTS time.Time
	TickCount    int64

	Performance Performance

	ShouldStop bool
}

// NewSessionState creates a freshly-registered, IDLE session.
func NewSessionState(userID, symbol string, leverage int) *SessionState {
	return &SessionState{
		UserID:   userID,
		Symbol:   symbol,
		Leverage: leverage,
		Status:   StatusIdle,
		Performance: Performance{
			RealizedPnL:  decimal.Zero,
			UnrealizedPL: decimal.Zero,
		},
		Balance:   decimal.Zero,
		LastPrice: decimal.Zero,
	}
}

// PositionCount returns the total open positions across both sides (I3).
func (s *SessionState) PositionCount() int {
	return len(s.BuyPositions) + len(s.SellPositions)
}

// PositionsForSide returns a pointer to the side's position slice so
// callers can mutate it in place.
func (s *SessionState) PositionsForSide(side Side) *[]GridPosition {
	if side == Long {
		return &s.BuyPositions
	}
	return &s.SellPositions
}

// AllPositions returns buy and sell positions concatenated, buy first.
func (s *SessionState) AllPositions() []GridPosition {
	out := make([]GridPosition, 0, s.PositionCount())
	out = append(out, s.BuyPositions...)
	out = append(out, s.SellPositions...)
	return out
}

// RemovePosition deletes a position by ID from whichever side holds it.
// Returns the removed position and true if found.
func (s *SessionState) RemovePosition(id string) (GridPosition, bool) {
	if pos, ok := removeByID(&s.BuyPositions, id); ok {
		return pos, true
	}
	if pos, ok := removeByID(&s.SellPositions, id); ok {
		return pos, true
	}
	return GridPosition{}, false
}

func removeByID(positions *[]GridPosition, id string) (GridPosition, bool) {
	for i, p := range *positions {
		if p.ID == id {
			removed := p
			*positions = append((*positions)[:i], (*positions)[i+1:]...)
			return removed, true
		}
	}
	return GridPosition{}, false
}
