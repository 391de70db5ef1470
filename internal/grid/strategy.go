package grid

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridforge/hedgeengine/internal/exchange"
	"github.com/gridforge/hedgeengine/internal/models"
)

// Strategy holds the per-session grid logic: it never owns SessionState,
// it mutates the one passed in by the engine's single tick goroutine for
// that session (spec §5, per-session serialization).
type Strategy struct {
	Settings models.Settings
	Adapter  exchange.Adapter
	Sink     models.EventSink
}

// New builds a Strategy, defaulting Sink to a no-op so callers that don't
// care about events don't need a nil check at every emit site.
func New(settings models.Settings, adapter exchange.Adapter, sink models.EventSink) *Strategy {
	if sink == nil {
		sink = models.NopSink{}
	}
	return &Strategy{Settings: settings, Adapter: adapter, Sink: sink}
}

func (s *Strategy) lotParams(state *models.SessionState) LotParams {
	return LotParams{
		Levels:     s.Settings.Levels,
		Multiplier: s.Settings.Multiplier,
		BaseLot:    s.Settings.BaseLot,
		MinLot:     s.Settings.MinLot,
		MaxLot:     s.Settings.MaxLot,
		Balance:    decimalToFloat(state.Balance),
		Leverage:   state.Leverage,
		LastPrice:  decimalToFloat(state.LastPrice),
	}
}

func decimalToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// CanAddGridOrder implements spec §4.3 can_add_grid_order.
func (s *Strategy) CanAddGridOrder(state *models.SessionState, side models.Side, currentPrice decimal.Decimal) (bool, decimal.Decimal) {
	positions := *state.PositionsForSide(side)
	lp := s.lotParams(state)

	if len(positions) == 0 {
		return true, decimal.NewFromFloat(CalcLot(lp, 0))
	}

	totalBound := 0
	for _, lvl := range s.Settings.Levels {
		totalBound += lvl.MaxOrders
	}
	if state.PositionCount() >= 2*totalBound {
		return false, decimal.Zero
	}

	level := CurrentGridLevel(s.Settings.Levels, len(positions))
	d := s.Settings.Levels[level].Percent

	var breached bool
	if side == models.Long {
		trigger := minEntryPrice(positions).Mul(decimal.NewFromFloat(1 - d/100))
		breached = currentPrice.LessThanOrEqual(trigger)
	} else {
		trigger := maxEntryPrice(positions).Mul(decimal.NewFromFloat(1 + d/100))
		breached = currentPrice.GreaterThanOrEqual(trigger)
	}
	if !breached {
		return false, decimal.Zero
	}
	return true, decimal.NewFromFloat(CalcLot(lp, len(positions)))
}

func minEntryPrice(positions []models.GridPosition) decimal.Decimal {
	min := positions[0].EntryPrice
	for _, p := range positions[1:] {
		if p.EntryPrice.LessThan(min) {
			min = p.EntryPrice
		}
	}
	return min
}

func maxEntryPrice(positions []models.GridPosition) decimal.Decimal {
	max := positions[0].EntryPrice
	for _, p := range positions[1:] {
		if p.EntryPrice.GreaterThan(max) {
			max = p.EntryPrice
		}
	}
	return max
}

// OpenGridOrder opens a new grid order on side at lot, appending the
// resulting position to state and emitting trade_opened.
func (s *Strategy) OpenGridOrder(ctx context.Context, state *models.SessionState, side models.Side, lot decimal.Decimal) error {
	result, err := s.Adapter.OpenPosition(ctx, state.Symbol, side, lot, state.Leverage)
	if err != nil {
		return fmt.Errorf("open grid order: %w", err)
	}

	positions := state.PositionsForSide(side)
	pos := models.GridPosition{
		ID:              uuid.NewString(),
		Side:            side,
		EntryPrice:      result.FilledPrice,
		Lot:             lot,
		GridLevel:       CurrentGridLevel(s.Settings.Levels, len(*positions)),
		ExchangeOrderID: result.OrderID,
		OpenedAt:        time.Now(),
	}
	*positions = append(*positions, pos)

	s.Sink.Emit(models.Event{
		UserID:    state.UserID,
		Kind:      models.EventTradeOpened,
		Timestamp: pos.OpenedAt,
		Data: map[string]interface{}{
			"position_id": pos.ID,
			"side":        string(side),
			"entry_price": pos.EntryPrice.String(),
			"lot":         pos.Lot.String(),
			"grid_level":  pos.GridLevel,
		},
	})
	return nil
}

func (s *Strategy) closePosition(ctx context.Context, state *models.SessionState, pos models.GridPosition) error {
	result, err := s.Adapter.ClosePosition(ctx, state.Symbol, pos.ExchangeOrderID)
	if err != nil {
		if models.KindOf(err) == models.ErrKindNotFound {
			// Already closed on the exchange (manual intervention, prior
			// partial failure). Reconcile local state rather than treat
			// this as a failure.
			state.RemovePosition(pos.ID)
			return nil
		}
		return fmt.Errorf("close grid position %s: %w", pos.ID, err)
	}
	state.RemovePosition(pos.ID)
	state.Performance.RecordClose(result.RealizedPnL)

	s.Sink.Emit(models.Event{
		UserID:    state.UserID,
		Kind:      models.EventTradeClosed,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"position_id":  pos.ID,
			"side":         string(pos.Side),
			"realized_pnl": result.RealizedPnL.String(),
		},
	})
	return nil
}

func (s *Strategy) closeAll(ctx context.Context, state *models.SessionState) error {
	for _, pos := range state.AllPositions() {
		if err := s.closePosition(ctx, state, pos); err != nil {
			return err
		}
	}
	return s.Adapter.CancelPendingOrders(ctx, state.Symbol)
}

// CloseAll flattens every open position on both sides and cancels any
// resting orders. Exported for the force-close admin operation (spec
// §4.5/§6), which needs the same ladder-flattening logic this package
// already uses for profit-target closes.
func (s *Strategy) CloseAll(ctx context.Context, state *models.SessionState) error {
	return s.closeAll(ctx, state)
}

// CheckProfitTargets implements spec §4.3 check_profit_targets: priority
// order, short-circuit — only the highest-priority rule that fires this
// tick acts; rules 3 and 4 close positions before setting should_stop
// (the source's documented ordering defect, corrected here).
func (s *Strategy) CheckProfitTargets(ctx context.Context, state *models.SessionState, currentPrice decimal.Decimal) error {
	if closed, err := s.checkSingleOrderTP(ctx, state, currentPrice); err != nil {
		return err
	} else if closed {
		return nil
	}

	if closed, err := s.checkPairGlobalTP(ctx, state, currentPrice); err != nil {
		return err
	} else if closed {
		return nil
	}

	if s.Settings.GlobalProfit > 0 && decimalToFloat(state.Performance.RealizedPnL) >= s.Settings.GlobalProfit {
		if err := s.closeAll(ctx, state); err != nil {
			return err
		}
		state.ShouldStop = true
		s.Sink.Emit(models.Event{UserID: state.UserID, Kind: models.EventGlobalLimitHit, Timestamp: time.Now(),
			Data: map[string]interface{}{"rule": "global_profit", "realized_pnl": state.Performance.RealizedPnL.String()}})
		return nil
	}

	if s.Settings.MaxLoss > 0 && decimalToFloat(state.Performance.RealizedPnL) <= -s.Settings.MaxLoss {
		if err := s.closeAll(ctx, state); err != nil {
			return err
		}
		state.ShouldStop = true
		s.Sink.Emit(models.Event{UserID: state.UserID, Kind: models.EventGlobalLimitHit, Timestamp: time.Now(),
			Data: map[string]interface{}{"rule": "max_loss", "realized_pnl": state.Performance.RealizedPnL.String()}})
		return nil
	}

	return nil
}

func (s *Strategy) checkSingleOrderTP(ctx context.Context, state *models.SessionState, currentPrice decimal.Decimal) (bool, error) {
	if s.Settings.SingleOrderProfit <= 0 {
		return false, nil
	}
	var closedAny bool
	for _, pos := range state.AllPositions() {
		pct := decimalToFloat(pos.PnLPercent(currentPrice))
		if pct >= s.Settings.SingleOrderProfit {
			if err := s.closePosition(ctx, state, pos); err != nil {
				return closedAny, err
			}
			closedAny = true
		}
	}
	return closedAny, nil
}

func (s *Strategy) checkPairGlobalTP(ctx context.Context, state *models.SessionState, currentPrice decimal.Decimal) (bool, error) {
	if s.Settings.PairGlobalProfit <= 0 {
		return false, nil
	}
	var aggregate float64
	for _, pos := range state.AllPositions() {
		aggregate += decimalToFloat(pos.PnLPercent(currentPrice))
	}
	if aggregate < s.Settings.PairGlobalProfit {
		return false, nil
	}
	if err := s.closeAll(ctx, state); err != nil {
		return false, err
	}
	return true, nil
}

// SyncFromExchange implements spec §4.3 sync_from_exchange: replaces
// local buy/sell lists from the exchange's reported positions, deriving
// grid_level per I1 from insertion order sorted by adversity from
// lastPrice — not from raw count, which is the source's documented
// defect (§9, resolved).
func (s *Strategy) SyncFromExchange(state *models.SessionState, reported []exchange.ExchangePosition, lastPrice decimal.Decimal) {
	var buys, sells []models.GridPosition
	for _, rp := range reported {
		pos := models.GridPosition{
			ID:              rp.ID,
			Side:            rp.Side,
			EntryPrice:      rp.AvgEntry,
			Lot:             rp.Qty,
			ExchangeOrderID: rp.ID,
			OpenedAt:        time.Now(),
		}
		if rp.Side == models.Long {
			buys = append(buys, pos)
		} else {
			sells = append(sells, pos)
		}
	}

	// Least adverse (closest to the original entry) first, reconstructing
	// the order grid additions would have opened in: a LONG ladder adds
	// orders at progressively lower prices, a SHORT ladder at progressively
	// higher ones.
	sort.Slice(buys, func(i, j int) bool { return buys[i].EntryPrice.GreaterThan(buys[j].EntryPrice) })
	sort.Slice(sells, func(i, j int) bool { return sells[i].EntryPrice.LessThan(sells[j].EntryPrice) })

	for i := range buys {
		buys[i].GridLevel = levelForInsertion(s.Settings.Levels, i+1)
	}
	for i := range sells {
		sells[i].GridLevel = levelForInsertion(s.Settings.Levels, i+1)
	}

	state.BuyPositions = buys
	state.SellPositions = sells
}
