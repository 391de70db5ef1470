// Package engine runs the per-session tick loop: the state machine that
// drives one user's grid-hedging session from candle fetch through signal
// evaluation, grid management, and profit/loss enforcement.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridforge/hedgeengine/internal/exchange"
	"github.com/gridforge/hedgeengine/internal/grid"
	"github.com/gridforge/hedgeengine/internal/indicators"
	"github.com/gridforge/hedgeengine/internal/metrics"
	"github.com/gridforge/hedgeengine/internal/models"
	"github.com/gridforge/hedgeengine/internal/tracing"
)

// Tick cadence: how often each periodic step of the loop actually runs,
// expressed in ticks rather than wall time so they scale with
// tick_interval.
const (
	BalanceUpdateInterval = 5  // refresh balance at most every N ticks
	SyncInterval          = 30 // reconcile local positions against the exchange
	StatusUpdateInterval  = 5  // emit a status_update snapshot
)

// IndicatorStore is the narrow persistence contract an Engine needs for
// crash recovery (spec §4: SAR and CCI state "must be persistable across
// process restarts"). internal/store.IndicatorStore satisfies this.
type IndicatorStore interface {
	Load(userID string) (models.IndicatorState, error)
	Save(userID string, state models.IndicatorState) error
}

// Engine runs one session's tick loop. It owns state exclusively while
// running: the Session Manager must not touch state concurrently (spec
// §5, per-session serialization).
type Engine struct {
	state    *models.SessionState
	settings models.Settings
	adapter  exchange.Adapter
	strategy *grid.Strategy
	sink     models.EventSink
	store    IndicatorStore // nil => no persistence (tests, ephemeral runs)

	cache *CandleCache

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	forceCloseCh chan chan error
}

// New builds an Engine for one session. settings.TickInterval must parse
// as a Go duration; registration only checks that it is non-empty, and
// Start moves the session to ERROR and returns an error if it does not
// parse.
func New(state *models.SessionState, settings models.Settings, adapter exchange.Adapter, sink models.EventSink) *Engine {
	if sink == nil {
		sink = models.NopSink{}
	}
	return &Engine{
		state:        state,
		settings:     settings,
		adapter:      adapter,
		strategy:     grid.New(settings, adapter, sink),
		sink:         sink,
		cache:        &CandleCache{},
		forceCloseCh: make(chan chan error),
	}
}

// WithStore attaches the indicator persistence layer and returns the
// Engine for chaining. Kept separate from New so tests can build an
// Engine without a database.
func (e *Engine) WithStore(s IndicatorStore) *Engine {
	e.store = s
	return e
}

// Start transitions the session IDLE->STARTING->RUNNING and launches the
// tick loop in a background goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine for user %s already running", e.state.UserID)
	}
	if !models.CanTransition(e.state.Status, models.StatusStarting) {
		return models.ErrInvalidTransition(e.state.Status, models.StatusStarting)
	}
	e.setStatus(models.StatusStarting)

	if e.store != nil {
		if state, err := e.store.Load(e.state.UserID); err != nil {
			tracing.Logger(ctx).Warn().Err(err).Str("user_id", e.state.UserID).
				Msg("failed to load persisted indicator state, starting fresh")
		} else {
			e.state.Indicators = state
		}
	}

	e.syncFromExchange(ctx)

	interval, err := time.ParseDuration(e.settings.TickInterval)
	if err != nil {
		e.setStatus(models.StatusError)
		return fmt.Errorf("invalid tick_interval %q: %w", e.settings.TickInterval, err)
	}

	e.state.Performance.StartedAt = time.Now()
	e.running = true
	e.stopCh = make(chan struct{})
	e.setStatus(models.StatusRunning)

	e.wg.Add(1)
	go e.loop(ctx, interval)

	tracing.Logger(ctx).Info().
		Str("user_id", e.state.UserID).
		Str("symbol", e.state.Symbol).
		Dur("interval", interval).
		Msg("session engine started")

	return nil
}

// Stop signals cooperative cancellation and waits for the in-flight tick
// to finish (spec §5: "cooperative cancellation via should_stop").
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.state.ShouldStop = true
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
}

// IsRunning reports whether the tick loop goroutine is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ForceClosePositions flattens every open position on both sides and
// cancels resting orders (spec §4.5/§6 force_close_positions). While the
// tick loop is running, the request is routed through it so state
// mutation stays confined to that one goroutine (spec §5, per-session
// serialization); when the session isn't running there is no other
// mutator to race with, so it acts directly.
func (e *Engine) ForceClosePositions(ctx context.Context) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	if !running {
		return e.strategy.CloseAll(ctx, e.state)
	}

	respCh := make(chan error, 1)
	select {
	case e.forceCloseCh <- respCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) setStatus(next models.Status) {
	prev := e.state.Status
	e.state.Status = next
	e.sink.Emit(models.Event{
		UserID:    e.state.UserID,
		Kind:      models.EventStatusChanged,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"from": string(prev), "to": string(next)},
	})
}

func (e *Engine) loop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.transitionToStopped()
			return
		case <-e.stopCh:
			e.transitionToStopped()
			return
		case respCh := <-e.forceCloseCh:
			closeCtx, cancel := context.WithTimeout(ctx, exchange.DefaultCallDeadline)
			respCh <- e.strategy.CloseAll(closeCtx, e.state)
			cancel()
		case <-ticker.C:
			tickCtx := tracing.WithTraceID(ctx, tracing.NewTraceID())
			if err := e.tick(tickCtx); err != nil {
				tracing.Logger(tickCtx).Error().
					Err(err).
					Str("user_id", e.state.UserID).
					Msg("engine tick failed")
				e.mu.Lock()
				e.setStatus(models.StatusError)
				e.mu.Unlock()
				e.sink.Emit(models.Event{
					UserID: e.state.UserID, Kind: models.EventErrorOccurred, Timestamp: time.Now(),
					Data: map[string]interface{}{"error": err.Error()},
				})
				return
			}
			if e.state.ShouldStop {
				e.transitionToStopped()
				return
			}
		}
	}
}

func (e *Engine) transitionToStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if models.CanTransition(e.state.Status, models.StatusStopping) {
		e.setStatus(models.StatusStopping)
	}
	if models.CanTransition(e.state.Status, models.StatusStopped) {
		e.setStatus(models.StatusStopped)
	}

	if e.store != nil {
		if err := e.store.Save(e.state.UserID, e.state.Indicators); err != nil {
			tracing.Logger(context.Background()).Warn().Err(err).
				Str("user_id", e.state.UserID).Msg("failed to persist indicator state on stop")
		}
	}
}

// tick runs one full evaluation cycle: refresh candles, update indicator
// state, evaluate a signal, manage the grid, and check profit targets.
func (e *Engine) tick(ctx context.Context) error {
	e.state.TickCount++
	metrics.EngineTicksTotal.WithLabelValues(e.state.UserID).Inc()

	deadline, cancel := context.WithTimeout(ctx, exchange.DefaultCallDeadline)
	defer cancel()

	if e.state.TickCount%SyncInterval == 0 {
		e.syncFromExchange(deadline)
	}

	candles, err := e.fetchCandles(deadline)
	if err != nil {
		return e.handleAdapterErr(deadline, err, "fetch candles")
	}
	if len(candles) == 0 {
		return nil
	}

	price, err := e.adapter.GetTicker(deadline, e.state.Symbol)
	if err != nil {
		if ferr := e.handleAdapterErr(deadline, err, "fetch ticker"); ferr != nil {
			return ferr
		}
		price = e.state.LastPrice // local recovery: last known price
	} else {
		e.state.LastPrice = price
	}
	e.state.LastCandleTS = candles[len(candles)-1].Timestamp

	if e.state.TickCount == 1 || e.state.TickCount%BalanceUpdateInterval == 0 {
		balance, err := e.adapter.GetBalance(deadline, e.state.Symbol)
		if err != nil {
			if ferr := e.handleAdapterErr(deadline, err, "fetch balance"); ferr != nil {
				return ferr
			}
			// local recovery: keep last known balance
		} else {
			e.state.Balance = balance
		}
	}

	if err := e.strategy.CheckProfitTargets(deadline, e.state, price); err != nil {
		if ferr := e.handleAdapterErr(deadline, err, "check profit targets"); ferr != nil {
			return ferr
		}
	}
	if e.state.ShouldStop {
		return nil
	}

	if !e.withinTradingWindow(time.Now()) {
		return nil
	}

	if err := e.evaluateAndAct(deadline, candles); err != nil {
		return fmt.Errorf("evaluate signal: %w", err)
	}

	metrics.GridPositionsOpen.WithLabelValues(e.state.UserID, string(models.Long)).Set(float64(len(e.state.BuyPositions)))
	metrics.GridPositionsOpen.WithLabelValues(e.state.UserID, string(models.Short)).Set(float64(len(e.state.SellPositions)))

	if e.state.TickCount%StatusUpdateInterval == 0 {
		e.emitStatusUpdate()
	}

	return nil
}

// syncFromExchange reconciles local position state against the exchange
// (spec §4.3 sync_from_exchange). Called on start and on every
// SyncInterval ticks thereafter; a fetch failure here just retries on the
// next interval (spec §7: "Position sync failures retry on next
// interval"), never aborting the session.
func (e *Engine) syncFromExchange(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, exchange.DefaultCallDeadline)
	defer cancel()

	positions, err := e.adapter.GetPositions(syncCtx, e.state.Symbol)
	if err != nil {
		tracing.Logger(ctx).Warn().Err(err).Str("user_id", e.state.UserID).
			Msg("failed to sync positions from exchange, retrying next interval")
		return
	}
	e.strategy.SyncFromExchange(e.state, positions, e.state.LastPrice)
}

// handleAdapterErr classifies an adapter/strategy error per the error
// taxonomy (spec §7). Auth and invariant-class errors are terminal for
// the session: it returns them so the tick loop aborts to ERROR.
// Everything else (transient I/O, order rejection, not-found) is logged,
// folded into a balance_warning/error_occurred event, and swallowed so
// the tick continues.
func (e *Engine) handleAdapterErr(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}

	kind := models.KindOf(err)
	if kind == models.ErrKindAuth || kind == models.ErrKindInvariant {
		return fmt.Errorf("%s: %w", op, err)
	}

	tracing.Logger(ctx).Warn().Err(err).Str("user_id", e.state.UserID).
		Str("op", op).Str("kind", string(kind)).Msg("adapter error tolerated, continuing tick")

	eventKind := models.EventErrorOccurred
	if kind == models.ErrKindRejected {
		eventKind = models.EventBalanceWarning
	}
	e.sink.Emit(models.Event{
		UserID:    e.state.UserID,
		Kind:      eventKind,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"op": op, "kind": string(kind), "error": err.Error()},
	})
	return nil
}

func (e *Engine) fetchCandles(ctx context.Context) ([]models.Candle, error) {
	now := time.Now()
	if e.cache.Fresh(now) {
		return e.cache.Get(), nil
	}
	candles, err := e.adapter.GetCandles(ctx, e.state.Symbol, e.settings.Timeframe, candleCacheCap)
	if err != nil {
		if stale := e.cache.Get(); len(stale) > 0 {
			tracing.Logger(ctx).Warn().Err(err).Str("user_id", e.state.UserID).
				Msg("candle fetch failed, serving stale cache")
			return stale, nil
		}
		return nil, err
	}
	e.cache.Set(candles, now)
	return candles, nil
}

// evaluateAndAct runs the signal-driven initial entry (step 6: only on an
// empty side) and then unconditional per-side grid management (step 7:
// every tick, regardless of signal, for any side already holding
// positions).
func (e *Engine) evaluateAndAct(ctx context.Context, candles []models.Candle) error {
	sma := indicators.LWMA(candles, e.settings.SMAPeriod)
	e.state.Indicators.SAR = indicators.StepSAR(e.state.Indicators.SAR, candles, e.settings.SARAf, e.settings.SARMax)

	var crossedAbove, crossedBelow bool
	var cci float64
	if e.settings.CCIPeriod > 0 {
		cci = indicators.CCI(candles, e.settings.CCIPeriod)
		e.state.Indicators.CCIHistory = indicators.PushCCI(e.state.Indicators.CCIHistory, cci)
		crossedAbove = indicators.CrossedAbove(e.state.Indicators.CCIHistory, e.settings.CCIMax)
		crossedBelow = indicators.CrossedBelow(e.state.Indicators.CCIHistory, e.settings.CCIMin)
	}

	signal := grid.EvaluateSignal(
		e.settings.UseSMASAR, sma, e.state.Indicators.SAR.SAR,
		e.settings.ReverseOrder,
		e.settings.CCIPeriod > 0, crossedAbove, crossedBelow,
	)

	e.state.Indicators.LastSMA = sma
	e.state.Indicators.LastCCI = cci
	e.state.Indicators.LastSignal = string(signal)

	if signal != grid.SignalNone {
		side := models.Long
		if signal == grid.SignalSell {
			side = models.Short
		}
		if len(*e.state.PositionsForSide(side)) == 0 {
			if err := e.openGridOrder(ctx, side); err != nil {
				return err
			}
		}
	}

	for _, side := range [...]models.Side{models.Long, models.Short} {
		if len(*e.state.PositionsForSide(side)) == 0 {
			continue
		}
		if err := e.openGridOrder(ctx, side); err != nil {
			return err
		}
	}
	return nil
}

// openGridOrder evaluates can_add_grid_order for side and opens a
// position if allowed. An order-open failure marks the attempt failed
// and continues (spec §4.4: "repeated open failures do not reserve grid
// slots") unless it is auth/invariant-class.
func (e *Engine) openGridOrder(ctx context.Context, side models.Side) error {
	ok, lot := e.strategy.CanAddGridOrder(e.state, side, e.state.LastPrice)
	if !ok {
		return nil
	}
	if err := e.strategy.OpenGridOrder(ctx, e.state, side, lot); err != nil {
		return e.handleAdapterErr(ctx, err, "open grid order")
	}
	e.state.Performance.LastTradeAt = time.Now()
	return nil
}

// emitStatusUpdate builds and emits the full status_update snapshot the
// webhook contract requires (spec §6).
func (e *Engine) emitStatusUpdate() {
	price := e.state.LastPrice

	var buyPnl, sellPnl decimal.Decimal
	buys := make([]map[string]interface{}, 0, len(e.state.BuyPositions))
	for _, p := range e.state.BuyPositions {
		pnl := p.PnLAbsolute(price)
		buyPnl = buyPnl.Add(pnl)
		buys = append(buys, map[string]interface{}{
			"id": p.ID, "entryPrice": p.EntryPrice.String(), "lot": p.Lot.String(),
			"gridLevel": p.GridLevel, "pnl": pnl.String(),
		})
	}
	sells := make([]map[string]interface{}, 0, len(e.state.SellPositions))
	for _, p := range e.state.SellPositions {
		pnl := p.PnLAbsolute(price)
		sellPnl = sellPnl.Add(pnl)
		sells = append(sells, map[string]interface{}{
			"id": p.ID, "entryPrice": p.EntryPrice.String(), "lot": p.Lot.String(),
			"gridLevel": p.GridLevel, "pnl": pnl.String(),
		})
	}
	totalPnl := buyPnl.Add(sellPnl)
	e.state.Performance.UnrealizedPL = totalPnl

	maxOrdersPerSide := 0
	for _, lvl := range e.settings.Levels {
		maxOrdersPerSide += lvl.MaxOrders
	}

	e.sink.Emit(models.Event{
		UserID:    e.state.UserID,
		Kind:      models.EventStatusUpdate,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"userId":       e.state.UserID,
			"userBotId":    e.state.UserID,
			"symbol":       e.state.Symbol,
			"currentPrice": price.String(),
			"indicators": map[string]interface{}{
				"sma":    e.state.Indicators.LastSMA,
				"sar":    e.state.Indicators.SAR.SAR,
				"cci":    e.state.Indicators.LastCCI,
				"signal": e.state.Indicators.LastSignal,
			},
			"balance": e.state.Balance.String(),
			"positions": map[string]interface{}{
				"buy": buys, "sell": sells,
				"buyCount": len(buys), "sellCount": len(sells),
				"buyPnl": buyPnl.String(), "sellPnl": sellPnl.String(),
				"totalPnl": totalPnl.String(),
			},
			"grid": map[string]interface{}{
				"multiplier":    e.settings.Multiplier,
				"spacePercent":  e.settings.Levels[0].Percent,
				"maxBuyOrders":  maxOrdersPerSide,
				"maxSellOrders": maxOrdersPerSide,
			},
			"profit": map[string]interface{}{
				"singleOrderProfit": e.settings.SingleOrderProfit,
				"pairGlobalProfit":  e.settings.PairGlobalProfit,
				"globalProfit":      e.settings.GlobalProfit,
				"maxLoss":           e.settings.MaxLoss,
			},
			"performance": map[string]interface{}{
				"totalTrades":   e.state.Performance.TotalTrades,
				"winning":       e.state.Performance.Winning,
				"losing":        e.state.Performance.Losing,
				"realizedPnl":   e.state.Performance.RealizedPnL.String(),
				"unrealizedPnl": totalPnl.String(),
			},
			"runtime": map[string]interface{}{
				"tick":        e.state.TickCount,
				"uptime":      time.Since(e.state.Performance.StartedAt).String(),
				"startedAt":   e.state.Performance.StartedAt,
				"lastTradeAt": e.state.Performance.LastTradeAt,
			},
		},
	})
}

func (e *Engine) withinTradingWindow(now time.Time) bool {
	if e.settings.StartHHMM == "" || e.settings.FinishHHMM == "" {
		return true
	}
	start, err := time.Parse("15:04", e.settings.StartHHMM)
	if err != nil {
		return true
	}
	finish, err := time.Parse("15:04", e.settings.FinishHHMM)
	if err != nil {
		return true
	}
	nowMinutes := now.UTC().Hour()*60 + now.UTC().Minute()
	startMinutes := start.Hour()*60 + start.Minute()
	finishMinutes := finish.Hour()*60 + finish.Minute()
	if startMinutes <= finishMinutes {
		return nowMinutes >= startMinutes && nowMinutes <= finishMinutes
	}
	// window wraps past midnight
	return nowMinutes >= startMinutes || nowMinutes <= finishMinutes
}
