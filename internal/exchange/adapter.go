// Package exchange defines the contract an Engine uses to talk to a
// perpetual-futures exchange, and provides two implementations: an
// in-memory Demo adapter and a Binance USD-M futures adapter. Signed-REST
// concerns (HMAC, clock skew, rate limiting, retry/backoff) are internal
// to each implementation and never leak into the Adapter interface
// (spec §4.2).
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridforge/hedgeengine/internal/models"
)

// ExchangePosition is the exchange's view of one open position, used by
// grid.Strategy.SyncFromExchange to reconcile local state (spec I6).
type ExchangePosition struct {
	ID        string
	Side      models.Side
	AvgEntry  decimal.Decimal
	Qty       decimal.Decimal
}

// OpenResult is returned by Adapter.OpenPosition on success.
type OpenResult struct {
	OrderID      string
	FilledPrice  decimal.Decimal
}

// CloseResult is returned by Adapter.ClosePosition on success.
type CloseResult struct {
	RealizedPnL decimal.Decimal
}

// Adapter is the abstract signed-REST client an Engine depends on. Every
// method call must respect ctx's deadline (spec §5: "every adapter call
// has a bounded deadline, recommended 10s"). Implementations classify
// their errors using models.NewKindedError so the engine can decide
// whether to retry, warn, or transition the session to ERROR.
type Adapter interface {
	// GetCandles returns up to limit candles for symbol/timeframe, ascending.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)

	// GetTicker returns the last traded price, > 0.
	GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetBalance returns available margin, >= 0.
	GetBalance(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetPositions returns the exchange's reported open positions for symbol.
	GetPositions(ctx context.Context, symbol string) ([]ExchangePosition, error)

	// OpenPosition opens a new position at market.
	OpenPosition(ctx context.Context, symbol string, side models.Side, lot decimal.Decimal, leverage int) (*OpenResult, error)

	// ClosePosition closes an existing position by exchange order/position ID.
	ClosePosition(ctx context.Context, symbol, positionID string) (*CloseResult, error)

	// CancelPendingOrders cancels any resting orders for symbol. Used when
	// a global limit closes all positions (spec §9: "should also cancel
	// pending orders" is resolved as required).
	CancelPendingOrders(ctx context.Context, symbol string) error
}

// DefaultCallDeadline is the recommended per-call timeout from spec §5.
const DefaultCallDeadline = 10 * time.Second
