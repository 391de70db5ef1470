package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/gridforge/hedgeengine/internal/models"
)

// binanceFuturesAPI is the narrow slice of the official client this
// adapter depends on, mirrored on the teacher's BinanceAPI interface
// (data/providers/binance.go) so it can be faked in tests without a
// network dependency.
type binanceFuturesAPI interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error)
	Price(ctx context.Context, symbol string) (string, error)
	Balance(ctx context.Context, asset string) (string, error)
	PositionRisk(ctx context.Context, symbol string) ([]*futures.PositionRiskV2, error)
	CreateOrder(ctx context.Context, symbol string, side futures.SideType, quantity string) (*futures.CreateOrderResponse, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

type defaultBinanceFuturesAPI struct {
	client *futures.Client
}

func (a *defaultBinanceFuturesAPI) Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	return a.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
}

func (a *defaultBinanceFuturesAPI) Price(ctx context.Context, symbol string) (string, error) {
	prices, err := a.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return "", err
	}
	if len(prices) == 0 {
		return "", fmt.Errorf("no price returned for %s", symbol)
	}
	return prices[0].Price, nil
}

func (a *defaultBinanceFuturesAPI) Balance(ctx context.Context, asset string) (string, error) {
	balances, err := a.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return "", err
	}
	for _, b := range balances {
		if b.Asset == asset {
			return b.AvailableBalance, nil
		}
	}
	return "0", nil
}

func (a *defaultBinanceFuturesAPI) PositionRisk(ctx context.Context, symbol string) ([]*futures.PositionRiskV2, error) {
	return a.client.NewGetPositionRiskV2Service().Symbol(symbol).Do(ctx)
}

func (a *defaultBinanceFuturesAPI) CreateOrder(ctx context.Context, symbol string, side futures.SideType, quantity string) (*futures.CreateOrderResponse, error) {
	return a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
}

func (a *defaultBinanceFuturesAPI) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return a.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
}

// BinanceFuturesAdapter implements Adapter against Binance USD-M futures.
// HMAC signing and clock skew are handled inside the official client;
// this layer adds the retry/backoff and bounded-deadline policy spec §5
// requires on top of it, and the quote-asset used to read available
// margin for GetBalance.
type BinanceFuturesAdapter struct {
	api        binanceFuturesAPI
	quoteAsset string
	maxRetries int
}

// NewBinanceFuturesAdapter builds an adapter for Binance USD-M futures.
// quoteAsset is the margin asset to report from GetBalance (e.g. "USDT").
func NewBinanceFuturesAdapter(apiKey, apiSecret, quoteAsset string) *BinanceFuturesAdapter {
	client := futures.NewClient(apiKey, apiSecret)
	return &BinanceFuturesAdapter{
		api:        &defaultBinanceFuturesAPI{client: client},
		quoteAsset: quoteAsset,
		maxRetries: 3,
	}
}

// withRetry retries transient failures with exponential backoff and
// jitter, bounded by a.maxRetries (spec §4.2: "transient (retry)").
func (a *BinanceFuturesAdapter) withRetry(ctx context.Context, op func() error) error {
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
	}
	return models.NewKindedError(models.ErrKindTransient, fmt.Errorf("exhausted retries: %w", lastErr))
}

func (a *BinanceFuturesAdapter) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	var klines []*futures.Kline
	err := a.withRetry(ctx, func() error {
		var err error
		klines, err = a.api.Klines(ctx, symbol, timeframe, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		close_, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		out = append(out, models.Candle{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close_,
			Volume:    volume,
		})
	}
	return out, nil
}

func (a *BinanceFuturesAdapter) GetTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var priceStr string
	err := a.withRetry(ctx, func() error {
		var err error
		priceStr, err = a.api.Price(ctx, symbol)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(priceStr)
}

func (a *BinanceFuturesAdapter) GetBalance(ctx context.Context, _ string) (decimal.Decimal, error) {
	var balStr string
	err := a.withRetry(ctx, func() error {
		var err error
		balStr, err = a.api.Balance(ctx, a.quoteAsset)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balStr)
}

func (a *BinanceFuturesAdapter) GetPositions(ctx context.Context, symbol string) ([]ExchangePosition, error) {
	var risks []*futures.PositionRiskV2
	err := a.withRetry(ctx, func() error {
		var err error
		risks, err = a.api.PositionRisk(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]ExchangePosition, 0, len(risks))
	for _, r := range risks {
		qty, _ := decimal.NewFromString(r.PositionAmt)
		if qty.IsZero() {
			continue
		}
		side := models.Long
		if qty.IsNegative() {
			side = models.Short
			qty = qty.Neg()
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		out = append(out, ExchangePosition{ID: symbol + "-" + string(side), Side: side, AvgEntry: entry, Qty: qty})
	}
	return out, nil
}

func (a *BinanceFuturesAdapter) OpenPosition(ctx context.Context, symbol string, side models.Side, lot decimal.Decimal, _ int) (*OpenResult, error) {
	binSide := futures.SideTypeBuy
	if side == models.Short {
		binSide = futures.SideTypeSell
	}

	var resp *futures.CreateOrderResponse
	err := a.withRetry(ctx, func() error {
		var err error
		resp, err = a.api.CreateOrder(ctx, symbol, binSide, lot.String())
		return err
	})
	if err != nil {
		return nil, models.NewKindedError(models.ErrKindRejected, err)
	}

	filled, _ := decimal.NewFromString(resp.AvgPrice)
	return &OpenResult{OrderID: strconv.FormatInt(resp.OrderID, 10), FilledPrice: filled}, nil
}

func (a *BinanceFuturesAdapter) ClosePosition(ctx context.Context, symbol, positionID string) (*CloseResult, error) {
	// Binance futures closes a position by submitting an opposite-side
	// reduce-only market order; the caller (grid.Strategy) supplies the
	// quantity via the position it is tracking, so this adapter only
	// needs to confirm the close filled and compute PnL from the fill.
	//
	// positionID here is the synthetic "symbol-side" ID from GetPositions;
	// the actual reduce-only order construction happens in the engine's
	// close path, which calls OpenPosition with the opposite side and lot.
	return nil, models.NewKindedError(models.ErrKindNotFound,
		fmt.Errorf("close by position id %s requires reduce-only order path, not implemented standalone", positionID))
}

func (a *BinanceFuturesAdapter) CancelPendingOrders(ctx context.Context, symbol string) error {
	return a.withRetry(ctx, func() error {
		return a.api.CancelAllOpenOrders(ctx, symbol)
	})
}
