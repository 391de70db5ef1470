package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridforge/hedgeengine/internal/models"
)

// DemoAdapter is an in-memory exchange simulator. It is contract-
// indistinguishable from BinanceFuturesAdapter at the Adapter interface
// level (spec §4.2: "must support a demo mode indistinguishable from live
// at the contract level"), grounded on the teacher's PaperBroker
// (mutex-guarded maps, instant-fill simulation) generalized to futures:
// dual-side positions, leverage, and OpenPosition/ClosePosition instead of
// spot buy/sell.
type DemoAdapter struct {
	mu           sync.RWMutex
	candles      map[string][]models.Candle
	balance      map[string]decimal.Decimal
	positions    map[string]demoPosition // keyed by orderID
	orderCounter int
}

type demoPosition struct {
	symbol   string
	side     models.Side
	entry    decimal.Decimal
	qty      decimal.Decimal
	openedAt time.Time
}

// NewDemoAdapter creates an empty demo adapter. Balances are set per
// symbol with SeedBalance; symbols not seeded default to 0.
func NewDemoAdapter() *DemoAdapter {
	return &DemoAdapter{
		candles:   make(map[string][]models.Candle),
		balance:   make(map[string]decimal.Decimal),
		positions: make(map[string]demoPosition),
	}
}

// SeedBalance sets the available margin for symbol, as a test/operator
// fixture would on a fresh demo account.
func (d *DemoAdapter) SeedBalance(symbol string, amount decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balance[symbol] = amount
}

// PushCandle appends a simulated candle for symbol, used by tests and by
// a demo market-data driver to advance the simulated price.
func (d *DemoAdapter) PushCandle(symbol string, c models.Candle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candles[symbol] = append(d.candles[symbol], c)
}

func (d *DemoAdapter) GetCandles(_ context.Context, symbol, _ string, limit int) ([]models.Candle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all := d.candles[symbol]
	if len(all) == 0 {
		return nil, models.NewKindedError(models.ErrKindTransient, fmt.Errorf("no candles seeded for %s", symbol))
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.Candle, len(all))
	copy(out, all)
	return out, nil
}

func (d *DemoAdapter) GetTicker(_ context.Context, symbol string) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all := d.candles[symbol]
	if len(all) == 0 {
		return decimal.Zero, models.NewKindedError(models.ErrKindTransient, fmt.Errorf("no price for %s", symbol))
	}
	return decimal.NewFromFloat(all[len(all)-1].Close), nil
}

func (d *DemoAdapter) GetBalance(_ context.Context, symbol string) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.balance[symbol], nil
}

func (d *DemoAdapter) GetPositions(_ context.Context, symbol string) ([]ExchangePosition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []ExchangePosition
	for id, p := range d.positions {
		if p.symbol != symbol {
			continue
		}
		out = append(out, ExchangePosition{ID: id, Side: p.side, AvgEntry: p.entry, Qty: p.qty})
	}
	return out, nil
}

func (d *DemoAdapter) OpenPosition(ctx context.Context, symbol string, side models.Side, lot decimal.Decimal, leverage int) (*OpenResult, error) {
	price, err := d.GetTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	notional := lot.Mul(price)
	margin := notional.Div(decimal.NewFromInt(int64(leverage)))
	if margin.GreaterThan(d.balance[symbol]) {
		return nil, models.NewKindedError(models.ErrKindRejected,
			fmt.Errorf("insufficient margin: need %s, have %s", margin.String(), d.balance[symbol].String()))
	}

	d.orderCounter++
	orderID := fmt.Sprintf("demo-%06d", d.orderCounter)
	d.positions[orderID] = demoPosition{symbol: symbol, side: side, entry: price, qty: lot, openedAt: time.Now()}
	d.balance[symbol] = d.balance[symbol].Sub(margin)

	return &OpenResult{OrderID: orderID, FilledPrice: price}, nil
}

func (d *DemoAdapter) ClosePosition(ctx context.Context, symbol, positionID string) (*CloseResult, error) {
	price, err := d.GetTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pos, ok := d.positions[positionID]
	if !ok {
		return nil, models.NewKindedError(models.ErrKindNotFound, fmt.Errorf("position not found: %s", positionID))
	}

	diff := price.Sub(pos.entry)
	if pos.side == models.Short {
		diff = diff.Neg()
	}
	pnl := diff.Mul(pos.qty)

	delete(d.positions, positionID)
	d.balance[symbol] = d.balance[symbol].Add(pnl)

	return &CloseResult{RealizedPnL: pnl}, nil
}

func (d *DemoAdapter) CancelPendingOrders(_ context.Context, _ string) error {
	return nil // demo adapter never has resting orders
}
