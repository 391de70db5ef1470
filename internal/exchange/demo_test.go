package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/hedgeengine/internal/models"
)

func TestDemoAdapter_GetTickerUsesLastPushedCandle(t *testing.T) {
	d := NewDemoAdapter()
	d.PushCandle("BTCUSDT", models.Candle{Close: 100})
	d.PushCandle("BTCUSDT", models.Candle{Close: 105})

	price, err := d.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(105).Equal(price))
}

func TestDemoAdapter_GetTickerWithNoCandlesIsTransient(t *testing.T) {
	d := NewDemoAdapter()
	_, err := d.GetTicker(context.Background(), "BTCUSDT")
	require.Error(t, err)

	var kinded *models.KindedError
	require.True(t, errors.As(err, &kinded))
	assert.Equal(t, models.ErrKindTransient, kinded.Kind)
}

func TestDemoAdapter_OpenPositionDeductsMargin(t *testing.T) {
	d := NewDemoAdapter()
	d.SeedBalance("BTCUSDT", decimal.NewFromInt(1000))
	d.PushCandle("BTCUSDT", models.Candle{Close: 100})

	res, err := d.OpenPosition(context.Background(), "BTCUSDT", models.Long, decimal.NewFromInt(1), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.True(t, decimal.NewFromInt(100).Equal(res.FilledPrice))

	bal, err := d.GetBalance(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(990).Equal(bal)) // 1000 - (1*100/10)
}

func TestDemoAdapter_OpenPositionRejectsInsufficientMargin(t *testing.T) {
	d := NewDemoAdapter()
	d.SeedBalance("BTCUSDT", decimal.NewFromInt(1))
	d.PushCandle("BTCUSDT", models.Candle{Close: 100})

	_, err := d.OpenPosition(context.Background(), "BTCUSDT", models.Long, decimal.NewFromInt(1), 1)
	require.Error(t, err)

	var kinded *models.KindedError
	require.True(t, errors.As(err, &kinded))
	assert.Equal(t, models.ErrKindRejected, kinded.Kind)
}

func TestDemoAdapter_ClosePositionRealizesPnL(t *testing.T) {
	d := NewDemoAdapter()
	d.SeedBalance("BTCUSDT", decimal.NewFromInt(1000))
	d.PushCandle("BTCUSDT", models.Candle{Close: 100})

	res, err := d.OpenPosition(context.Background(), "BTCUSDT", models.Long, decimal.NewFromInt(1), 10)
	require.NoError(t, err)

	d.PushCandle("BTCUSDT", models.Candle{Close: 110})
	closeRes, err := d.ClosePosition(context.Background(), "BTCUSDT", res.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(closeRes.RealizedPnL))

	positions, err := d.GetPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestDemoAdapter_ClosePositionUnknownIDNotFound(t *testing.T) {
	d := NewDemoAdapter()
	d.PushCandle("BTCUSDT", models.Candle{Close: 100})

	_, err := d.ClosePosition(context.Background(), "BTCUSDT", "ghost")
	require.Error(t, err)

	var kinded *models.KindedError
	require.True(t, errors.As(err, &kinded))
	assert.Equal(t, models.ErrKindNotFound, kinded.Kind)
}

func TestDemoAdapter_GetCandlesRespectsLimit(t *testing.T) {
	d := NewDemoAdapter()
	for i := 0; i < 5; i++ {
		d.PushCandle("BTCUSDT", models.Candle{Close: float64(100 + i)})
	}

	candles, err := d.GetCandles(context.Background(), "BTCUSDT", "1m", 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, float64(104), candles[2].Close)
}

func TestDemoAdapter_CancelPendingOrdersIsNoop(t *testing.T) {
	d := NewDemoAdapter()
	assert.NoError(t, d.CancelPendingOrders(context.Background(), "BTCUSDT"))
}
