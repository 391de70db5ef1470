package exchange

import (
	"context"
	"errors"
	"testing"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/hedgeengine/internal/models"
)

// mockBinanceAPI implements binanceFuturesAPI for testing, mirrored on the
// teacher's MockBinanceAPI pattern (data/providers/binance_mock_test.go).
type mockBinanceAPI struct {
	mock.Mock
}

func (m *mockBinanceAPI) Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*futures.Kline), args.Error(1)
}

func (m *mockBinanceAPI) Price(ctx context.Context, symbol string) (string, error) {
	args := m.Called(ctx, symbol)
	return args.String(0), args.Error(1)
}

func (m *mockBinanceAPI) Balance(ctx context.Context, asset string) (string, error) {
	args := m.Called(ctx, asset)
	return args.String(0), args.Error(1)
}

func (m *mockBinanceAPI) PositionRisk(ctx context.Context, symbol string) ([]*futures.PositionRiskV2, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*futures.PositionRiskV2), args.Error(1)
}

func (m *mockBinanceAPI) CreateOrder(ctx context.Context, symbol string, side futures.SideType, quantity string) (*futures.CreateOrderResponse, error) {
	args := m.Called(ctx, symbol, side, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*futures.CreateOrderResponse), args.Error(1)
}

func (m *mockBinanceAPI) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	args := m.Called(ctx, symbol)
	return args.Error(0)
}

func newTestAdapter(api binanceFuturesAPI) *BinanceFuturesAdapter {
	return &BinanceFuturesAdapter{api: api, quoteAsset: "USDT", maxRetries: 2}
}

func TestBinanceFuturesAdapter_GetTickerParsesPrice(t *testing.T) {
	api := new(mockBinanceAPI)
	api.On("Price", mock.Anything, "BTCUSDT").Return("50000.5", nil)

	a := newTestAdapter(api)
	price, err := a.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50000.5", price.String())
	api.AssertExpectations(t)
}

func TestBinanceFuturesAdapter_GetTickerRetriesTransientFailure(t *testing.T) {
	api := new(mockBinanceAPI)
	api.On("Price", mock.Anything, "BTCUSDT").Return("", errors.New("timeout")).Once()
	api.On("Price", mock.Anything, "BTCUSDT").Return("50000", nil).Once()

	a := newTestAdapter(api)
	price, err := a.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50000", price.String())
	api.AssertExpectations(t)
}

func TestBinanceFuturesAdapter_GetTickerExhaustsRetriesAsTransient(t *testing.T) {
	api := new(mockBinanceAPI)
	api.On("Price", mock.Anything, "BTCUSDT").Return("", errors.New("down")).Times(3)

	a := newTestAdapter(api)
	_, err := a.GetTicker(context.Background(), "BTCUSDT")
	require.Error(t, err)

	var kinded *models.KindedError
	require.True(t, errors.As(err, &kinded))
	assert.Equal(t, models.ErrKindTransient, kinded.Kind)
	api.AssertExpectations(t)
}

func TestBinanceFuturesAdapter_GetPositionsSkipsFlatAndInfersSide(t *testing.T) {
	api := new(mockBinanceAPI)
	api.On("PositionRisk", mock.Anything, "BTCUSDT").Return([]*futures.PositionRiskV2{
		{PositionAmt: "0", EntryPrice: "0"},
		{PositionAmt: "1.5", EntryPrice: "100"},
		{PositionAmt: "-0.5", EntryPrice: "200"},
	}, nil)

	a := newTestAdapter(api)
	positions, err := a.GetPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, models.Long, positions[0].Side)
	assert.Equal(t, models.Short, positions[1].Side)
	assert.True(t, positions[1].Qty.IsPositive())
}

func TestBinanceFuturesAdapter_OpenPositionWrapsRejectedOnError(t *testing.T) {
	api := new(mockBinanceAPI)
	api.On("CreateOrder", mock.Anything, "BTCUSDT", futures.SideTypeBuy, mock.Anything).
		Return(nil, errors.New("margin insufficient")).Times(3)

	a := newTestAdapter(api)
	_, err := a.OpenPosition(context.Background(), "BTCUSDT", models.Long, decimal.NewFromInt(1), 10)
	require.Error(t, err)

	var kinded *models.KindedError
	require.True(t, errors.As(err, &kinded))
	assert.Equal(t, models.ErrKindRejected, kinded.Kind)
}

func TestBinanceFuturesAdapter_ClosePositionIsNotImplementedStandalone(t *testing.T) {
	a := newTestAdapter(new(mockBinanceAPI))
	_, err := a.ClosePosition(context.Background(), "BTCUSDT", "BTCUSDT-long")
	require.Error(t, err)

	var kinded *models.KindedError
	require.True(t, errors.As(err, &kinded))
	assert.Equal(t, models.ErrKindNotFound, kinded.Kind)
}
