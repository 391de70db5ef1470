package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/hedgeengine/config"
	"github.com/gridforge/hedgeengine/internal/exchange"
	"github.com/gridforge/hedgeengine/internal/models"
	"github.com/gridforge/hedgeengine/internal/session"
)

func testRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	factory := func(symbol string) exchange.Adapter {
		a := exchange.NewDemoAdapter()
		a.SeedBalance(symbol, decimal.NewFromInt(10000))
		a.PushCandle(symbol, models.Candle{Close: 100})
		return a
	}
	manager := session.NewManager(5, factory, nil)
	cfg := &config.Config{MaxConcurrentSessions: 5}
	return NewRouter(cfg, manager, nil), cfg
}

func validRegisterBody(userID string) []byte {
	req := config.RegisterSessionRequest{
		UserID:   userID,
		Symbol:   "BTCUSDT",
		Leverage: 1,
		Settings: models.Settings{
			Symbol:       "BTCUSDT",
			Leverage:     1,
			TickInterval: "50ms",
			Timeframe:    "1m",
			Levels: [4]models.GridLevelConfig{
				{Percent: 0.5, MaxOrders: 5, LotSize: 0.001},
				{Percent: 1, MaxOrders: 5, LotSize: 0.002},
				{Percent: 2, MaxOrders: 5, LotSize: 0.003},
				{Percent: 3, MaxOrders: 5, LotSize: 0.004},
			},
			BaseLot: 0.001, MinLot: 0.0001, MaxLot: 1,
		},
	}
	b, _ := json.Marshal(req)
	return b
}

func TestRegisterSessionHandler_RejectsInvalidSettings(t *testing.T) {
	router, _ := testRouter(t)

	body := validRegisterBody("u1")
	var req config.RegisterSessionRequest
	require.NoError(t, json.Unmarshal(body, &req))
	req.Settings.BaseLot = 0 // violates gt=0
	bad, _ := json.Marshal(req)

	httpReq := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(bad))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle_RegisterStartStatusStopUnregister(t *testing.T) {
	router, _ := testRouter(t)

	registerReq := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(validRegisterBody("u1")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerReq)
	require.Equal(t, http.StatusCreated, rec.Code)

	startReq := httptest.NewRequest(http.MethodPost, "/sessions/u1/start", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, startReq)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		statusReq := httptest.NewRequest(http.MethodGet, "/sessions/u1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, statusReq)
		var state models.SessionState
		_ = json.Unmarshal(rec.Body.Bytes(), &state)
		return state.Status == models.StatusRunning
	}, time.Second, 5*time.Millisecond)

	stopReq := httptest.NewRequest(http.MethodPost, "/sessions/u1/stop", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, stopReq)
	require.Equal(t, http.StatusOK, rec.Code)

	unregisterReq := httptest.NewRequest(http.MethodDelete, "/sessions/u1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, unregisterReq)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionStatusHandler_UnknownUserReturnsNotFound(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForceClosePositionsHandler_UnknownUserReturnsBadRequest(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/sessions/ghost/force-close", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForceClosePositionsHandler_FlattensRegisteredSession(t *testing.T) {
	router, _ := testRouter(t)

	registerReq := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(validRegisterBody("u1")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerReq)
	require.Equal(t, http.StatusCreated, rec.Code)

	closeReq := httptest.NewRequest(http.MethodPost, "/admin/sessions/u1/force-close", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, closeReq)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes_RequireSecretWhenConfigured(t *testing.T) {
	factory := func(symbol string) exchange.Adapter { return exchange.NewDemoAdapter() }
	manager := session.NewManager(5, factory, nil)
	cfg := &config.Config{MaxConcurrentSessions: 5, AdminSecret: "topsecret"}
	router := NewRouter(cfg, manager, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/resources", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/resources", nil)
	req.Header.Set("X-Admin-Secret", "topsecret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
