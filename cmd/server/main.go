// Command server runs the grid-hedging engine's control surface: the
// Session Manager and its HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gridforge/hedgeengine/api"
	"github.com/gridforge/hedgeengine/config"
	"github.com/gridforge/hedgeengine/internal/exchange"
	"github.com/gridforge/hedgeengine/internal/models"
	"github.com/gridforge/hedgeengine/internal/realtime"
	"github.com/gridforge/hedgeengine/internal/session"
	"github.com/gridforge/hedgeengine/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("starting hedgeengine server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if cfg.IsLive() {
		log.Warn().Msg("LIVE TRADING MODE - real funds at risk")
	} else {
		log.Info().Msg("demo trading mode")
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open indicator store")
	}
	defer db.Close()
	indicatorStore := store.NewIndicatorStore(db)

	adapterFactory := func(symbol string) exchange.Adapter {
		if cfg.IsLive() {
			return exchange.NewBinanceFuturesAdapter(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.QuoteAsset)
		}
		demo := exchange.NewDemoAdapter()
		demo.SeedBalance(symbol, decimal.NewFromInt(10000))
		return demo
	}

	rt := realtime.NewManager()
	go rt.Run()

	manager := session.NewManager(cfg.MaxConcurrentSessions, adapterFactory, rt).
		WithIndicatorStore(indicatorStore)

	router := api.NewRouter(cfg, manager, rt)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	for _, s := range manager.ListAll() {
		if s.Status == models.StatusRunning {
			if err := manager.Stop(s.UserID); err != nil {
				log.Warn().Err(err).Str("user_id", s.UserID).Msg("failed to stop session during shutdown")
			}
		}
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}
