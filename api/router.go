// Package api provides the thin HTTP control surface over the Session
// Manager: register/start/stop/status/unregister for individual trading
// sessions, plus an admin group for fleet-wide visibility.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridforge/hedgeengine/config"
	"github.com/gridforge/hedgeengine/internal/realtime"
	"github.com/gridforge/hedgeengine/internal/session"
	"github.com/gridforge/hedgeengine/internal/tracing"
)

// NewRouter builds the full HTTP handler tree. rt may be nil, in which
// case /admin/ws is not mounted.
func NewRouter(cfg *config.Config, manager *session.Manager, rt *realtime.Manager) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(TraceMiddleware)
	r.Use(middleware.RealIP)
	r.Use(zerologLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Protects against basic abuse; each session's own per-user rate
	// control lives in the Session Manager's concurrency cap, not here.
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(httprate.LimitByIP(20, time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
			next.ServeHTTP(w, r)
		})
	})

	h := NewHandler(manager, cfg)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": "hedgeengine", "status": "running"})
	})
	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Use(AuditMiddleware)
		r.Post("/", h.RegisterSessionHandler)
		r.Post("/{userID}/start", h.StartSessionHandler)
		r.Post("/{userID}/stop", h.StopSessionHandler)
		r.Get("/{userID}", h.SessionStatusHandler)
		r.Delete("/{userID}", h.UnregisterSessionHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(cfg))
		r.Use(AuditMiddleware)
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Get("/sessions", h.ListSessionsHandler)
		r.Post("/sessions/{userID}/force-close", h.ForceClosePositionsHandler)
		r.Get("/resources", h.ResourceUsageHandler)
		r.Post("/rotate-secret", h.RotateAdminSecretHandler)
		if rt != nil {
			r.Get("/ws", rt.HandleWebSocket)
		}
	})

	return r
}

// zerologLogger logs each completed request, correlated with the trace
// ID TraceMiddleware attached to the request context.
func zerologLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		tracing.Logger(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
