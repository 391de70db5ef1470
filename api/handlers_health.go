package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthHandler reports basic liveness: process uptime and trading mode.
// It deliberately does not touch the session manager so it stays cheap
// enough for a load balancer to poll.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"mode":           string(h.config.TradingMode),
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"timestamp":      time.Now(),
	})
}

// ResourceUsageHandler reports the Session Manager's resource-cap state:
// active session count against the configured ceiling, plus per-runtime
// goroutine count, for the admin surface (spec §5 supplement: operators
// need to see how close a process is to its concurrency cap before it
// starts rejecting new registrations).
func (h *Handler) ResourceUsageHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions_active":  h.manager.Count(),
		"sessions_max":     h.config.MaxConcurrentSessions,
		"goroutines":       runtime.NumGoroutine(),
		"memory_alloc":     m.Alloc,
		"memory_sys":       m.Sys,
		"uptime_seconds":   time.Since(h.startTime).Seconds(),
		"timestamp":        time.Now(),
	})
}
