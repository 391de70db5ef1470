package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gridforge/hedgeengine/config"
	"github.com/gridforge/hedgeengine/internal/models"
	"github.com/gridforge/hedgeengine/internal/session"
)

// Handler holds the dependencies every route needs: the session
// registry and the process configuration. It deliberately has no
// business logic of its own — every handler dispatches straight to
// session.Manager (spec §1 Non-goals: the control surface stays thin).
type Handler struct {
	manager   *session.Manager
	config    *config.Config
	startTime time.Time
}

// NewHandler builds a Handler.
func NewHandler(manager *session.Manager, cfg *config.Config) *Handler {
	return &Handler{manager: manager, config: cfg, startTime: time.Now()}
}

// RegisterSessionHandler handles POST /sessions: validates the request
// and creates a new IDLE session, but does not start its tick loop.
func (h *Handler) RegisterSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req config.RegisterSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}

	if err := config.ValidateSettings(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.manager.Register(req.UserID, req.Symbol, req.Leverage, req.Settings); err != nil {
		writeError(w, http.StatusConflict, err.Error(), "REGISTER_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID, "status": string(models.StatusIdle)})
}

// StartSessionHandler handles POST /sessions/{userID}/start.
func (h *Handler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	// The tick loop outlives this request, so it must not inherit the
	// request's cancellation.
	if err := h.manager.Start(context.WithoutCancel(r.Context()), userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "START_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": "starting"})
}

// StopSessionHandler handles POST /sessions/{userID}/stop.
func (h *Handler) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.manager.Stop(userID); err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": "stopped"})
}

// SessionStatusHandler handles GET /sessions/{userID}.
func (h *Handler) SessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state, err := h.manager.Status(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// UnregisterSessionHandler handles DELETE /sessions/{userID}. Idempotent:
// deleting an already-absent session is not an error.
func (h *Handler) UnregisterSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.manager.Unregister(userID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "UNREGISTER_FAILED")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForceClosePositionsHandler handles POST /admin/sessions/{userID}/force-close.
func (h *Handler) ForceClosePositionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.manager.ForceClosePositions(r.Context(), userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "FORCE_CLOSE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": "positions_closed"})
}

// ListSessionsHandler handles GET /admin/sessions.
func (h *Handler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.ListAll())
}

// RotateAdminSecretHandler handles POST /admin/rotate-secret.
func (h *Handler) RotateAdminSecretHandler(w http.ResponseWriter, r *http.Request) {
	newSecret, err := h.config.RotateAdminSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "ROTATE_FAILED")
		return
	}
	log.Info().Msg("admin secret rotated")
	writeJSON(w, http.StatusOK, map[string]string{"admin_secret": newSecret})
}

func writeError(w http.ResponseWriter, status int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
