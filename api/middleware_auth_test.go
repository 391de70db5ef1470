package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridforge/hedgeengine/config"
)

func TestAdminAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no secret configured allows all", func(t *testing.T) {
		cfg := &config.Config{AdminSecret: ""}
		handler := AdminAuthMiddleware(cfg)(next)

		req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		cfg := &config.Config{AdminSecret: "secret123"}
		handler := AdminAuthMiddleware(cfg)(next)

		req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		cfg := &config.Config{AdminSecret: "secret123"}
		handler := AdminAuthMiddleware(cfg)(next)

		req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
		req.Header.Set("X-Admin-Secret", "wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("correct secret allowed", func(t *testing.T) {
		cfg := &config.Config{AdminSecret: "secret123"}
		handler := AdminAuthMiddleware(cfg)(next)

		req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
		req.Header.Set("X-Admin-Secret", "secret123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
