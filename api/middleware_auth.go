package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gridforge/hedgeengine/config"
)

// AdminAuthMiddleware gates the /admin route group behind a shared
// secret carried in the X-Admin-Secret header. Comparison is constant
// time to avoid leaking the secret's length or content through response
// timing.
func AdminAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AdminSecret == "" {
				log.Warn().Msg("no admin secret configured - admin routes unauthenticated (dev mode only)")
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("X-Admin-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.AdminSecret)) != 1 {
				log.Warn().Str("ip", r.RemoteAddr).Str("path", r.URL.Path).
					Msg("unauthorized admin access attempt")
				writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
