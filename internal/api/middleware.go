package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireCronSecret guards scheduler triggers with a bearer secret. An
// unconfigured secret closes the endpoints rather than opening them.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.Scheduler.CronSecret
		if secret == "" {
			writeError(w, http.StatusServiceUnavailable, "cron secret not configured")
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdminKey guards manual sends and suppression management.
func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.Admin.APIKey
		if key == "" {
			writeError(w, http.StatusServiceUnavailable, "admin API key not configured")
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
