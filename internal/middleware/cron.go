package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/dataplug/dataplug-api/internal/pkg/response"
)

// CronToken gates the scheduled-job endpoints behind a shared secret passed
// as X-Cron-Token. An empty configured token disables the endpoints entirely.
func CronToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				response.NotFound(w, "not found")
				return
			}
			got := r.Header.Get("X-Cron-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.Unauthorized(w, "invalid cron token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
