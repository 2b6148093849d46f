package middleware

import (
	"net/http"
	"strings"
	"time"

	"sras/internal/logger"
)

// RequestLogger logs every finished request. Streaming endpoints are logged
// when the client disconnects. The ResponseWriter is passed through untouched
// so flushing and hijacking keep working.
func RequestLogger(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/healthz") {
				return
			}
			logger.Info("%s %s from %s (%s)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start).Round(time.Millisecond))
		})
	}
}
