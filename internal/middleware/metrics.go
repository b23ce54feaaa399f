package middleware

import (
	"net/http"
	"time"

	"github.com/linkpulse/collector/internal/metrics"
)

// Metrics middleware records request counts, latencies and error classes.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}
