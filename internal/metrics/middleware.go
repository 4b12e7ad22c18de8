package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// Middleware is a chi middleware that records HTTP request metrics for
// the status server.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		if httpRequestsTotal != nil {
			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		}
		if httpRequestDurationSeconds != nil {
			httpRequestDurationSeconds.Observe(time.Since(start).Seconds())
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
