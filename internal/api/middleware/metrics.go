package middleware

import (
	"net/http"
	"time"

	"github.com/brainbox/retailplus/internal/metrics"
)

// Metrics records request counts and latency by route pattern, so label
// cardinality stays bounded by the router.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			m.ObserveRequest(r.Method, routePattern(r), rw.statusCode, time.Since(start))
		})
	}
}
