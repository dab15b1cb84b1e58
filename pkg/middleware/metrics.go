// Package middleware wraps the theme service's HTTP handlers with request
// ids, Prometheus instrumentation, rate limiting, CORS and timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/metrics"
)

// Metrics records request count, latency and the in-flight gauge, labelled
// by route rather than raw path.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := routeLabel(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

// routeLabel prefers the pattern the mux matched. Requests that reached the
// mux through a derived request (timeouts, request ids) fall back to
// normalizePath.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

var knownPrefixes = []string{"/api/v1/", "/health/", "/metrics"}

// normalizePath collapses run ids so each route is one label value and
// folds everything outside the served prefixes into "unmatched" so
// scanners cannot grow the label set.
func normalizePath(path string) string {
	const runs = "/api/v1/runs/"
	if strings.HasPrefix(path, runs) && len(path) > len(runs) {
		return runs + "{id}"
	}
	for _, p := range knownPrefixes {
		if strings.HasPrefix(path, p) {
			return path
		}
	}
	return "unmatched"
}
