package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are recorded under their literal path.
var staticRoutes = map[string]bool{
	"/":        true,
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// dashboardRoutes maps the segment after /dashboard/ to its route pattern.
var dashboardRoutes = map[string]string{
	"overview":     "/dashboard/overview/{project_id}",
	"progress":     "/dashboard/progress/{project_id}",
	"adjudication": "/dashboard/adjudication/{project_id}",
	"download":     "/dashboard/download/{project_id}",
}

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics and span names. It maps
// /dashboard/overview/65f0c2 to /dashboard/overview/{project_id}.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	rest, ok := strings.CutPrefix(path, "/dashboard/")
	if !ok {
		return "other"
	}
	parts := strings.Split(rest, "/")
	route, known := dashboardRoutes[parts[0]]
	if !known || len(parts) < 2 || parts[1] == "" {
		return "other"
	}
	switch {
	case len(parts) == 2:
		return route
	case len(parts) == 3 && parts[0] == "download" && parts[2] == "archive":
		return route + "/archive"
	}
	return "other"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// Health check endpoints (/health, /ready) are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				mrw.size,
			)
		})
	}
}
