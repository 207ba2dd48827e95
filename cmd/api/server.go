package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/quickgraph/internal/api"
	"github.com/onnwee/quickgraph/internal/middleware"
)

// serviceName identifies the API in traces and the root endpoint.
const serviceName = "quickgraph-api"

// serverDeps is everything newHandler wires together. Validator and CORS
// origins are optional.
type serverDeps struct {
	Logger    *slog.Logger
	Dashboard api.DashboardService
	Health    *api.HealthHandlers
	Validator middleware.TokenValidator
	Registry  *prometheus.Registry
	Metrics   *middleware.Metrics

	RateLimitStore  middleware.RateLimitStore
	ExportRateLimit middleware.RateLimitConfig

	CORSAllowedOrigins []string
}

// newHandler builds the route tree and middleware chain:
//
//	RequestID -> Tracing -> Logging -> CORS -> HTTPMetrics -> mux
//
// Only /dashboard routes require a token. Download routes are rate limited
// per user after authentication.
func newHandler(d serverDeps) http.Handler {
	dashboardMux := http.NewServeMux()
	limitExport := middleware.RateLimiter(d.RateLimitStore, d.ExportRateLimit, middleware.UserKeyFunc(), "export", d.Metrics)
	api.NewDashboardHandlers(d.Dashboard, d.Logger).Register(dashboardMux, limitExport)

	mux := http.NewServeMux()
	mux.Handle("/dashboard/", middleware.Auth(d.Validator)(dashboardMux))
	d.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"` + serviceName + `"}`))
	})

	var h http.Handler = mux
	h = middleware.HTTPMetrics(d.Metrics)(h)
	h = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAge:           600,
	})(h)
	h = middleware.Logging(d.Logger)(h)
	h = middleware.Tracing(serviceName)(h)
	return middleware.RequestID(h)
}
