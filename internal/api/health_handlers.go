package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/quickgraph/internal/health"
)

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	checks  []health.Check
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// HealthHandlersConfig configures the health check handlers. Nil checkers
// report not_configured.
type HealthHandlersConfig struct {
	DBChecker      health.Checker
	RedisChecker   health.Checker
	ArchiveChecker health.Checker
	Timeout        time.Duration
	Logger         *slog.Logger
}

// NewHealthHandlers creates the health handlers. The database is the only
// critical dependency: Redis has in-memory fallbacks and the archive only
// serves one endpoint.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &HealthHandlers{
		checks: []health.Check{
			{Name: "database", Checker: config.DBChecker, Critical: true},
			{Name: "redis", Checker: config.RedisChecker},
			{Name: "archive", Checker: config.ArchiveChecker},
		},
		timeout: config.Timeout,
		logger:  config.Logger,
		now:     time.Now,
	}
}

// Register mounts /health and /ready on mux.
func (h *HealthHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. It answers as long as the process serves
// requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": health.StatusOK},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. It returns 503 when a critical dependency is
// down and reports "degraded" when only optional ones are.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), h.logger, h.timeout, h.checks)

	status, code := "healthy", http.StatusOK
	switch {
	case !report.Ready:
		status, code = "unhealthy", http.StatusServiceUnavailable
		h.logger.ErrorContext(r.Context(), "service not ready", "failing", report.Failing())
	case report.Degraded:
		status = "degraded"
	}

	writeJSON(w, r.Context(), code, HealthResponse{
		Status:    status,
		Checks:    report.Checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
