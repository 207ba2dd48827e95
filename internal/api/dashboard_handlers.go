package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/quickgraph/internal/adjudication"
	"github.com/onnwee/quickgraph/internal/archive"
	"github.com/onnwee/quickgraph/internal/dashboard"
	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/export"
	"github.com/onnwee/quickgraph/internal/middleware"
)

// DefaultAdjudicationSort orders candidates by descending agreement.
const DefaultAdjudicationSort = adjudication.SortDescending

// DashboardService is the part of dashboard.Service the handlers use.
type DashboardService interface {
	ComputeProgress(ctx context.Context, projectID string) (dashboard.Progress, error)
	Overview(ctx context.Context, projectID string) (dashboard.Overview, error)
	RankAdjudicationCandidate(ctx context.Context, projectID string, q adjudication.Query) (adjudication.Candidate, error)
	BuildExport(ctx context.Context, projectID string, usernames []string) (export.Result, error)
	ArchiveExport(ctx context.Context, projectID string, usernames []string, format export.Format) (*archive.Object, export.Stats, error)
}

// DashboardHandlers serves the /dashboard endpoints.
type DashboardHandlers struct {
	service DashboardService
	logger  *slog.Logger
}

// NewDashboardHandlers creates the dashboard handlers. A nil logger uses
// slog.Default.
func NewDashboardHandlers(service DashboardService, logger *slog.Logger) *DashboardHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandlers{service: service, logger: logger}
}

// Register mounts the handlers on mux. wrapExport decorates the download
// endpoints, typically with a rate limiter; nil leaves them undecorated.
func (h *DashboardHandlers) Register(mux *http.ServeMux, wrapExport func(http.Handler) http.Handler) {
	if wrapExport == nil {
		wrapExport = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("GET /dashboard/overview/{project_id}", h.GetOverview)
	mux.HandleFunc("GET /dashboard/progress/{project_id}", h.GetProgress)
	mux.HandleFunc("GET /dashboard/adjudication/{project_id}", h.GetAdjudication)
	mux.Handle("GET /dashboard/download/{project_id}", wrapExport(http.HandlerFunc(h.GetDownload)))
	mux.Handle("POST /dashboard/download/{project_id}/archive", wrapExport(http.HandlerFunc(h.PostArchive)))
}

// GetOverview handles GET /dashboard/overview/{project_id}.
func (h *DashboardHandlers) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context(), r.PathValue("project_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, overview)
}

// GetProgress handles GET /dashboard/progress/{project_id}.
func (h *DashboardHandlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.ComputeProgress(r.Context(), r.PathValue("project_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, progress)
}

// GetAdjudication handles GET /dashboard/adjudication/{project_id}.
// Query: skip, search_term, flags, sort, min_agreement, dataset_item_id.
func (h *DashboardHandlers) GetAdjudication(w http.ResponseWriter, r *http.Request) {
	q, err := parseAdjudicationQuery(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	candidate, err := h.service.RankAdjudicationCandidate(r.Context(), r.PathValue("project_id"), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, candidate)
}

// GetDownload handles GET /dashboard/download/{project_id}.
// Query: usernames (comma separated, defaults to the caller), format
// (json or cbor).
func (h *DashboardHandlers) GetDownload(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	format, usernames, ok := h.parseDownload(w, r)
	if !ok {
		return
	}

	res, err := h.service.BuildExport(r.Context(), projectID, usernames)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Encode fully before writing so encoder failures still get an envelope.
	var buf bytes.Buffer
	if err := export.Encode(&buf, format, res); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadFilename(projectID, format)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write export", "error", err)
	}
}

// ArchiveResponse is the body of a successful archive request.
type ArchiveResponse struct {
	Archive *archive.Object `json:"archive"`
	Stats   export.Stats    `json:"stats"`
}

// PostArchive handles POST /dashboard/download/{project_id}/archive. It
// stores the export in the configured bucket and returns a presigned URL.
func (h *DashboardHandlers) PostArchive(w http.ResponseWriter, r *http.Request) {
	format, usernames, ok := h.parseDownload(w, r)
	if !ok {
		return
	}

	obj, stats, err := h.service.ArchiveExport(r.Context(), r.PathValue("project_id"), usernames, format)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusCreated, ArchiveResponse{Archive: obj, Stats: stats})
}

func (h *DashboardHandlers) parseDownload(w http.ResponseWriter, r *http.Request) (export.Format, []string, bool) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType, "format must be json or cbor")
		return "", nil, false
	}

	usernames := splitCSV(r.URL.Query().Get("usernames"))
	if len(usernames) == 0 {
		if u := middleware.GetUsername(r.Context()); u != "" {
			usernames = []string{u}
		}
	}
	return format, usernames, true
}

// writeServiceError maps service errors onto the envelope.
func (h *DashboardHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var code, message string
	switch {
	case errors.Is(err, dataset.ErrProjectNotFound):
		code, message = ErrCodeProjectNotFound, "Project not found"
	case errors.Is(err, dashboard.ErrNoUsernames):
		code, message = ErrCodeValidation, err.Error()
	case errors.Is(err, adjudication.ErrInvalidSkip),
		errors.Is(err, adjudication.ErrInvalidSort),
		errors.Is(err, adjudication.ErrInvalidMinAgreement):
		code, message = ErrCodeValidation, err.Error()
	case errors.Is(err, export.ErrUnsupportedFormat):
		code, message = ErrCodeUnsupportedType, err.Error()
	case errors.Is(err, archive.ErrNotConfigured):
		code, message = ErrCodeNotConfigured, "Export archive is not configured"
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		h.logger.DebugContext(r.Context(), "request canceled", "error", err)
		return
	default:
		code, message = ErrCodeInternal, "Internal server error"
		h.logger.ErrorContext(r.Context(), "dashboard request failed",
			"path", r.URL.Path,
			"error", err)
	}

	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// parseAdjudicationQuery reads the adjudication query string. Missing
// numeric parameters take their defaults; malformed ones are errors.
func parseAdjudicationQuery(r *http.Request) (adjudication.Query, error) {
	values := r.URL.Query()

	skip, err := intParam(values.Get("skip"), 0, "skip")
	if err != nil {
		return adjudication.Query{}, err
	}
	sort, err := intParam(values.Get("sort"), int(DefaultAdjudicationSort), "sort")
	if err != nil {
		return adjudication.Query{}, err
	}
	minAgreement, err := intParam(values.Get("min_agreement"), 0, "min_agreement")
	if err != nil {
		return adjudication.Query{}, err
	}

	q := adjudication.Query{
		Filters: adjudication.Filters{
			SearchTerm:    strings.TrimSpace(values.Get("search_term")),
			Flags:         adjudication.ParseFlags(values.Get("flags")),
			MinAgreement:  minAgreement,
			DatasetItemID: strings.TrimSpace(values.Get("dataset_item_id")),
		},
		Sort: adjudication.SortDirection(sort),
		Skip: skip,
	}
	return q, q.Validate()
}

func intParam(raw string, def int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", name)
	}
	return v, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func downloadFilename(projectID string, format export.Format) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, projectID)
	return "quickgraph-" + safe + format.Extension()
}
