package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/internhub/reportwatch/internal/backend"
	"github.com/internhub/reportwatch/internal/metrics"
	"github.com/internhub/reportwatch/internal/notify"
	"github.com/internhub/reportwatch/internal/report"
	"github.com/internhub/reportwatch/internal/tracker"
)

// Pinger checks that the report service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	tracker *tracker.Tracker
	hub     *notify.Hub
	pinger  Pinger
}

// NewHandler constructs a Handler. pinger may be nil.
func NewHandler(t *tracker.Tracker, hub *notify.Hub, pinger Pinger) *Handler {
	return &Handler{tracker: t, hub: hub, pinger: pinger}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/reports", h.SubmitReport)
	mux.HandleFunc("GET /api/v1/reports/active", h.ActiveReports)
	mux.HandleFunc("GET /api/v1/reports/{id}", h.GetReport)
	mux.HandleFunc("POST /api/v1/reports/{id}/retry", h.RetryReport)
	mux.HandleFunc("DELETE /api/v1/reports/{id}", h.DeleteReport)
	mux.HandleFunc("POST /api/v1/reports/{id}/download", h.DownloadReport)
	mux.HandleFunc("PUT /api/v1/monitor/{id}", h.OpenMonitor)
	mux.HandleFunc("GET /api/v1/monitor", h.GetMonitor)
	mux.HandleFunc("DELETE /api/v1/monitor", h.CloseMonitor)
	mux.HandleFunc("GET /api/v1/history", h.ChangePage)
	mux.HandleFunc("POST /api/v1/history/refresh", h.RefreshHistory)
	mux.HandleFunc("GET /api/v1/history/state", h.HistoryState)
	mux.HandleFunc("GET /api/v1/events", h.StreamEvents)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())
}

// SubmitReport handles POST /api/v1/reports and responds 202 with the created job.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB max
	var sel report.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sel.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := h.tracker.Submit(r.Context(), sel)
	if err != nil {
		writeUpstreamError(w, err, "failed to submit report")
		return
	}

	writeJSON(w, http.StatusAccepted, j)
}

// ActiveReports handles GET /api/v1/reports/active and lists the ids behind the badge.
func (h *Handler) ActiveReports(w http.ResponseWriter, r *http.Request) {
	ids := h.tracker.Active()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  ids,
		"count": len(ids),
	})
}

// GetReport handles GET /api/v1/reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	j, err := h.tracker.View(r.Context(), r.PathValue("id"))
	if err != nil {
		writeUpstreamError(w, err, "failed to get report")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// RetryReport handles POST /api/v1/reports/{id}/retry and responds 202 with the new job.
func (h *Handler) RetryReport(w http.ResponseWriter, r *http.Request) {
	j, err := h.tracker.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeUpstreamError(w, err, "failed to retry report")
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

// DeleteReport handles DELETE /api/v1/reports/{id}?confirm=true and responds 204.
// The confirm parameter is the user's answer to the confirmation prompt.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirmed {
		writeError(w, http.StatusBadRequest, "delete requires confirm=true")
		return
	}

	j := report.Job{ID: r.PathValue("id")}
	err := h.tracker.Delete(r.Context(), j, func(report.Job) bool { return confirmed })
	if err != nil {
		writeUpstreamError(w, err, "failed to delete report")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadReport handles POST /api/v1/reports/{id}/download. It responds 409
// while a download of the same report is still running.
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.tracker.DownloadInFlight(id) {
		writeError(w, http.StatusConflict, "download already in progress")
		return
	}

	j, err := h.tracker.View(r.Context(), id)
	if err != nil {
		writeUpstreamError(w, err, "failed to get report")
		return
	}
	if j.Status != report.StatusCompleted {
		writeError(w, http.StatusConflict, "report is not ready")
		return
	}

	res, err := h.tracker.Download(r.Context(), *j)
	if err != nil {
		writeUpstreamError(w, err, "failed to download report")
		return
	}
	if res.Skipped {
		writeError(w, http.StatusConflict, "download already in progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"path":     res.Path,
		"filename": filepath.Base(res.Path),
	})
}

// OpenMonitor handles PUT /api/v1/monitor/{id} and opens the status surface.
func (h *Handler) OpenMonitor(w http.ResponseWriter, r *http.Request) {
	h.tracker.OpenStatus(r.PathValue("id"))
	view, _ := h.tracker.Monitor()
	writeJSON(w, http.StatusAccepted, view)
}

// GetMonitor handles GET /api/v1/monitor.
func (h *Handler) GetMonitor(w http.ResponseWriter, r *http.Request) {
	view, open := h.tracker.Monitor()
	if !open {
		writeError(w, http.StatusNotFound, "no status surface open")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CloseMonitor handles DELETE /api/v1/monitor and responds 204.
func (h *Handler) CloseMonitor(w http.ResponseWriter, r *http.Request) {
	h.tracker.CloseStatus()
	w.WriteHeader(http.StatusNoContent)
}

// ChangePage handles GET /api/v1/history?page=&page_size=.
func (h *Handler) ChangePage(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r.URL.Query().Get("page"), 1)
	size := parseIntParam(r.URL.Query().Get("page_size"), 0)

	if err := h.tracker.ChangePage(r.Context(), page, size); err != nil {
		writeUpstreamError(w, err, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.History())
}

// RefreshHistory handles POST /api/v1/history/refresh. A refresh requested
// while another is running is ignored and reported as refreshed=false.
func (h *Handler) RefreshHistory(w http.ResponseWriter, r *http.Request) {
	ran, err := h.tracker.RefreshNow(r.Context())
	if err != nil {
		writeUpstreamError(w, err, "failed to refresh history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": ran,
		"history":   h.tracker.History(),
	})
}

// HistoryState handles GET /api/v1/history/state.
func (h *Handler) HistoryState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.History())
}

// Health handles GET /api/v1/health and responds 200.
// It also reports whether the report service answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":      "ok",
		"backend":     "unknown",
		"active_jobs": len(h.tracker.Active()),
	}
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			resp["backend"] = "unreachable"
			resp["backend_error"] = err.Error()
		} else {
			resp["backend"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseIntParam parses a query string integer, returning the fallback on empty or invalid input.
func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// writeUpstreamError maps a tracker error to a response. Client errors from
// the report service keep their status; everything else is a 502.
func writeUpstreamError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, tracker.ErrNotConfirmed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeError(w, apiErr.StatusCode, apiErr.Message)
	default:
		writeError(w, http.StatusBadGateway, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
