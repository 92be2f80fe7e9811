package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/internal/directory/service"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/permissions"
)

// ReportHandler serves report tracking and the authority dashboard
type ReportHandler struct {
	service *service.DirectoryService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.DirectoryService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// Register mounts the report routes. Tracking is public; the dashboard
// needs reports.manage.
func (h *ReportHandler) Register(r chi.Router) {
	r.Get("/track", h.Track)

	r.Group(func(r chi.Router) {
		r.Use(httputil.RequirePermission(permissions.ReportsManage))
		r.Get("/", h.List)
		r.Get("/analytics", h.Analytics)
		r.Patch("/{id}/status", h.UpdateStatus)
	})

	r.Get("/{id}", h.Get)
}

// TrackResponse lists the reports matching a tracking query
type TrackResponse struct {
	Query   string           `json:"query"`
	Reports []*domain.Record `json:"reports"`
}

// Track searches reports by id fragment
func (h *ReportHandler) Track(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	recs, err := h.service.Track(r.Context(), q)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, TrackResponse{Query: q, Reports: recs})
}

// Get returns one report
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

// List returns the filtered dashboard list
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.service.List(r.Context(), domain.Filter{
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, recs, &httputil.Meta{Total: int64(len(recs))})
}

// UpdateStatus records a status change
func (h *ReportHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req service.StatusUpdate
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	rec, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

// Analytics returns the dashboard summary
func (h *ReportHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Analytics(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, a)
}
