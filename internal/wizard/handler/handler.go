package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civictrack/civictrack-backend/internal/capture"
	"github.com/civictrack/civictrack-backend/internal/location"
	"github.com/civictrack/civictrack-backend/internal/report"
	"github.com/civictrack/civictrack-backend/internal/wizard"
	"github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

const maxImageBytes = 10 << 20

// WizardHandler exposes the report wizard over HTTP
type WizardHandler struct {
	registry *wizard.Registry
	capturer *capture.Capturer
	resolver *location.Resolver
	logger   *logger.Logger
}

// NewWizardHandler creates a new wizard handler
func NewWizardHandler(registry *wizard.Registry, capturer *capture.Capturer, resolver *location.Resolver, log *logger.Logger) *WizardHandler {
	return &WizardHandler{
		registry: registry,
		capturer: capturer,
		resolver: resolver,
		logger:   log,
	}
}

// Register mounts the wizard routes
func (h *WizardHandler) Register(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Abandon)
		r.Post("/image", h.AttachImage)
		r.Post("/location", h.SetLocation)
		r.Post("/advance-capture", h.step((*wizard.Controller).AdvanceFromCapture))
		r.Post("/back-to-capture", h.step((*wizard.Controller).BackToCapture))
		r.Post("/describe", h.Describe)
		r.Post("/cancel-classify", h.step((*wizard.Controller).CancelClassify))
		r.Post("/advance-classify", h.step((*wizard.Controller).AdvanceFromClassify))
		r.Post("/back-to-describe", h.step((*wizard.Controller).BackToDescribe))
		r.Post("/submit", h.Submit)
	})
}

// Create starts a new draft in the capture step
func (h *WizardHandler) Create(w http.ResponseWriter, r *http.Request) {
	c := h.registry.Create()
	httputil.Created(w, c.Snapshot())
}

// Get returns the draft state
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, c.Snapshot())
}

// Abandon discards a draft
func (h *WizardHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Delete(chi.URLParam(r, "id")) {
		httputil.ErrorLocalized(w, r, errors.NotFoundWithKey("wizard"))
		return
	}
	httputil.NoContent(w)
}

// AttachImage accepts a multipart upload in the "image" field. Any payload is
// accepted; its detected content type is recorded.
func (h *WizardHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequest("image file is required"))
		return
	}
	defer file.Close()

	img, err := h.capturer.FromReader(header.Filename, file)
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequest("could not read image"))
		return
	}
	if !capture.IsImage(img) {
		h.logger.Debug().Str("content_type", img.ContentType).Msg("non-image payload captured")
	}

	h.respond(w, r, func() (wizard.Snapshot, error) { return c.SetImage(img) })
}

// SetLocationRequest optionally carries the client's own position
type SetLocationRequest struct {
	Lat *float64 `json:"lat" validate:"required_with=Lng"`
	Lng *float64 `json:"lng" validate:"required_with=Lat"`
}

// SetLocation records the report position. Without coordinates the platform
// locator is asked; invalid or missing positions fall back to downtown.
func (h *WizardHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req SetLocationRequest
	present, err := httputil.DecodeOptionalJSONLocalized(r, &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if present {
		if err := httputil.Validate(&req); err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
	}

	loc := h.resolve(r.Context(), req)
	h.respond(w, r, func() (wizard.Snapshot, error) { return c.SetLocation(loc) })
}

func (h *WizardHandler) resolve(ctx context.Context, req SetLocationRequest) report.Location {
	if req.Lat != nil && req.Lng != nil {
		return h.resolver.Resolve(ctx, location.Coordinates{Lat: *req.Lat, Lng: *req.Lng})
	}
	return h.resolver.Current(ctx)
}

// DescribeRequest carries the free-text description
type DescribeRequest struct {
	Description string `json:"description"`
	// Wait blocks until the analysis finishes or the request ends
	Wait bool `json:"wait"`
}

// Describe stores the description and starts the analysis
func (h *WizardHandler) Describe(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req DescribeRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	snap, err := c.AdvanceFromDescribe(req.Description)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if req.Wait || r.URL.Query().Get("wait") == "true" {
		if snap, err = c.AwaitClassification(r.Context()); err != nil {
			h.logger.Debug().Err(err).Str("wizard_id", c.ID()).Msg("stopped waiting for classification")
		}
	}
	httputil.JSON(w, http.StatusOK, snap)
}

// Submit commits the report
func (h *WizardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	rep, err := c.Submit(r.Context())
	if err != nil {
		if !errors.IsRejection(err) {
			h.logger.Error().Err(err).Str("wizard_id", c.ID()).Msg("submit failed")
		}
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, rep)
}

// step adapts a parameterless controller operation to a handler
func (h *WizardHandler) step(op func(*wizard.Controller) (wizard.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.controller(w, r)
		if !ok {
			return
		}
		h.respond(w, r, func() (wizard.Snapshot, error) { return op(c) })
	}
}

func (h *WizardHandler) respond(w http.ResponseWriter, r *http.Request, op func() (wizard.Snapshot, error)) {
	snap, err := op()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, snap)
}

func (h *WizardHandler) controller(w http.ResponseWriter, r *http.Request) (*wizard.Controller, bool) {
	c, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, false
	}
	return c, true
}
