package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/internal/notification/service"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	service *service.NotificationService
	logger  *logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(svc *service.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: svc,
		logger:  log,
	}
}

// Register mounts the notification routes
func (h *NotificationHandler) Register(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/read-all", h.MarkAllAsRead)
	r.Post("/{id}/read", h.MarkAsRead)
	r.Get("/permission", h.GetPermission)
	r.Post("/permission", h.RequestPermission)
}

// ListResponse is the notification feed
type ListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// List returns the caller's notifications, newest first
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, ListResponse{
		Notifications: h.service.List(r.Context()),
		UnreadCount:   h.service.UnreadCount(r.Context()),
	})
}

// MarkAsRead marks one notification read
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAsRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// MarkAllAsRead marks the whole feed read
func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	changed := h.service.MarkAllAsRead(r.Context())
	httputil.JSON(w, http.StatusOK, map[string]int{"updated": changed})
}

// PermissionRequest carries the answer the user gave to the browser prompt
type PermissionRequest struct {
	Permission domain.Permission `json:"permission" validate:"required,oneof=granted denied default"`
}

// PermissionResponse reports the resulting permission state
type PermissionResponse struct {
	Permission domain.Permission `json:"permission"`
	Granted    bool              `json:"granted"`
}

// GetPermission returns the push permission state
func (h *NotificationHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	p := h.service.Permission(r.Context())
	httputil.JSON(w, http.StatusOK, PermissionResponse{Permission: p, Granted: p == domain.PermissionGranted})
}

// RequestPermission records the prompt answer
func (h *NotificationHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	granted := h.service.RequestPermission(r.Context(), req.Permission)
	httputil.JSON(w, http.StatusOK, PermissionResponse{
		Permission: h.service.Permission(r.Context()),
		Granted:    granted,
	})
}
