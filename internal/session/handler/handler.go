package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/civictrack/civictrack-backend/internal/session/domain"
	"github.com/civictrack/civictrack-backend/internal/session/service"
	"github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// SessionHandler handles authentication endpoints
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// Register mounts the auth routes
func (h *SessionHandler) Register(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/google", h.LoginWithGoogle)
	r.Post("/signup", h.Signup)
	r.Post("/logout", h.Logout)
	r.Get("/me", h.Me)
	r.Patch("/me", h.UpdateProfile)
}

// Login handles email login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	response, err := h.service.Login(r.Context(), &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, response)
}

// LoginWithGoogle handles Google sign-in
func (h *SessionHandler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.LoginWithGoogle(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, response)
}

// Signup handles account creation
func (h *SessionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	response, err := h.service.Signup(r.Context(), &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, response)
}

// Logout revokes the bearer token
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		httputil.ErrorLocalized(w, r, errors.Unauthorized("sign in required"))
		return
	}

	if err := h.service.Logout(r.Context(), parts[1]); err != nil {
		h.logger.Warn().Err(err).Msg("logout error")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// Me returns the signed-in user
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// UpdateProfile applies a partial profile update
func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileUpdate
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}
