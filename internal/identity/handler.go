package identity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler serves the agent's local session API.
type Handler struct {
	sessions      *SessionManager
	validator     *validator.Validate
	menu          []MenuItem
	signInTimeout time.Duration
}

// NewHandler creates a session handler. A zero signInTimeout means 15s.
func NewHandler(sessions *SessionManager, menu []MenuItem, signInTimeout time.Duration) *Handler {
	if signInTimeout <= 0 {
		signInTimeout = 15 * time.Second
	}
	return &Handler{
		sessions:      sessions,
		validator:     validator.New(),
		menu:          menu,
		signInTimeout: signInTimeout,
	}
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(h.sessions))
			r.Get("/permissions/{permission}", h.CheckPermission)
			r.Get("/navigation", h.Navigation)
		})
	})
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// PermissionResponse answers a single permission check.
type PermissionResponse struct {
	Permission domain.Permission `json:"permission"`
	Granted    bool              `json:"granted"`
}

// Get handles GET /session.
func (h *Handler) Get(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.sessions.Snapshot())
}

// Login handles POST /session/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.signInTimeout)
	defer cancel()

	if err := h.sessions.SignIn(ctx, req.Email, req.Password); err != nil {
		h.handleSignInError(ctx, w, err)
		return
	}

	logger := ctxlog.FromContext(r.Context())
	if err := h.sessions.WaitProfile(ctx); err != nil {
		logger.Warn("answering login before the profile loaded", "error", err)
	}
	logger.Info("signed in", "email", req.Email)
	httputil.Success(w, http.StatusOK, h.sessions.Snapshot())
}

// Logout handles POST /session/logout. It always succeeds locally.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// CheckPermission handles GET /session/permissions/{permission}.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	perm := domain.Permission(chi.URLParam(r, "permission"))
	httputil.Success(w, http.StatusOK, PermissionResponse{
		Permission: perm,
		Granted:    h.sessions.HasPermission(perm),
	})
}

// Navigation handles GET /session/navigation.
func (h *Handler) Navigation(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.sessions.Navigation(h.menu))
}

func (h *Handler) handleSignInError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		httputil.Error(w, http.StatusGatewayTimeout, "sign in timed out")
		return
	}
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		{Error: ErrNetwork, Status: http.StatusServiceUnavailable, Message: "backend unreachable"},
	})
}
