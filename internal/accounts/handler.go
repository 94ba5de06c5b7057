package accounts

import (
	"context"
	"net/http"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the accounts module.
type Handler struct {
	service   *Service
	tokens    httputil.TokenValidator
	authz     httputil.RoleAuthorizer
	validator *validator.Validate
}

// NewHandler creates a new accounts handler.
func NewHandler(service *Service, tokens httputil.TokenValidator, authz httputil.RoleAuthorizer) *Handler {
	return &Handler{
		service:   service,
		tokens:    tokens,
		authz:     authz,
		validator: validator.New(),
	}
}

// RegisterRoutes registers public auth routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/session", h.Session)
	r.Get("/profiles/{id}", h.GetProfile)

	r.Route("/users", func(r chi.Router) {
		r.Use(httputil.RequirePermission(h.authz, domain.PermissionManageUsers))
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Patch("/{id}", h.UpdateUser)
	})
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login.
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

	token, err := h.service.Login(r.Context(), LoginInput(req))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	ctxlog.FromContext(r.Context()).Info("user signed in", "user_id", token.User.ID)
	httputil.Success(w, http.StatusOK, token)
}

// Logout handles POST /auth/logout.
// It answers 204 whether or not the presented token was still valid.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw, ok := httputil.BearerToken(r); ok {
		principal, err := h.tokens.ValidateToken(r.Context(), raw)
		if err == nil {
			if err := h.service.Logout(r.Context(), principal.TokenID); err != nil {
				ctxlog.FromContext(r.Context()).Warn("logout error", "error", err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, user)
}

// GetProfile handles GET /profiles/{id}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, profile)
}

// ListUsers handles GET /users?search=&role=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter := UserFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("role"); v != "" {
		role := domain.Role(v)
		if !role.IsValid() {
			httputil.Error(w, http.StatusBadRequest, ErrInvalidRole.Error())
			return
		}
		filter.Role = &role
	}

	users, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, users)
}

// CreateUserRequest represents user creation request body.
type CreateUserRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Name     string      `json:"name" validate:"required,max=200"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     domain.Role `json:"role" validate:"required,oneof=admin operator viewer"`
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), CreateUserInput(req))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusCreated, user)
}

// UpdateUserRequest represents user update request body.
type UpdateUserRequest struct {
	Name     *string      `json:"name" validate:"omitempty,max=200"`
	Role     *domain.Role `json:"role" validate:"omitempty,oneof=admin operator viewer"`
	Password *string      `json:"password" validate:"omitempty,min=8"`
}

// UpdateUser handles PATCH /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), UpdateUserInput(req))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, user)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrUserNotFound, Status: http.StatusNotFound},
		{Error: ErrEmailExists, Status: http.StatusConflict},
		{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		{Error: ErrInvalidToken, Status: http.StatusUnauthorized},
		{Error: ErrInvalidRole, Status: http.StatusBadRequest},
	})
}
