package catalog

import (
	"context"
	"net/http"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for the machinery catalog.
type Handler struct {
	service *Service
	authz   httputil.RoleAuthorizer
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service, authz httputil.RoleAuthorizer) *Handler {
	return &Handler{service: service, authz: authz}
}

// RegisterProtectedRoutes registers catalog routes behind AuthMiddleware.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Route("/machinery", func(r chi.Router) {
		r.Use(httputil.RequirePermission(h.authz, domain.PermissionRead))
		r.Get("/", h.ListMachinery)
		r.Get("/{id}", h.GetMachinery)
	})
}

// ListMachinery handles GET /machinery?search=&status=.
func (h *Handler) ListMachinery(w http.ResponseWriter, r *http.Request) {
	filter := MachineryFilter{Search: r.URL.Query().Get("search")}
	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.MachineryStatus(status)
		filter.Status = &s
	}

	machinery, err := h.service.ListMachinery(r.Context(), filter)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, machinery)
}

// GetMachinery handles GET /machinery/{id}.
func (h *Handler) GetMachinery(w http.ResponseWriter, r *http.Request) {
	machine, err := h.service.GetMachinery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, machine)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrMachineryNotFound, Status: http.StatusNotFound},
		{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	})
}
