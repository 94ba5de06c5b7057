package movements

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for the movements module.
type Handler struct {
	service *Service
	authz   httputil.RoleAuthorizer
}

// NewHandler creates a new movements handler.
func NewHandler(service *Service, authz httputil.RoleAuthorizer) *Handler {
	return &Handler{service: service, authz: authz}
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.With(httputil.RequirePermission(h.authz, domain.PermissionWrite)).
		Post("/batches", h.ApplyBatch)
	r.With(httputil.RequirePermission(h.authz, domain.PermissionViewMovements, domain.PermissionRead)).
		Get("/movements", h.ListMovements)
	r.With(httputil.RequirePermission(h.authz, domain.PermissionRead)).
		Get("/materials", h.ListMaterials)
	r.With(httputil.RequirePermission(h.authz, domain.PermissionViewReports)).
		Get("/reports/stock", h.StockReport)
}

// BatchRequest represents a replayed offline queue.
type BatchRequest struct {
	Operations []domain.PendingOperation `json:"operations"`
}

// ApplyBatch handles POST /batches.
func (h *Handler) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	userID := httputil.GetUserID(r.Context())
	result, err := h.service.ApplyBatch(r.Context(), userID, req.Operations)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	ctxlog.FromContext(r.Context()).Info("batch applied",
		"user_id", userID, "applied", result.Applied, "duplicates", result.Duplicates)
	httputil.Success(w, http.StatusOK, result)
}

// ListMovements handles GET /movements?search=&limit=.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	result, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}

// ListMaterials handles GET /materials.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListMaterials(r.Context())
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}

// StockReport handles GET /reports/stock.
func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.StockReport(r.Context())
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, report)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrEmptyBatch, Status: http.StatusBadRequest},
		{Error: ErrBatchTooLarge, Status: http.StatusRequestEntityTooLarge},
		{Error: ErrInvalidPayload, Status: http.StatusUnprocessableEntity},
		{Error: ErrDuplicateOperation, Status: http.StatusUnprocessableEntity},
		{Error: ErrMaterialNotFound, Status: http.StatusUnprocessableEntity},
		{Error: ErrMachineryNotFound, Status: http.StatusUnprocessableEntity},
		{Error: ErrInsufficientStock, Status: http.StatusConflict},
	})
}
