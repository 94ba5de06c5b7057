package connectivity

import (
	"encoding/json"
	"net/http"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Guard returns middleware that admits only callers holding perm.
type Guard func(perm domain.Permission) func(http.Handler) http.Handler

// Handler serves connectivity status and the offline movement queue.
type Handler struct {
	tracker   *Tracker
	guard     Guard
	validator *validator.Validate
}

// NewHandler creates a connectivity handler.
func NewHandler(tracker *Tracker, guard Guard) *Handler {
	return &Handler{
		tracker:   tracker,
		guard:     guard,
		validator: validator.New(),
	}
}

// RegisterRoutes registers connectivity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/connectivity", func(r chi.Router) {
		r.Get("/", h.Status)

		r.With(h.guard(domain.PermissionRead)).Get("/operations", h.ListOperations)
		r.With(h.guard(domain.PermissionWrite)).Post("/operations", h.EnqueueMovement)
		r.With(h.guard(domain.PermissionWrite)).Post("/sync", h.Sync)
	})
}

// EnqueueResponse is returned after a movement is queued.
type EnqueueResponse struct {
	Operation domain.PendingOperation `json:"operation"`
	Synced    bool                    `json:"synced"`
}

// Status handles GET /connectivity.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.tracker.Status())
}

// ListOperations handles GET /connectivity/operations.
func (h *Handler) ListOperations(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.tracker.PendingOperations())
}

// EnqueueMovement handles POST /connectivity/operations.
// Movements always go through the queue; when online the queue is flushed
// right away so the response tells whether the write already reached the backend.
func (h *Handler) EnqueueMovement(w http.ResponseWriter, r *http.Request) {
	var req domain.MovementInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	op := h.tracker.AddPendingOperation(payload)
	resp := EnqueueResponse{Operation: op}

	if h.tracker.IsOnline() {
		if err := h.tracker.SyncData(r.Context()); err != nil {
			ctxlog.FromContext(r.Context()).Warn("immediate sync failed", "operation_id", op.ID, "error", err)
		} else {
			resp.Synced = !h.isPending(op.ID)
		}
	}

	httputil.Success(w, http.StatusAccepted, resp)
}

// Sync handles POST /connectivity/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if !h.tracker.IsOnline() {
		httputil.Error(w, http.StatusConflict, "backend unreachable, working offline")
		return
	}

	if err := h.tracker.SyncData(r.Context()); err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrSyncFailed, Status: http.StatusBadGateway, Message: "sync failed"},
		})
		return
	}

	httputil.Success(w, http.StatusOK, h.tracker.Status())
}

func (h *Handler) isPending(id string) bool {
	for _, op := range h.tracker.PendingOperations() {
		if op.ID == id {
			return true
		}
	}
	return false
}
