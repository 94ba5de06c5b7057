package notifications

import (
	"net/http"
	"strconv"

	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 100

// Handler serves the notification feed to the terminal UI.
type Handler struct {
	feed *Feed
}

// NewHandler creates a new notifications handler.
func NewHandler(feed *Feed) *Handler {
	return &Handler{feed: feed}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", h.List)
}

// List handles GET /notifications?limit=&after=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			httputil.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "after must be a notification id")
			return
		}
		after = n
	}

	httputil.Success(w, http.StatusOK, h.feed.Recent(limit, after))
}
