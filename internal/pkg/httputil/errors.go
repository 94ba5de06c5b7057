package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError maps err to the first matching mapping.
// Unmatched errors are logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			if m.Status >= http.StatusInternalServerError {
				ctxlog.FromContext(ctx).Warn("request failed", "status", m.Status, "error", err)
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
