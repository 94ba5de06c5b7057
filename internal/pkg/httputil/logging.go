package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestLoggerMiddleware puts a request_id scoped logger into the request
// context and logs one line per request once the handler returns.
// Probe paths listed in quiet are logged at debug level.
func RequestLoggerMiddleware(base *slog.Logger, quiet ...string) func(http.Handler) http.Handler {
	quietSet := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietSet[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			logger := base.With("request_id", reqID)
			ctx := ctxlog.WithLogger(r.Context(), logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			level := slog.LevelInfo
			if _, ok := quietSet[r.URL.Path]; ok {
				level = slog.LevelDebug
			}
			logger.Log(ctx, level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
