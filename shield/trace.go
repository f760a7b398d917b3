package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/feedpilot/idgen"
)

var requestIDs = idgen.Prefixed("req_", idgen.Default)

// RequestID tags each request with an ID, set in the context, the
// X-Request-ID response header and a per-request logger. logger may be nil.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestIDs()
			w.Header().Set("X-Request-ID", id)

			reqLogger := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			reqLogger.Debug("shield: request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
