// Package shield provides the HTTP middleware in front of the local control
// API: security headers, body limits, request IDs and a loopback guard.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.ControlStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// RequestIDKey is the context key for the request ID.
	RequestIDKey contextKey = "shield_request_id"
)

// DefaultMaxBody bounds control API request bodies.
const DefaultMaxBody = 64 << 10

// ControlStack returns the middleware for the control API, ordered:
// LoopbackOnly → SecurityHeaders → MaxBody → RequestID.
func ControlStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		LoopbackOnly,
		SecurityHeaders(APIHeaders()),
		MaxBody(DefaultMaxBody),
		RequestID(logger),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetRequestID returns the request ID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
