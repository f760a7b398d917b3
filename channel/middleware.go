package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"
)

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain composes middlewares; the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// WithTimeout bounds a call. The handler sees the deadline through ctx.
func WithTimeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg json.RawMessage) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, msg)
		}
	}
}

// Recovery turns handler panics into *ErrPanic.
func Recovery(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg json.RawMessage) (resp json.RawMessage, err error) {
			defer func() {
				if v := recover(); v != nil {
					action, _ := ActionOf(msg)
					logger.ErrorContext(ctx, "channel: handler panic",
						"action", action, "panic", v, "stack", string(debug.Stack()))
					err = &ErrPanic{Action: action, Value: v}
				}
			}()
			return next(ctx, msg)
		}
	}
}

// Logging logs each call with its duration.
func Logging(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg json.RawMessage) (json.RawMessage, error) {
			start := time.Now()
			resp, err := next(ctx, msg)
			action, _ := ActionOf(msg)
			if err != nil {
				logger.WarnContext(ctx, "channel: call failed",
					"action", action, "duration_ms", time.Since(start).Milliseconds(), "error", err)
			} else {
				logger.DebugContext(ctx, "channel: call ok",
					"action", action, "duration_ms", time.Since(start).Milliseconds())
			}
			return resp, err
		}
	}
}
