// CLAUDE:SUMMARY In-process JSON message router (ping, settingsUpdated, updateStats) with typed errors and middleware.
// Package channel is the in-process request/response bus between the
// engine, the supervisor and the control surfaces. Messages are JSON
// objects whose "action" field selects the handler:
//
//	r := channel.New()
//	r.Handle("ping", engine.handlePing)
//	resp, err := r.Call(ctx, channel.NewMessage("ping", nil))
//
// Callers never learn who answers; a message nobody handles fails with a
// typed error that fire-and-forget senders ignore.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler answers one message.
type Handler func(ctx context.Context, msg json.RawMessage) (json.RawMessage, error)

// Router dispatches messages by action. Safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]*registration
	mws      []Middleware
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every dispatched handler, first listed outermost.
func WithMiddleware(mws ...Middleware) Option {
	return func(r *Router) { r.mws = append(r.mws, mws...) }
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{handlers: make(map[string]*registration), logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

type registration struct {
	h Handler
}

// Handle registers h for action, replacing any previous handler. The
// returned func unregisters it unless another handler replaced it since.
func (r *Router) Handle(action string, h Handler) (unregister func()) {
	reg := &registration{h: h}
	r.mu.Lock()
	r.handlers[action] = reg
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		if r.handlers[action] == reg {
			delete(r.handlers, action)
		}
		r.mu.Unlock()
	}
}

// Remove unregisters action.
func (r *Router) Remove(action string) {
	r.mu.Lock()
	delete(r.handlers, action)
	r.mu.Unlock()
}

// Actions lists the registered actions, sorted.
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Call dispatches msg and returns the handler's reply. It fails with
// *ErrNoListener when no handler is registered at all and with
// *ErrUnknownAction when others are but not this one.
func (r *Router) Call(ctx context.Context, msg json.RawMessage) (json.RawMessage, error) {
	action, err := ActionOf(msg)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	reg, ok := r.handlers[action]
	empty := len(r.handlers) == 0
	mws := r.mws
	r.mu.RUnlock()

	if !ok {
		if empty {
			return nil, &ErrNoListener{Action: action}
		}
		return nil, &ErrUnknownAction{Action: action}
	}
	h := reg.h
	if len(mws) > 0 {
		h = Chain(mws...)(h)
	}
	r.logger.DebugContext(ctx, "channel: dispatch", "action", action)
	return h(ctx, msg)
}

// Notify sends msg and drops the reply. Missing receivers are ignored,
// other failures are logged at debug level.
func (r *Router) Notify(ctx context.Context, msg json.RawMessage) {
	_, err := r.Call(ctx, msg)
	if err == nil {
		return
	}
	var nl *ErrNoListener
	if errors.As(err, &nl) {
		return
	}
	r.logger.DebugContext(ctx, "channel: notify failed", "error", err)
}

// NewMessage builds {"action": action, ...fields}.
func NewMessage(action string, fields map[string]any) json.RawMessage {
	m := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["action"] = action
	b, err := json.Marshal(m)
	if err != nil {
		// Only reachable with unmarshalable field values.
		b, _ = json.Marshal(map[string]string{"action": action})
	}
	return b
}

// ActionOf extracts the action field.
func ActionOf(msg json.RawMessage) (string, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return "", fmt.Errorf("channel: decode message: %w", err)
	}
	if head.Action == "" {
		return "", &ErrUnknownAction{}
	}
	return head.Action, nil
}

// Reply marshals v as a handler response.
func Reply(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("channel: encode reply: %w", err)
	}
	return b, nil
}
