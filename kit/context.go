package kit

import "context"

type contextKey string

const (
	EngineIDKey  contextKey = "kit_engine_id"
	PassIDKey    contextKey = "kit_pass_id"
	TransportKey contextKey = "kit_transport" // "channel", "http", "mcp"
)

func WithEngineID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, EngineIDKey, id)
}
func GetEngineID(ctx context.Context) string {
	v, _ := ctx.Value(EngineIDKey).(string)
	return v
}

func WithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PassIDKey, id)
}
func GetPassID(ctx context.Context) string {
	v, _ := ctx.Value(PassIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "channel"
}
