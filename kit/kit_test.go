package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var trail []string
	tag := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				trail = append(trail, name)
				defer func() { trail = append(trail, "/"+name) }()
				return next(ctx, req)
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		trail = append(trail, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(tag("outer"), tag("inner"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("got %v, %v", resp, err)
	}
	if got, want := strings.Join(trail, " "), "outer inner endpoint /inner /outer"; got != want {
		t.Fatalf("order: got %q, want %q", got, want)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	boom := func(context.Context, any) (any, error) { panic("boom") }

	_, err := Recovery(logger)(boom)(WithTransport(context.Background(), "mcp"), nil)
	if err == nil {
		t.Fatal("panic not turned into an error")
	}
	if !strings.Contains(buf.String(), "panic=boom") || !strings.Contains(buf.String(), "transport=mcp") {
		t.Fatalf("log: %s", buf.String())
	}
}

func TestLogging_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	errFail := errors.New("fail")

	ok := Logging(logger, "status")(func(context.Context, any) (any, error) { return 1, nil })
	bad := Logging(logger, "ping")(func(context.Context, any) (any, error) { return nil, errFail })

	ok(context.Background(), nil)
	if _, err := bad(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "endpoint=status") {
		t.Errorf("success line missing: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "endpoint=ping") {
		t.Errorf("failure line missing: %s", out)
	}
}

func TestContext_Keys(t *testing.T) {
	ctx := context.Background()
	if v := GetPassID(ctx); v != "" {
		t.Fatalf("empty context: got %q", v)
	}

	ctx = WithEngineID(WithPassID(ctx, "pass_1"), "eng_1")
	if v := GetPassID(ctx); v != "pass_1" {
		t.Fatalf("pass id: got %q", v)
	}
	if v := GetEngineID(ctx); v != "eng_1" {
		t.Fatalf("engine id: got %q", v)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	if v := GetTransport(context.Background()); v != "channel" {
		t.Fatalf("default transport: got %q, want 'channel'", v)
	}
	if v := GetTransport(WithTransport(context.Background(), "mcp")); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}
