package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func echo(_ context.Context, msg json.RawMessage) (json.RawMessage, error) {
	return msg, nil
}

func TestCall_Dispatch(t *testing.T) {
	r := New()
	r.Handle("ping", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return Reply(map[string]any{"status": "alive"})
	})
	resp, err := r.Call(context.Background(), NewMessage("ping", nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != `{"status":"alive"}` {
		t.Fatalf("got %s", resp)
	}
}

func TestCall_NoListener(t *testing.T) {
	_, err := New().Call(context.Background(), NewMessage("ping", nil))
	var nl *ErrNoListener
	if !errors.As(err, &nl) || nl.Action != "ping" {
		t.Fatalf("got %T %v, want *ErrNoListener", err, err)
	}
}

func TestCall_UnknownAction(t *testing.T) {
	r := New()
	r.Handle("ping", echo)
	_, err := r.Call(context.Background(), NewMessage("dance", nil))
	var ua *ErrUnknownAction
	if !errors.As(err, &ua) || ua.Action != "dance" {
		t.Fatalf("got %T %v, want *ErrUnknownAction", err, err)
	}

	_, err = r.Call(context.Background(), json.RawMessage(`{"x":1}`))
	if !errors.As(err, &ua) {
		t.Fatalf("missing action: got %v", err)
	}
	if _, err := r.Call(context.Background(), json.RawMessage(`nope`)); err == nil {
		t.Fatal("malformed message accepted")
	}
}

func TestHandle_UnregisterOnlyOwn(t *testing.T) {
	r := New()
	unregOld := r.Handle("ping", echo)
	r.Handle("ping", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"new"`), nil
	})
	unregOld()

	resp, err := r.Call(context.Background(), NewMessage("ping", nil))
	if err != nil || string(resp) != `"new"` {
		t.Fatalf("replacement handler lost: %s %v", resp, err)
	}

	r.Remove("ping")
	if got := r.Actions(); len(got) != 0 {
		t.Fatalf("actions after remove: %v", got)
	}
}

func TestNewMessage_Fields(t *testing.T) {
	msg := NewMessage("updateStats", map[string]any{"itemsViewed": 3, "actionsTaken": 1})
	var got map[string]any
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatal(err)
	}
	if got["action"] != "updateStats" || got["itemsViewed"] != float64(3) || got["actionsTaken"] != float64(1) {
		t.Fatalf("got %v", got)
	}
}

func TestNotify_SwallowsErrors(t *testing.T) {
	r := New()
	r.Notify(context.Background(), NewMessage("updateStats", nil))

	called := false
	r.Handle("updateStats", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		called = true
		return nil, errors.New("ui closed")
	})
	r.Notify(context.Background(), NewMessage("updateStats", nil))
	if !called {
		t.Fatal("handler not reached")
	}
}

func TestMiddleware_Timeout(t *testing.T) {
	slow := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err := WithTimeout(10*time.Millisecond)(slow)(context.Background(), NewMessage("ping", nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	r := New(WithMiddleware(Recovery(slog.Default()), Logging(slog.Default())))
	r.Handle("boom", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("kaboom")
	})
	_, err := r.Call(context.Background(), NewMessage("boom", nil))
	var p *ErrPanic
	if !errors.As(err, &p) || p.Action != "boom" {
		t.Fatalf("got %v, want *ErrPanic", err)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg json.RawMessage) (json.RawMessage, error) {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	Chain(mw("a"), mw("b"))(echo)(context.Background(), NewMessage("x", nil))
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("got %v", order)
	}
}
