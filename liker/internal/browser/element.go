package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
)

// Element is a dom.Element backed by a remote node. Element functions use
// the function(){} form so `this` binds to the node.
type Element struct {
	el *rod.Element
}

var _ dom.Element = (*Element)(nil)

func wrap(els rod.Elements) []dom.Element {
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("browser: attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) HasClass(ctx context.Context, name string) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`function (c) { return this.classList.contains(c) }`, name)
	if err != nil {
		return false, fmt.Errorf("browser: class %s: %w", name, err)
	}
	return res.Value.Bool(), nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`function () { return this.textContent || "" }`)
	if err != nil {
		return "", fmt.Errorf("browser: text: %w", err)
	}
	return res.Value.Str(), nil
}

func (e *Element) Rect(ctx context.Context) (dom.Rect, error) {
	res, err := e.el.Context(ctx).Eval(`function () {
		const r = this.getBoundingClientRect();
		return {left: r.left, top: r.top, width: r.width, height: r.height};
	}`)
	if err != nil {
		return dom.Rect{}, fmt.Errorf("browser: rect: %w", err)
	}
	v := res.Value
	return dom.Rect{
		Left:   v.Get("left").Num(),
		Top:    v.Get("top").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}, nil
}

func (e *Element) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return wrap(els), nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`function () { this.scrollIntoView({behavior: "smooth", block: "center"}) }`)
	if err != nil {
		return fmt.Errorf("browser: scroll into view: %w", err)
	}
	return nil
}

// Dispatch sends a trusted CDP mouse move for PointerMove and a bubbling,
// cancelable DOM MouseEvent for the rest.
func (e *Element) Dispatch(ctx context.Context, ev dom.PointerEvent) error {
	if ev.Kind == dom.PointerMove {
		if err := e.el.Page().Mouse.MoveTo(proto.Point{X: ev.X, Y: ev.Y}); err != nil {
			return fmt.Errorf("browser: mouse move: %w", err)
		}
		return nil
	}
	_, err := e.el.Context(ctx).Eval(`function (kind, x, y, button) {
		this.dispatchEvent(new MouseEvent(kind, {
			bubbles: true, cancelable: true, view: window,
			clientX: x, clientY: y, button: button,
		}));
	}`, string(ev.Kind), ev.X, ev.Y, ev.Button)
	if err != nil {
		return fmt.Errorf("browser: dispatch %s: %w", ev.Kind, err)
	}
	return nil
}
