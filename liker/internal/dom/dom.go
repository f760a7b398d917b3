// Package dom defines the narrow document capabilities the engine needs.
// The browser package backs them with CDP; domtest backs them in memory.
package dom

import (
	"context"
	"errors"
)

// ErrDetached is returned by an element whose node left the document.
var ErrDetached = errors.New("dom: element detached")

// Rect is a viewport-relative bounding box in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (r Rect) Center() (x, y float64) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// PointerKind is a DOM pointer event type.
type PointerKind string

const (
	PointerMove PointerKind = "mousemove"
	PointerDown PointerKind = "mousedown"
	PointerUp   PointerKind = "mouseup"
	Click       PointerKind = "click"
)

// PointerEvent is dispatched at viewport coordinates X, Y.
type PointerEvent struct {
	Kind   PointerKind
	X, Y   float64
	Button int
}

// Element is one node of the live document.
type Element interface {
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	HasClass(ctx context.Context, name string) (bool, error)
	// Text returns the rendered text content.
	Text(ctx context.Context) (string, error)
	Rect(ctx context.Context) (Rect, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	ScrollIntoView(ctx context.Context) error
	Dispatch(ctx context.Context, ev PointerEvent) error
}

// Document is the page-level query surface.
type Document interface {
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	ViewportHeight(ctx context.Context) (float64, error)
}
