package liker

import (
	"context"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
)

// Host is the page an engine works on. The rod-backed browser tab and the
// in-memory test page both satisfy it.
type Host interface {
	dom.Document

	// Probe fails once the page or its DevTools connection is unusable.
	Probe(ctx context.Context) error

	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)

	// Listen delivers page signals ("mutation", "scroll") to fn until ctx
	// is done.
	Listen(ctx context.Context, fn func(signal string)) error
}
