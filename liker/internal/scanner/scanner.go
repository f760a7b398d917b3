// Package scanner finds the feed items currently on screen.
package scanner

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
	"github.com/hazyhaar/feedpilot/liker/internal/locator"
)

// Scanner applies the locator's item strategies to a document.
type Scanner struct {
	doc    dom.Document
	loc    locator.Locator
	logger *slog.Logger
}

// New creates a scanner. logger may be nil.
func New(doc dom.Document, loc locator.Locator, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{doc: doc, loc: loc, logger: logger}
}

// Scan returns the visible items of the first strategy that has any, in
// document order. It never fails: traversal errors are logged and yield
// an empty result.
func (s *Scanner) Scan(ctx context.Context) []dom.Element {
	viewport, err := s.doc.ViewportHeight(ctx)
	if err != nil {
		s.logger.Warn("scanner: viewport height", "error", err)
		return nil
	}

	for i, sel := range s.loc.Items {
		found, err := s.doc.QueryAll(ctx, sel)
		if err != nil {
			s.logger.Warn("scanner: query items", "strategy", i, "error", err)
			return nil
		}
		visible := s.visible(ctx, found, viewport)
		if len(visible) > 0 {
			s.logger.Debug("scanner: items found", "strategy", i, "matched", len(found), "visible", len(visible))
			return visible
		}
	}
	return nil
}

func (s *Scanner) visible(ctx context.Context, els []dom.Element, viewport float64) []dom.Element {
	var out []dom.Element
	for _, el := range els {
		r, err := el.Rect(ctx)
		if err != nil {
			// Detached between query and measure.
			continue
		}
		if r.Top >= 0 && r.Top <= viewport && r.Height > s.loc.MinHeight {
			out = append(out, el)
		}
	}
	return out
}
