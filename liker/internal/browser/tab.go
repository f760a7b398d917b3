package browser

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
)

// bindingName is the page-side function signals.js calls.
const bindingName = "__feedpilot_signal"

//go:embed signals.js
var signalsJS string

// Tab is one feed page. It implements the document, probe, location and
// signal capabilities the engine needs from its host.
type Tab struct {
	Page   *rod.Page
	URL    string
	router *rod.HijackRouter
	logger *slog.Logger
}

var _ dom.Document = (*Tab)(nil)

// OpenTab opens a tab on pageURL, applying stealth and resource blocking
// from the manager's config, and installs the signal script.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	cfg := mgr.cfg

	var page *rod.Page
	var err error
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, URL: pageURL, logger: cfg.Logger}

	if len(cfg.ResourceBlocking) > 0 {
		if t.router, err = blockResources(page, cfg.ResourceBlocking); err != nil {
			cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(signalsJS); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: install signals: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load", "url", pageURL, "error", err)
	}
	return t, nil
}

func (t *Tab) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := t.Page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return wrap(els), nil
}

func (t *Tab) ViewportHeight(ctx context.Context) (float64, error) {
	res, err := t.Page.Context(ctx).Eval(`() => window.innerHeight || document.documentElement.clientHeight`)
	if err != nil {
		return 0, fmt.Errorf("browser: viewport: %w", err)
	}
	return res.Value.Num(), nil
}

// Probe evaluates a trivial expression; any CDP failure means the page is
// unusable.
func (t *Tab) Probe(ctx context.Context) error {
	res, err := t.Page.Context(ctx).Eval(`() => true`)
	if err != nil {
		return fmt.Errorf("browser: probe: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: probe: unexpected result %v", res.Value.Raw())
	}
	return nil
}

// Location returns the current page URL.
func (t *Tab) Location(ctx context.Context) (string, error) {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Listen delivers page signals ("mutation", "scroll") to fn until ctx is
// done. The script is also evaluated in the current document in case it
// loaded before the binding existed.
func (t *Tab) Listen(ctx context.Context, fn func(signal string)) error {
	page := t.Page.Context(ctx)
	if _, err := page.Eval(`() => {` + signalsJS + `}`); err != nil {
		return fmt.Errorf("browser: install signals: %w", err)
	}
	wait := page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == bindingName {
			fn(e.Payload)
		}
	})
	wait()
	return nil
}

// Close stops request interception and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			t.logger.Debug("browser: stop hijack router", "error", err)
		}
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
