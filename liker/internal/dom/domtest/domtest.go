// Package domtest is an in-memory dom.Document for tests. Selectors are
// matched literally: a node answers a query when the selector string was
// listed in its Matches set.
package domtest

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
)

// Node is a fake element.
type Node struct {
	Matches  []string
	Attrs    map[string]string
	Classes  []string
	Content  string
	Box      dom.Rect
	Children []*Node

	// Err, when set, is returned by every call on the node.
	Err error
	// FailOn makes Dispatch fail for that event kind.
	FailOn dom.PointerKind

	mu       sync.Mutex
	events   []dom.PointerEvent
	scrolled int
	// OnClick runs after a successful click dispatch, e.g. to flip
	// aria-pressed the way the real page does.
	OnClick func(n *Node)
}

// Events returns the dispatched events in order.
func (n *Node) Events() []dom.PointerEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dom.PointerEvent(nil), n.events...)
}

// Scrolled returns how many times ScrollIntoView was called.
func (n *Node) Scrolled() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scrolled
}

// SetAttr sets an attribute under the node lock.
func (n *Node) SetAttr(name, value string) {
	n.mu.Lock()
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[name] = value
	n.mu.Unlock()
}

func (n *Node) Attribute(_ context.Context, name string) (string, bool, error) {
	if n.Err != nil {
		return "", false, n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.Attrs[name]
	return v, ok, nil
}

func (n *Node) HasClass(_ context.Context, name string) (bool, error) {
	if n.Err != nil {
		return false, n.Err
	}
	for _, c := range n.Classes {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

func (n *Node) Text(context.Context) (string, error) {
	if n.Err != nil {
		return "", n.Err
	}
	return n.Content, nil
}

func (n *Node) Rect(context.Context) (dom.Rect, error) {
	if n.Err != nil {
		return dom.Rect{}, n.Err
	}
	return n.Box, nil
}

func (n *Node) QueryAll(_ context.Context, selector string) ([]dom.Element, error) {
	if n.Err != nil {
		return nil, n.Err
	}
	var out []dom.Element
	for _, c := range n.Children {
		c.collect(selector, &out)
	}
	return out, nil
}

func (n *Node) collect(selector string, out *[]dom.Element) {
	for _, m := range n.Matches {
		if m == selector {
			*out = append(*out, n)
			break
		}
	}
	for _, c := range n.Children {
		c.collect(selector, out)
	}
}

func (n *Node) ScrollIntoView(context.Context) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	n.scrolled++
	n.mu.Unlock()
	return nil
}

func (n *Node) Dispatch(_ context.Context, ev dom.PointerEvent) error {
	if n.Err != nil {
		return n.Err
	}
	if n.FailOn == ev.Kind {
		return errors.New("domtest: dispatch " + string(ev.Kind) + " failed")
	}
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	if ev.Kind == dom.Click && n.OnClick != nil {
		n.OnClick(n)
	}
	return nil
}

// Page is a fake document that also satisfies the engine's host
// capabilities (probe, location, signal listener).
type Page struct {
	Roots    []*Node
	Viewport float64

	mu       sync.Mutex
	dead     error
	location string
	queries  int
	listener func(string)
}

// NewPage returns a page with an 800px viewport.
func NewPage(location string, roots ...*Node) *Page {
	return &Page{Roots: roots, Viewport: 800, location: location}
}

func (p *Page) QueryAll(_ context.Context, selector string) ([]dom.Element, error) {
	p.mu.Lock()
	p.queries++
	dead := p.dead
	p.mu.Unlock()
	if dead != nil {
		return nil, dead
	}
	var out []dom.Element
	for _, r := range p.Roots {
		r.collect(selector, &out)
	}
	return out, nil
}

func (p *Page) ViewportHeight(context.Context) (float64, error) {
	if err := p.Probe(context.Background()); err != nil {
		return 0, err
	}
	return p.Viewport, nil
}

// Queries returns how many document queries were made.
func (p *Page) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// Kill makes every subsequent call fail with err.
func (p *Page) Kill(err error) {
	p.mu.Lock()
	p.dead = err
	p.mu.Unlock()
}

// Revive undoes Kill.
func (p *Page) Revive() { p.Kill(nil) }

// Probe fails once the page was killed.
func (p *Page) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

// Location returns the current URL.
func (p *Page) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead != nil {
		return "", p.dead
	}
	return p.location, nil
}

// Navigate changes the URL without touching the nodes.
func (p *Page) Navigate(location string) {
	p.mu.Lock()
	p.location = location
	p.mu.Unlock()
}

// Listen stores fn and blocks until ctx is done.
func (p *Page) Listen(ctx context.Context, fn func(signal string)) error {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
	<-ctx.Done()
	p.mu.Lock()
	p.listener = nil
	p.mu.Unlock()
	return nil
}

// Emit delivers a page signal ("mutation" or "scroll") to the listener,
// if any. It reports whether someone was listening.
func (p *Page) Emit(signal string) bool {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(signal)
	return true
}

// Item builds a feed item with a like control and an author name, the
// shape the default locator recognises.
func Item(id, author string, top float64) *Node {
	control := &Node{
		Matches: []string{`button[aria-label*="React Like"]`, `button[aria-label*="Like"]`},
		Attrs:   map[string]string{"aria-label": "React Like", "aria-pressed": "false"},
		Box:     dom.Rect{Left: 40, Top: top + 200, Width: 80, Height: 32},
	}
	control.OnClick = func(n *Node) { n.SetAttr("aria-pressed", "true") }
	name := &Node{
		Matches: []string{".update-components-actor__name"},
		Content: author,
	}
	attrs := map[string]string{}
	if id != "" {
		attrs["data-id"] = id
	}
	return &Node{
		Matches:  []string{`[data-id^="urn:li:activity:"]`},
		Attrs:    attrs,
		Content:  author + " shared a post",
		Box:      dom.Rect{Left: 0, Top: top, Width: 600, Height: 300},
		Children: []*Node{name, control},
	}
}

// Control returns the like button of a node built by Item.
func Control(item *Node) *Node {
	for _, c := range item.Children {
		if _, ok := c.Attrs["aria-label"]; ok {
			return c
		}
	}
	return nil
}
