// Package locator holds every DOM heuristic used to find feed items, their
// action control and their author. Nothing else in the engine knows a
// selector.
package locator

import (
	"context"
	"strings"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
)

// Locator is an ordered set of selector strategies.
type Locator struct {
	// Items are tried in order; the first strategy with a visible item wins.
	Items       []string `yaml:"items"`
	MinHeight   float64  `yaml:"min_height"`
	IDAttribute string   `yaml:"id_attribute"`

	Controls          []string `yaml:"controls"`
	PressedClasses    []string `yaml:"pressed_classes"`
	PressedDescendant string   `yaml:"pressed_descendant"`

	Authors []string `yaml:"authors"`
}

// Default returns the LinkedIn feed heuristics.
func Default() Locator {
	return Locator{
		Items: []string{
			`[data-id^="urn:li:activity:"]`,
			`.feed-shared-update-v2, .occludable-update, .feed-shared-update-v2__content`,
		},
		MinHeight:   100,
		IDAttribute: "data-id",
		Controls: []string{
			`button[aria-label*="React Like"]`,
			`button[aria-label*="Like"]`,
			`button[data-control-name="like_toggle"]`,
			`.social-actions-button[aria-label*="Like"]`,
			`button.react-button__trigger`,
			`button[data-test-id="reactions-menu-trigger"]`,
		},
		PressedClasses:    []string{"active", "artdeco-button--selected"},
		PressedDescendant: ".liked",
		Authors: []string{
			`.update-components-actor__name`,
			`.feed-shared-actor__name`,
			`[data-control-name="actor"] span[aria-hidden="true"]`,
			`.feed-shared-actor__name .visually-hidden`,
		},
	}
}

// Merge returns l with every empty field taken from d.
func (l Locator) Merge(d Locator) Locator {
	if len(l.Items) == 0 {
		l.Items = d.Items
	}
	if l.MinHeight <= 0 {
		l.MinHeight = d.MinHeight
	}
	if l.IDAttribute == "" {
		l.IDAttribute = d.IDAttribute
	}
	if len(l.Controls) == 0 {
		l.Controls = d.Controls
	}
	if len(l.PressedClasses) == 0 {
		l.PressedClasses = d.PressedClasses
	}
	if l.PressedDescendant == "" {
		l.PressedDescendant = d.PressedDescendant
	}
	if len(l.Authors) == 0 {
		l.Authors = d.Authors
	}
	return l
}

// Control finds the item's like control: the first candidate, selector by
// selector, whose aria-label mentions "like" but not "unlike". A nil
// result means the item is view-only. Query errors skip the selector.
func (l Locator) Control(ctx context.Context, item dom.Element) dom.Element {
	for _, sel := range l.Controls {
		found, err := item.QueryAll(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range found {
			label, _, err := el.Attribute(ctx, "aria-label")
			if err != nil {
				continue
			}
			label = strings.ToLower(label)
			if strings.Contains(label, "like") && !strings.Contains(label, "unlike") {
				return el
			}
		}
	}
	return nil
}

// Pressed reports whether the control already shows the acted state.
// Unreadable state counts as not pressed.
func (l Locator) Pressed(ctx context.Context, control dom.Element) bool {
	if v, ok, err := control.Attribute(ctx, "aria-pressed"); err == nil && ok && v == "true" {
		return true
	}
	if label, _, err := control.Attribute(ctx, "aria-label"); err == nil &&
		strings.Contains(strings.ToLower(label), "unlike") {
		return true
	}
	for _, c := range l.PressedClasses {
		if ok, err := control.HasClass(ctx, c); err == nil && ok {
			return true
		}
	}
	if l.PressedDescendant != "" {
		if found, err := control.QueryAll(ctx, l.PressedDescendant); err == nil && len(found) > 0 {
			return true
		}
	}
	return false
}

// Author resolves the display name of the item's author. Empty when no
// strategy yields non-blank text.
func (l Locator) Author(ctx context.Context, item dom.Element) string {
	for _, sel := range l.Authors {
		found, err := item.QueryAll(ctx, sel)
		if err != nil || len(found) == 0 {
			continue
		}
		txt, err := found[0].Text(ctx)
		if err != nil {
			continue
		}
		if txt = strings.TrimSpace(txt); txt != "" {
			return txt
		}
	}
	return ""
}
