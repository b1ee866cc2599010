package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with the setup snapshots need: stealth fingerprint,
// resource blocking, and bounded navigation.
type Tab struct {
	Page *rod.Page
	ID   string
	URL  string

	manager *Manager
}

// OpenTab creates a stealth tab and navigates it. The navigation waits for
// the load event but tolerates a timeout: a half-loaded page still yields a
// usable snapshot.
func OpenTab(ctx context.Context, mgr *Manager, id, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.BlockResources) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.BlockResources); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	t := &Tab{Page: page, ID: id, manager: mgr}
	if pageURL != "" {
		if err := t.Navigate(ctx, pageURL); err != nil {
			page.Close()
			return nil, err
		}
	}
	return t, nil
}

// Navigate loads a URL and waits for the load event (bounded at 30s).
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.manager.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	t.URL = pageURL
	return nil
}

// Back goes one entry back in the tab history.
func (t *Tab) Back(ctx context.Context) error {
	return t.Page.Context(ctx).NavigateBack()
}

// Forward goes one entry forward in the tab history.
func (t *Tab) Forward(ctx context.Context) error {
	return t.Page.Context(ctx).NavigateForward()
}

// CurrentURL reads the tab's live URL (it may differ from the last
// navigation target after redirects or in-page routing).
func (t *Tab) CurrentURL(ctx context.Context) string {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return t.URL
	}
	return info.URL
}

// Title reads the document title.
func (t *Tab) Title(ctx context.Context) string {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// HTML serialises the full document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get html: %w", err)
	}
	return res.Value.Str(), nil
}

// Click clicks the element addressed by a CSS selector.
func (t *Tab) Click(ctx context.Context, selector string) error {
	el, err := t.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

// Type focuses the element and types text into it, optionally clearing the
// existing value first.
func (t *Tab) Type(ctx context.Context, selector, text string, clear bool) error {
	el, err := t.element(ctx, selector)
	if err != nil {
		return err
	}
	if clear {
		if err := el.SelectAllText(); err == nil {
			el.Input("")
		}
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: type into %s: %w", selector, err)
	}
	return nil
}

// Hover moves the pointer over the element.
func (t *Tab) Hover(ctx context.Context, selector string) error {
	el, err := t.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Hover(); err != nil {
		return fmt.Errorf("browser: hover %s: %w", selector, err)
	}
	return nil
}

// PressKey sends a single named key (e.g. "Enter", "Escape", "Tab") to the
// focused element.
func (t *Tab) PressKey(ctx context.Context, name string) error {
	key, ok := keyByName(name)
	if !ok {
		return fmt.Errorf("browser: unknown key %q", name)
	}
	if err := t.Page.Context(ctx).Keyboard.Press(key); err != nil {
		return fmt.Errorf("browser: press %s: %w", name, err)
	}
	return nil
}

// Scroll scrolls the page by the given offsets in CSS pixels.
func (t *Tab) Scroll(ctx context.Context, dx, dy float64) error {
	if err := t.Page.Context(ctx).Mouse.Scroll(dx, dy, 1); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

// SelectOption picks an option of a <select> element by visible text.
func (t *Tab) SelectOption(ctx context.Context, selector, option string) error {
	el, err := t.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Select([]string{option}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("browser: select %q in %s: %w", option, selector, err)
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// element resolves a selector with a short bounded wait so freshly mutated
// pages have a beat to settle.
func (t *Tab) element(ctx context.Context, selector string) (*rod.Element, error) {
	elCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	el, err := t.Page.Context(elCtx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: element %s: %w", selector, err)
	}
	return el, nil
}

func keyByName(name string) (input.Key, bool) {
	switch name {
	case "Enter":
		return input.Enter, true
	case "Tab":
		return input.Tab, true
	case "Escape":
		return input.Escape, true
	case "Backspace":
		return input.Backspace, true
	case "Delete":
		return input.Delete, true
	case "ArrowUp":
		return input.ArrowUp, true
	case "ArrowDown":
		return input.ArrowDown, true
	case "ArrowLeft":
		return input.ArrowLeft, true
	case "ArrowRight":
		return input.ArrowRight, true
	case "Home":
		return input.Home, true
	case "End":
		return input.End, true
	case "PageUp":
		return input.PageUp, true
	case "PageDown":
		return input.PageDown, true
	case "Space", " ":
		return input.Space, true
	}
	return 0, false
}
