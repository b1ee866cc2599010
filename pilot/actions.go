package pilot

import (
	"context"

	"github.com/hazyhaar/ariatree/extract"
	"github.com/hazyhaar/ariatree/observability"
)

// Navigate loads a URL in the tab. The cached snapshot is dropped: indices
// from the previous page are meaningless on the new one.
func (s *Service) Navigate(ctx context.Context, tabID, url string) error {
	st, err := s.state(tabID)
	if err != nil {
		return err
	}
	if err := st.tab.Navigate(ctx, url); err != nil {
		return err
	}

	s.mu.Lock()
	st.snap = nil
	s.mu.Unlock()

	s.logPage(ctx, observability.PageEvent{TabID: tabID, Kind: observability.PageEventNavigate, URL: url})
	return nil
}

// Back navigates the tab one history entry backwards.
func (s *Service) Back(ctx context.Context, tabID string) error {
	return s.historyStep(ctx, tabID, func(ctx context.Context, st *tabState) error {
		return st.tab.Back(ctx)
	})
}

// Forward navigates the tab one history entry forwards.
func (s *Service) Forward(ctx context.Context, tabID string) error {
	return s.historyStep(ctx, tabID, func(ctx context.Context, st *tabState) error {
		return st.tab.Forward(ctx)
	})
}

func (s *Service) historyStep(ctx context.Context, tabID string, step func(context.Context, *tabState) error) error {
	st, err := s.state(tabID)
	if err != nil {
		return err
	}
	if err := step(ctx, st); err != nil {
		return err
	}
	s.mu.Lock()
	st.snap = nil
	s.mu.Unlock()
	s.logPage(ctx, observability.PageEvent{TabID: tabID, Kind: observability.PageEventNavigate, URL: st.tab.CurrentURL(ctx)})
	return nil
}

// Click clicks the element behind an index from the tab's current snapshot.
func (s *Service) Click(ctx context.Context, tabID string, index int) error {
	st, sel, err := s.target(tabID, index)
	if err != nil {
		return err
	}
	return st.tab.Click(ctx, sel)
}

// Type focuses the element behind an index and types text into it,
// clearing any existing value first.
func (s *Service) Type(ctx context.Context, tabID string, index int, text string) error {
	st, sel, err := s.target(tabID, index)
	if err != nil {
		return err
	}
	return st.tab.Type(ctx, sel, text, true)
}

// Hover moves the pointer over the element behind an index.
func (s *Service) Hover(ctx context.Context, tabID string, index int) error {
	st, sel, err := s.target(tabID, index)
	if err != nil {
		return err
	}
	return st.tab.Hover(ctx, sel)
}

// SelectOption selects a dropdown option by its visible text.
func (s *Service) SelectOption(ctx context.Context, tabID string, index int, option string) error {
	st, sel, err := s.target(tabID, index)
	if err != nil {
		return err
	}
	return st.tab.SelectOption(ctx, sel, option)
}

// PressKey sends a named key ("Enter", "Tab", "Escape", ...) to the tab.
func (s *Service) PressKey(ctx context.Context, tabID, key string) error {
	st, err := s.state(tabID)
	if err != nil {
		return err
	}
	return st.tab.PressKey(ctx, key)
}

// Scroll scrolls the tab by a pixel delta.
func (s *Service) Scroll(ctx context.Context, tabID string, dx, dy float64) error {
	st, err := s.state(tabID)
	if err != nil {
		return err
	}
	return st.tab.Scroll(ctx, dx, dy)
}

// Markdown returns the tab's page as markdown. With mainOnly the conversion
// is scoped to the main content region.
func (s *Service) Markdown(ctx context.Context, tabID string, mainOnly bool) (string, error) {
	st, err := s.state(tabID)
	if err != nil {
		return "", err
	}
	html, err := st.tab.HTML(ctx)
	if err != nil {
		return "", err
	}
	url := st.tab.CurrentURL(ctx)
	if mainOnly {
		return s.conv.MainMarkdown(html, url)
	}
	return s.conv.Markdown(html, url)
}

// ExtractText returns the normalized text of every element in the tab's
// page matching a CSS selector, in document order.
func (s *Service) ExtractText(ctx context.Context, tabID, selector string) ([]string, error) {
	st, err := s.state(tabID)
	if err != nil {
		return nil, err
	}
	html, err := st.tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return extract.QueryText(html, selector)
}

// PageLinks returns every anchor in the tab's page, hrefs resolved against
// the page URL.
func (s *Service) PageLinks(ctx context.Context, tabID string) ([]extract.Link, error) {
	st, err := s.state(tabID)
	if err != nil {
		return nil, err
	}
	html, err := st.tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return extract.Links(html, st.tab.CurrentURL(ctx))
}

// target resolves an index to its tab state and selector.
func (s *Service) target(tabID string, index int) (*tabState, string, error) {
	st, err := s.state(tabID)
	if err != nil {
		return nil, "", err
	}
	if st.snap == nil {
		return nil, "", ErrNoSnapshot
	}
	sel, ok := st.snap.Selector(index)
	if !ok {
		return nil, "", ErrUnknownIndex
	}
	return st, sel, nil
}
