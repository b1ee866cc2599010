package pilot

import (
	"context"
	"time"

	"github.com/hazyhaar/ariatree/aria"
	"github.com/hazyhaar/ariatree/browser"
	"github.com/hazyhaar/ariatree/observability"
	"github.com/hazyhaar/ariatree/snapshot"
)

// SnapshotResult is the outcome of taking a snapshot on a tab.
type SnapshotResult struct {
	TabID            string `json:"tab_id"`
	URL              string `json:"url"`
	Changed          bool   `json:"changed"`
	NodeCount        int    `json:"node_count"`
	InteractiveCount int    `json:"interactive_count"`
	Tree             string `json:"tree"`
}

// Snapshot extracts a fresh accessibility tree from the tab, splices in
// resolvable iframes, caches it as the tab's current snapshot, and returns
// the rendered form. Changed reports whether the structure differs from the
// previous snapshot; volatile details (geometry, visibility, focus, index
// renumbering) do not count as change.
func (s *Service) Snapshot(ctx context.Context, tabID string) (*SnapshotResult, error) {
	st, err := s.state(tabID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tree, err := browser.Snapshot(ctx, st.tab.Page)
	if err != nil {
		return nil, err
	}

	changed := structChanged(st.snap, tree)

	s.mu.Lock()
	st.snap = tree
	s.mu.Unlock()

	rendered := tree.Render(s.renderMode())
	url := st.tab.CurrentURL(ctx)
	res := &SnapshotResult{
		TabID:            tabID,
		URL:              url,
		Changed:          changed,
		NodeCount:        tree.CountNodes(),
		InteractiveCount: tree.CountInteractive(),
		Tree:             rendered,
	}

	s.logPage(ctx, observability.PageEvent{
		TabID: tabID, Kind: observability.PageEventSnapshot, URL: url,
		NodeCount: res.NodeCount, InteractiveCount: res.InteractiveCount,
	})
	s.recordMetric(observability.MetricSnapshotDurationMs, float64(time.Since(start).Milliseconds()), "milliseconds", tabID)
	s.recordMetric(observability.MetricSnapshotNodeCount, float64(res.NodeCount), "count", tabID)
	s.recordMetric(observability.MetricSnapshotRenderBytes, float64(len(rendered)), "bytes", tabID)
	return res, nil
}

// Diff extracts a fresh tree and reports whether the page structure changed
// relative to the tab's cached snapshot, without replacing the cache. The
// next index-based action still targets the cached snapshot's selectors.
func (s *Service) Diff(ctx context.Context, tabID string) (bool, error) {
	st, err := s.state(tabID)
	if err != nil {
		return false, err
	}
	if st.snap == nil {
		return false, ErrNoSnapshot
	}

	fresh, err := browser.Snapshot(ctx, st.tab.Page)
	if err != nil {
		return false, err
	}
	return structChanged(st.snap, fresh), nil
}

// structChanged reports whether the fresh tree differs structurally from the
// cached one. The walk is deep: roots are always bare fragments, so the
// comparison has to reach the page content underneath them.
func structChanged(cached, fresh *snapshot.Tree) bool {
	return cached == nil || !aria.EqualTree(cached.Root, fresh.Root)
}

// Resolve maps an element index from the tab's current snapshot to its CSS
// selector.
func (s *Service) Resolve(tabID string, index int) (string, error) {
	st, err := s.state(tabID)
	if err != nil {
		return "", err
	}
	if st.snap == nil {
		return "", ErrNoSnapshot
	}
	sel, ok := st.snap.Selector(index)
	if !ok {
		return "", ErrUnknownIndex
	}
	return sel, nil
}
