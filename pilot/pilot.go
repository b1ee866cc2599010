// Package pilot is the browser-automation service: it owns the Chrome
// manager, the open tabs, and the cached accessibility snapshot for each
// tab, and exposes the whole surface over MCP tools and an HTTP API.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/ariatree/aria"
	"github.com/hazyhaar/ariatree/browser"
	"github.com/hazyhaar/ariatree/extract"
	"github.com/hazyhaar/ariatree/idgen"
	"github.com/hazyhaar/ariatree/observability"
	"github.com/hazyhaar/ariatree/snapshot"
)

var (
	// ErrTabNotFound is returned for operations on an unknown tab ID.
	ErrTabNotFound = errors.New("pilot: tab not found")
	// ErrNoSnapshot is returned when an index-based action runs before any
	// snapshot has been taken on the tab.
	ErrNoSnapshot = errors.New("pilot: no snapshot taken yet")
	// ErrUnknownIndex is returned when an index has no recorded selector in
	// the tab's current snapshot.
	ErrUnknownIndex = errors.New("pilot: unknown element index")
)

// tabState pairs a live tab with its most recent snapshot.
type tabState struct {
	tab  *browser.Tab
	snap *snapshot.Tree
}

// Service coordinates the browser, the per-tab snapshots, and the
// observability sinks.
type Service struct {
	cfg     *Config
	logger  *slog.Logger
	manager *browser.Manager
	conv    *extract.Converter
	newID   idgen.Generator

	recorder *observability.ToolRecorder
	pageLog  *observability.PageLog
	metrics  *observability.MetricsManager

	mu   sync.Mutex
	tabs map[string]*tabState
}

// NewService creates a Service. Call Start before using browser-backed
// operations.
func NewService(cfg *Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		manager: browser.NewManager(browser.Config{
			ControlURL:     cfg.Browser.Remote,
			Headful:        cfg.Browser.Stealth == "headful",
			XvfbDisplay:    cfg.Browser.XvfbDisplay,
			MemoryLimit:    cfg.Browser.MemoryLimit,
			RecycleAfter:   cfg.Browser.RecycleInterval,
			BlockResources: cfg.Browser.ResourceBlocking,
			Logger:         logger,
		}),
		conv:  extract.NewConverter(),
		newID: idgen.Prefixed("tab_", idgen.Default),
		tabs:  make(map[string]*tabState),
	}
}

// SetObservability wires the optional event sinks. Any of them may be nil.
func (s *Service) SetObservability(rec *observability.ToolRecorder, pages *observability.PageLog, metrics *observability.MetricsManager) {
	s.recorder = rec
	s.pageLog = pages
	s.metrics = metrics
}

// Start launches (or attaches to) the browser.
func (s *Service) Start(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("pilot: start browser: %w", err)
	}
	// A recycled browser invalidates every open tab and its snapshot.
	s.manager.OnRecycle(func(_ *rod.Browser) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id := range s.tabs {
			s.logger.Warn("pilot: tab lost to browser recycle", "tab_id", id)
			delete(s.tabs, id)
		}
	})
	return nil
}

// Close shuts down every tab and the browser.
func (s *Service) Close() error {
	s.mu.Lock()
	for id, st := range s.tabs {
		st.tab.Close()
		delete(s.tabs, id)
	}
	s.mu.Unlock()
	return s.manager.Close()
}

// TabInfo describes one open tab.
type TabInfo struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// OpenTab opens a new tab, optionally navigating to url.
func (s *Service) OpenTab(ctx context.Context, url string) (*TabInfo, error) {
	id := s.newID()
	tab, err := browser.OpenTab(ctx, s.manager, id, url)
	if err != nil {
		return nil, fmt.Errorf("pilot: open tab: %w", err)
	}

	s.mu.Lock()
	s.tabs[id] = &tabState{tab: tab}
	s.mu.Unlock()

	s.logPage(ctx, observability.PageEvent{TabID: id, Kind: observability.PageEventOpen, URL: url})
	return &TabInfo{TabID: id, URL: tab.CurrentURL(ctx), Title: tab.Title(ctx)}, nil
}

// CloseTab closes a tab and forgets its snapshot.
func (s *Service) CloseTab(ctx context.Context, tabID string) error {
	s.mu.Lock()
	st, ok := s.tabs[tabID]
	if ok {
		delete(s.tabs, tabID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrTabNotFound
	}

	s.logPage(ctx, observability.PageEvent{TabID: tabID, Kind: observability.PageEventClose})
	return st.tab.Close()
}

// ListTabs returns info for every open tab.
func (s *Service) ListTabs(ctx context.Context) []TabInfo {
	s.mu.Lock()
	states := make(map[string]*tabState, len(s.tabs))
	for id, st := range s.tabs {
		states[id] = st
	}
	s.mu.Unlock()

	infos := make([]TabInfo, 0, len(states))
	for id, st := range states {
		infos = append(infos, TabInfo{TabID: id, URL: st.tab.CurrentURL(ctx), Title: st.tab.Title(ctx)})
	}
	return infos
}

// state returns the tab state for an ID.
func (s *Service) state(tabID string) (*tabState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tabs[tabID]
	if !ok {
		return nil, ErrTabNotFound
	}
	return st, nil
}

// renderMode maps the configured snapshot mode onto the renderer's.
func (s *Service) renderMode() aria.Mode {
	if s.cfg.SnapshotMode == "expect" {
		return aria.ModeExpect
	}
	return aria.ModeAI
}

func (s *Service) logPage(ctx context.Context, e observability.PageEvent) {
	if s.pageLog != nil {
		s.pageLog.Log(ctx, e)
	}
}

func (s *Service) recordMetric(name string, value float64, unit, tabID string) {
	if s.metrics != nil {
		s.metrics.Record(&observability.Metric{
			Name:      name,
			Timestamp: time.Now(),
			Value:     value,
			Unit:      unit,
			Labels:    map[string]string{"tab_id": tabID},
		})
	}
}
