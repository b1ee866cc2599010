package pilot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ariatree/kit"
)

// RegisterMCP registers every pilot tool on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerOpenTabTool(srv)
	s.registerCloseTabTool(srv)
	s.registerListTabsTool(srv)
	s.registerSnapshotTool(srv)
	s.registerDiffTool(srv)
	s.registerResolveTool(srv)
	s.registerNavigateTool(srv)
	s.registerBackForwardTools(srv)
	s.registerClickTool(srv)
	s.registerTypeTool(srv)
	s.registerHoverTool(srv)
	s.registerSelectTool(srv)
	s.registerPressKeyTool(srv)
	s.registerScrollTool(srv)
	s.registerMarkdownTool(srv)
	s.registerLinksTool(srv)
	s.registerExtractTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// instrument records each invocation in the tool event log.
func (s *Service) instrument(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if s.recorder != nil {
				e := s.recorder.NewToolEvent(tool, kit.GetTransport(ctx), req, resp, err, time.Since(start))
				e.TabID = kit.GetTabID(ctx)
				e.RequestID = kit.GetRequestID(ctx)
				e.TraceID = kit.GetTraceID(ctx)
				e.RemoteAddr = kit.GetRemoteAddr(ctx)
				s.recorder.RecordAsync(e)
			}
			return resp, err
		}
	}
}

// register wires one tool through decode → instrumentation → endpoint.
func (s *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	wrapped := kit.Chain(s.instrument(tool.Name))(endpoint)
	kit.RegisterMCPTool(srv, tool, wrapped, decode)
}

// tabRequest is the shared argument shape for tools addressing one tab.
type tabRequest struct {
	TabID string `json:"tab_id"`
}

// decodeInto returns a decode func unmarshalling arguments into a fresh T,
// tagging the context as MCP transport and with the tab ID when present.
func decodeInto[T any](tabID func(*T) string) func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := new(T)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		enrich := func(ctx context.Context) context.Context {
			ctx = kit.WithTransport(ctx, "mcp")
			if tabID != nil {
				if id := tabID(r); id != "" {
					ctx = kit.WithTabID(ctx, id)
				}
			}
			return ctx
		}
		return &kit.MCPDecodeResult{Request: r, EnrichCtx: enrich}, nil
	}
}

var tabIDProp = map[string]any{"type": "string", "description": "Tab ID returned by pilot_open_tab"}
var indexProp = map[string]any{"type": "integer", "description": "Element index from the latest snapshot ([index=N])"}

// --- open_tab ---

func (s *Service) registerOpenTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_open_tab",
		Description: "Open a new browser tab, optionally navigating to a URL. Returns the tab ID used by all other tools.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to load (optional)"},
		}, nil),
	}

	type openReq struct {
		URL string `json:"url"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*openReq)
		return s.OpenTab(ctx, r.URL)
	}

	s.register(srv, tool, endpoint, decodeInto[openReq](nil))
}

// --- close_tab ---

func (s *Service) registerCloseTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_close_tab",
		Description: "Close a browser tab.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*tabRequest)
		if err := s.CloseTab(ctx, r.TabID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "closed", "tab_id": r.TabID}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[tabRequest](func(r *tabRequest) string { return r.TabID }))
}

// --- list_tabs ---

func (s *Service) registerListTabsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_list_tabs",
		Description: "List all open browser tabs.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	type emptyReq struct{}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.ListTabs(ctx), nil
	}

	s.register(srv, tool, endpoint, decodeInto[emptyReq](nil))
}

// --- snapshot ---

func (s *Service) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_snapshot",
		Description: "Take an accessibility-tree snapshot of a tab. Interactive elements carry [index=N] markers usable with click/type/hover tools.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*tabRequest)
		return s.Snapshot(ctx, r.TabID)
	}

	s.register(srv, tool, endpoint, decodeInto[tabRequest](func(r *tabRequest) string { return r.TabID }))
}

// --- diff ---

func (s *Service) registerDiffTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_diff",
		Description: "Check whether the page structure changed since the last snapshot, ignoring volatile details like geometry and focus.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*tabRequest)
		changed, err := s.Diff(ctx, r.TabID)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"changed": changed}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[tabRequest](func(r *tabRequest) string { return r.TabID }))
}

// --- resolve ---

type resolveRequest struct {
	TabID string `json:"tab_id"`
	Index int    `json:"index"`
}

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_resolve",
		Description: "Resolve an element index from the latest snapshot to its CSS selector.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"index":  indexProp,
		}, []string{"tab_id", "index"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resolveRequest)
		sel, err := s.Resolve(r.TabID, r.Index)
		if err != nil {
			return nil, err
		}
		return map[string]string{"selector": sel}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[resolveRequest](func(r *resolveRequest) string { return r.TabID }))
}

// --- navigate ---

type navigateRequest struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

func (s *Service) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_navigate",
		Description: "Navigate a tab to a URL. Previous snapshot indices become invalid.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"url":    map[string]any{"type": "string", "description": "URL to load"},
		}, []string{"tab_id", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*navigateRequest)
		if err := s.Navigate(ctx, r.TabID, r.URL); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "url": r.URL}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[navigateRequest](func(r *navigateRequest) string { return r.TabID }))
}

// --- back / forward ---

func (s *Service) registerBackForwardTools(srv *mcp.Server) {
	mk := func(name, desc string, step func(context.Context, string) error) {
		tool := &mcp.Tool{
			Name:        name,
			Description: desc,
			InputSchema: inputSchema(map[string]any{
				"tab_id": tabIDProp,
			}, []string{"tab_id"}),
		}
		endpoint := func(ctx context.Context, req any) (any, error) {
			r := req.(*tabRequest)
			if err := step(ctx, r.TabID); err != nil {
				return nil, err
			}
			return map[string]string{"status": "ok"}, nil
		}
		s.register(srv, tool, endpoint, decodeInto[tabRequest](func(r *tabRequest) string { return r.TabID }))
	}

	mk("pilot_back", "Go back one entry in the tab's history.", s.Back)
	mk("pilot_forward", "Go forward one entry in the tab's history.", s.Forward)
}

// --- click ---

type clickRequest struct {
	TabID string `json:"tab_id"`
	Index int    `json:"index"`
}

func (s *Service) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_click",
		Description: "Click the element behind a snapshot index.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"index":  indexProp,
		}, []string{"tab_id", "index"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clickRequest)
		if err := s.Click(ctx, r.TabID, r.Index); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[clickRequest](func(r *clickRequest) string { return r.TabID }))
}

// --- type ---

type typeRequest struct {
	TabID string `json:"tab_id"`
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func (s *Service) registerTypeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_type",
		Description: "Type text into the element behind a snapshot index, replacing its current value.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"index":  indexProp,
			"text":   map[string]any{"type": "string", "description": "Text to type"},
		}, []string{"tab_id", "index", "text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*typeRequest)
		if err := s.Type(ctx, r.TabID, r.Index, r.Text); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[typeRequest](func(r *typeRequest) string { return r.TabID }))
}

// --- hover ---

func (s *Service) registerHoverTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_hover",
		Description: "Hover the pointer over the element behind a snapshot index.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"index":  indexProp,
		}, []string{"tab_id", "index"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clickRequest)
		if err := s.Hover(ctx, r.TabID, r.Index); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[clickRequest](func(r *clickRequest) string { return r.TabID }))
}

// --- select ---

type selectRequest struct {
	TabID  string `json:"tab_id"`
	Index  int    `json:"index"`
	Option string `json:"option"`
}

func (s *Service) registerSelectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_select",
		Description: "Select a dropdown option by visible text on the element behind a snapshot index.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"index":  indexProp,
			"option": map[string]any{"type": "string", "description": "Visible option text"},
		}, []string{"tab_id", "index", "option"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*selectRequest)
		if err := s.SelectOption(ctx, r.TabID, r.Index, r.Option); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[selectRequest](func(r *selectRequest) string { return r.TabID }))
}

// --- press_key ---

type pressKeyRequest struct {
	TabID string `json:"tab_id"`
	Key   string `json:"key"`
}

func (s *Service) registerPressKeyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_press_key",
		Description: "Press a named key in the tab (Enter, Tab, Escape, Backspace, arrows, ...).",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"key":    map[string]any{"type": "string", "description": "Key name"},
		}, []string{"tab_id", "key"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pressKeyRequest)
		if err := s.PressKey(ctx, r.TabID, r.Key); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[pressKeyRequest](func(r *pressKeyRequest) string { return r.TabID }))
}

// --- scroll ---

type scrollRequest struct {
	TabID string  `json:"tab_id"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
}

func (s *Service) registerScrollTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_scroll",
		Description: "Scroll the tab by a pixel delta.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
			"dx":     map[string]any{"type": "number", "description": "Horizontal delta in pixels"},
			"dy":     map[string]any{"type": "number", "description": "Vertical delta in pixels"},
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*scrollRequest)
		if err := s.Scroll(ctx, r.TabID, r.DX, r.DY); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[scrollRequest](func(r *scrollRequest) string { return r.TabID }))
}

// --- markdown ---

type markdownRequest struct {
	TabID    string `json:"tab_id"`
	MainOnly bool   `json:"main_only"`
}

func (s *Service) registerMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_markdown",
		Description: "Convert the tab's page to markdown. With main_only the conversion is scoped to the main content region.",
		InputSchema: inputSchema(map[string]any{
			"tab_id":    tabIDProp,
			"main_only": map[string]any{"type": "boolean", "description": "Only convert the main content region"},
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*markdownRequest)
		md, err := s.Markdown(ctx, r.TabID, r.MainOnly)
		if err != nil {
			return nil, err
		}
		return map[string]string{"markdown": md}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[markdownRequest](func(r *markdownRequest) string { return r.TabID }))
}

// --- links ---

func (s *Service) registerLinksTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_links",
		Description: "List every link in the tab's page with text and resolved href.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": tabIDProp,
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*tabRequest)
		return s.PageLinks(ctx, r.TabID)
	}

	s.register(srv, tool, endpoint, decodeInto[tabRequest](func(r *tabRequest) string { return r.TabID }))
}

// --- extract ---

type extractRequest struct {
	TabID    string `json:"tab_id"`
	Selector string `json:"selector"`
}

func (s *Service) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_extract",
		Description: "Extract the text of every element matching a CSS selector in the tab's page, in document order.",
		InputSchema: inputSchema(map[string]any{
			"tab_id":   tabIDProp,
			"selector": map[string]any{"type": "string", "description": "CSS selector: tag, .class, #id, [attr=val], space for descendants"},
		}, []string{"tab_id", "selector"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractRequest)
		texts, err := s.ExtractText(ctx, r.TabID, r.Selector)
		if err != nil {
			return nil, err
		}
		return map[string]any{"texts": texts}, nil
	}

	s.register(srv, tool, endpoint, decodeInto[extractRequest](func(r *extractRequest) string { return r.TabID }))
}
