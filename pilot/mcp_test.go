package pilot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ariatree/dbopen"
	"github.com/hazyhaar/ariatree/observability"

	_ "modernc.org/sqlite"
)

var testImpl = &mcp.Implementation{Name: "pilot-test", Version: "0.1.0"}

// mcpSession creates a Service, registers MCP tools, and returns a
// connected client session that can call tools end-to-end.
func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	s := testService(t)

	srv := mcp.NewServer(testImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return s, session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

// callToolErr invokes a tool expecting a tool-level error and returns it.
func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	// CallToolResult.GetError always returns nil on clients; the error is
	// only visible through IsError and the text content.
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): error result has no content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return errors.New(tc.Text)
}

func TestMCP_ListTabs_Empty(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "pilot_list_tabs", map[string]any{})
	var tabs []TabInfo
	if err := json.Unmarshal([]byte(text), &tabs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tabs) != 0 {
		t.Fatalf("expected no tabs, got %d", len(tabs))
	}
}

func TestMCP_Resolve(t *testing.T) {
	s, session := mcpSession(t)
	seedTab(t, s, "tab_1", seedSnapshot())

	text := callTool(t, session, "pilot_resolve", map[string]any{
		"tab_id": "tab_1",
		"index":  1,
	})
	var resp map[string]string
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["selector"] != "a.docs" {
		t.Errorf("selector = %q, want %q", resp["selector"], "a.docs")
	}
}

func TestMCP_Resolve_UnknownTab(t *testing.T) {
	_, session := mcpSession(t)

	err := callToolErr(t, session, "pilot_resolve", map[string]any{
		"tab_id": "missing",
		"index":  0,
	})
	if !strings.Contains(err.Error(), "tab not found") {
		t.Errorf("error = %v, want tab not found", err)
	}
}

func TestMCP_Resolve_UnknownIndex(t *testing.T) {
	s, session := mcpSession(t)
	seedTab(t, s, "tab_1", seedSnapshot())

	err := callToolErr(t, session, "pilot_resolve", map[string]any{
		"tab_id": "tab_1",
		"index":  42,
	})
	if !strings.Contains(err.Error(), "unknown element index") {
		t.Errorf("error = %v, want unknown element index", err)
	}
}

func TestMCP_Extract_UnknownTab(t *testing.T) {
	_, session := mcpSession(t)

	err := callToolErr(t, session, "pilot_extract", map[string]any{
		"tab_id":   "missing",
		"selector": "article .content",
	})
	if !strings.Contains(err.Error(), "tab not found") {
		t.Errorf("error = %v, want tab not found", err)
	}
}

func TestMCP_CloseTab_Unknown(t *testing.T) {
	_, session := mcpSession(t)

	err := callToolErr(t, session, "pilot_close_tab", map[string]any{"tab_id": "missing"})
	if !strings.Contains(err.Error(), "tab not found") {
		t.Errorf("error = %v, want tab not found", err)
	}
}

func TestMCP_InstrumentRecordsEvents(t *testing.T) {
	s, session := mcpSession(t)

	db := dbopen.OpenMemory(t)
	if err := observability.Init(db); err != nil {
		t.Fatal(err)
	}
	rec := observability.NewToolRecorder(db, 10)
	s.SetObservability(rec, nil, nil)

	seedTab(t, s, "tab_1", seedSnapshot())
	callTool(t, session, "pilot_resolve", map[string]any{"tab_id": "tab_1", "index": 0})

	rec.Close() // flush
	rec2 := observability.NewToolRecorder(db, 10)
	t.Cleanup(func() { rec2.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := rec2.Query(context.Background(), &observability.ToolEventFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) == 1 {
			e := events[0]
			if e.Tool != "pilot_resolve" {
				t.Errorf("tool = %q", e.Tool)
			}
			if e.Transport != "mcp" {
				t.Errorf("transport = %q", e.Transport)
			}
			if e.TabID != "tab_1" {
				t.Errorf("tab_id = %q", e.TabID)
			}
			if e.Status != "success" {
				t.Errorf("status = %q", e.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("tool event not recorded, got %d events", len(events))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
