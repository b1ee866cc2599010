package pilot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/ariatree/dbopen"
	"github.com/hazyhaar/ariatree/observability"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func TestHTTP_Health(t *testing.T) {
	s := testService(t)
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHTTP_ListTabs_Empty(t *testing.T) {
	s := testService(t)
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var tabs []TabInfo
	if err := json.NewDecoder(resp.Body).Decode(&tabs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tabs) != 0 {
		t.Fatalf("expected no tabs, got %d", len(tabs))
	}
}

func TestHTTP_Resolve(t *testing.T) {
	s := testService(t)
	seedTab(t, s, "tab_1", seedSnapshot())
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs/tab_1/resolve/0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["selector"] != "#submit" {
		t.Errorf("selector = %q", body["selector"])
	}
}

func TestHTTP_Resolve_UnknownTab(t *testing.T) {
	s := testService(t)
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs/missing/resolve/0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHTTP_Resolve_NoSnapshot(t *testing.T) {
	s := testService(t)
	seedTab(t, s, "tab_1", nil)
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs/tab_1/resolve/0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 409 {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHTTP_Resolve_BadIndex(t *testing.T) {
	s := testService(t)
	seedTab(t, s, "tab_1", seedSnapshot())
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs/tab_1/resolve/notanumber")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHTTP_Extract_MissingSelector(t *testing.T) {
	s := testService(t)
	seedTab(t, s, "tab_1", seedSnapshot())
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs/tab_1/extract")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHTTP_Extract_UnknownTab(t *testing.T) {
	s := testService(t)
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tabs/missing/extract?selector=article")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHTTP_InstrumentRecordsEvents(t *testing.T) {
	s := testService(t)

	db := dbopen.OpenMemory(t)
	if err := observability.Init(db); err != nil {
		t.Fatal(err)
	}
	rec := observability.NewToolRecorder(db, 10)
	s.SetObservability(rec, nil, nil)

	seedTab(t, s, "tab_1", seedSnapshot())
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL+"/api/tabs/tab_1/resolve/0", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Trace-Id", "trc_http_1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

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
			if e.Transport != "http" {
				t.Errorf("transport = %q", e.Transport)
			}
			if e.TabID != "tab_1" {
				t.Errorf("tab_id = %q", e.TabID)
			}
			if e.TraceID != "trc_http_1" {
				t.Errorf("trace_id = %q", e.TraceID)
			}
			if e.RemoteAddr == "" {
				t.Error("remote_addr not recorded")
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

func TestHTTP_UnknownAction(t *testing.T) {
	s := testService(t)
	seedTab(t, s, "tab_1", seedSnapshot())
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/tabs/tab_1/actions", "application/json",
		jsonBody(t, map[string]any{"action": "teleport"}))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
