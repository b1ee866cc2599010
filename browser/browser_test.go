package browser

import (
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	if cfg.MemoryLimit != 1<<30 {
		t.Errorf("MemoryLimit = %d, want %d", cfg.MemoryLimit, 1<<30)
	}
	if cfg.RecycleAfter != 4*time.Hour {
		t.Errorf("RecycleAfter = %v, want 4h", cfg.RecycleAfter)
	}
	if cfg.XvfbDisplay != ":99" {
		t.Errorf("XvfbDisplay = %q, want :99", cfg.XvfbDisplay)
	}
	if cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestShouldBlock(t *testing.T) {
	blocked := map[string]bool{"images": true, "fonts": true}

	tests := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", false},
		{"Stylesheet", false},
		{"Document", false},
		{"Script", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(blocked, tt.resType); got != tt.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", tt.resType, got, tt.want)
		}
	}
}

func TestShouldBlockStylesheets(t *testing.T) {
	blocked := map[string]bool{"stylesheets": true}
	if !shouldBlock(blocked, "Stylesheet") {
		t.Error("stylesheet not blocked")
	}
	if shouldBlock(blocked, "Image") {
		t.Error("image blocked without config")
	}
}

func TestWaitForDisplayTimeout(t *testing.T) {
	start := time.Now()
	err := waitForDisplay(":9876", 100*time.Millisecond)
	if err == nil {
		t.Skip("display :9876 exists on this machine")
	}
	if !strings.Contains(err.Error(), ":9876") {
		t.Errorf("error = %v, want display name", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("returned before timeout")
	}
}

func TestExtractScriptEmbedded(t *testing.T) {
	if !strings.Contains(extractScript, "iframeIndices") {
		t.Error("extractor script missing iframeIndices payload field")
	}
	if !strings.Contains(extractScript, "selectors") {
		t.Error("extractor script missing selectors payload field")
	}
}
