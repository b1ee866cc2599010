package aria

import (
	"strings"
	"testing"
)

func TestRenderEmptyFragment(t *testing.T) {
	if got := Render(Fragment(), ModeAI); got != "" {
		t.Fatalf("empty fragment rendered %q, want empty string", got)
	}
}

func TestRenderDeterministic(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "link", Name: "Docs", Index: ip(0), Props: map[string]string{
			"url": "https://example.com", "target": "_blank", "rel": "noopener",
		}, Box: Box{Visible: true}},
	}
	first := Render(root, ModeAI)
	for i := 0; i < 5; i++ {
		if got := Render(root, ModeAI); got != first {
			t.Fatalf("render %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
}

func TestRenderButtonMarkers(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "button", Name: "Click me", Index: ip(0), Box: Box{Visible: true, Cursor: "pointer"}},
	}
	out := Render(root, ModeAI)

	line := out
	if strings.Contains(out, "\n") {
		t.Fatalf("expected a single line, got:\n%s", out)
	}
	// Substrings must appear in order on the one line.
	order := []string{"button", `"Click me"`, "[index=0]", "[cursor=pointer]"}
	pos := 0
	for _, sub := range order {
		i := strings.Index(line[pos:], sub)
		if i < 0 {
			t.Fatalf("missing %q after position %d in %q", sub, pos, line)
		}
		pos += i + len(sub)
	}
}

func TestRenderExpectModeSuppressesVolatileMarkers(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "button", Name: "Go", Index: ip(0), Active: bp(true), Box: Box{Visible: true, Cursor: "pointer"}},
	}

	ai := Render(root, ModeAI)
	if !strings.Contains(ai, "[cursor=pointer]") || !strings.Contains(ai, "[active]") {
		t.Fatalf("AI mode missing volatile markers:\n%s", ai)
	}

	expect := Render(root, ModeExpect)
	if strings.Contains(expect, "[cursor=pointer]") || strings.Contains(expect, "[active]") {
		t.Fatalf("Expect mode leaked volatile markers:\n%s", expect)
	}
	if !strings.Contains(expect, "[index=0]") {
		t.Fatalf("Expect mode must keep the index marker:\n%s", expect)
	}
}

func TestRenderCheckedStates(t *testing.T) {
	mk := func(c TriState) string {
		root := Fragment()
		root.Children = []Child{
			&Node{Role: "checkbox", Name: "Terms", Index: ip(0), Checked: c, Box: Box{Visible: true}},
		}
		return Render(root, ModeAI)
	}

	if out := mk(TriTrue); !strings.Contains(out, "[checked]") {
		t.Fatalf("checked=true missing marker:\n%s", out)
	}
	if out := mk(TriFalse); strings.Contains(out, "[checked") {
		t.Fatalf("checked=false must not render a marker:\n%s", out)
	}
	if out := mk(TriMixed); !strings.Contains(out, "[checked=mixed]") {
		t.Fatalf("checked=mixed missing marker:\n%s", out)
	}
}

func TestRenderStateMarkerOrder(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{
			Role: "treeitem", Name: "Branch", Index: ip(3),
			Checked: TriTrue, Disabled: bp(true), Expanded: bp(true),
			Level: ip(2), Pressed: TriMixed, Selected: bp(true),
			Box: Box{Visible: true},
		},
	}
	out := Render(root, ModeAI)
	// The debug-quoted name puts double quotes in the key, so the whole key
	// comes out single-quoted by the key escaper.
	want := `- 'treeitem "Branch" [checked] [disabled] [expanded] [level=2] [pressed=mixed] [selected] [index=3]'`
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderTextChild(t *testing.T) {
	root := Fragment()
	root.Children = []Child{Text("Hello world")}
	out := Render(root, ModeAI)
	if out != "- text: Hello world" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderSingleTextInlines(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "paragraph", Children: []Child{Text("Some text")}},
	}
	out := Render(root, ModeAI)
	if out != "- paragraph: Some text" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderNestedIndentation(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "generic", Children: []Child{
			Text("Parent text"),
			&Node{Role: "button", Name: "Child", Index: ip(0), Box: Box{Visible: true}},
		}},
	}
	out := Render(root, ModeAI)
	want := strings.Join([]string{
		"- generic:",
		"  - text: Parent text",
		`  - 'button "Child" [index=0]'`,
	}, "\n")
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderProps(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "link", Name: "Go to page", Index: ip(0),
			Props: map[string]string{"url": "https://example.com"},
			Box:   Box{Visible: true}},
	}
	out := Render(root, ModeAI)
	want := strings.Join([]string{
		`- 'link "Go to page" [index=0]':`,
		"  - /url: https://example.com",
	}, "\n")
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderPropsSorted(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "textbox", Name: "Search", Props: map[string]string{
			"placeholder":  "type here",
			"autocomplete": "off",
		}},
	}
	out := Render(root, ModeAI)
	if strings.Index(out, "/autocomplete") > strings.Index(out, "/placeholder") {
		t.Fatalf("props not in lexicographic order:\n%s", out)
	}
}

func TestRenderCursorClaimedByAncestor(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "link", Name: "Card", Index: ip(0),
			Box: Box{Visible: true, Cursor: "pointer"},
			Children: []Child{
				&Node{Role: "button", Name: "Inner", Index: ip(1),
					Box: Box{Visible: true, Cursor: "pointer"}},
			}},
	}
	out := Render(root, ModeAI)
	if strings.Count(out, "[cursor=pointer]") != 1 {
		t.Fatalf("ancestor must claim the cursor marker exactly once:\n%s", out)
	}
	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[0], "[cursor=pointer]") {
		t.Fatalf("marker must sit on the ancestor line:\n%s", out)
	}
}

func TestRenderNonFragmentRoot(t *testing.T) {
	root := &Node{Role: "button", Name: "Solo", Index: ip(0), Box: Box{Visible: true}}
	out := Render(root, ModeAI)
	if !strings.HasPrefix(out, `- 'button "Solo"`) {
		t.Fatalf("non-fragment root must render itself: %q", out)
	}
}

func TestRenderNoTrailingNewline(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "button", Name: "A"},
		&Node{Role: "button", Name: "B"},
	}
	out := Render(root, ModeAI)
	if strings.HasSuffix(out, "\n") {
		t.Fatalf("output must not end with a newline: %q", out)
	}
	if len(strings.Split(out, "\n")) != 2 {
		t.Fatalf("expected two lines: %q", out)
	}
}

func TestRenderQuotedKey(t *testing.T) {
	// A role is never exotic, but a name with YAML indicators forces the
	// whole key through the key escaper.
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "heading", Name: "Intro", Level: ip(1)},
	}
	out := Render(root, ModeAI)
	// strconv.Quote turns the name into `"Intro"` whose double quotes make
	// the key need single-quote escaping.
	if out != `- 'heading "Intro" [level=1]'` {
		t.Fatalf("got %q", out)
	}
}
