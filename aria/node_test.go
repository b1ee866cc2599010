package aria

import (
	"encoding/json"
	"strings"
	"testing"
)

func ip(v int) *int   { return &v }
func bp(v bool) *bool { return &v }

func TestIsInteractive(t *testing.T) {
	n := &Node{Role: "button", Name: "Click", Index: ip(0), Box: Box{Visible: true}}
	if !n.IsInteractive() {
		t.Fatal("indexed visible node should be interactive")
	}

	hidden := &Node{Role: "button", Index: ip(0)}
	if hidden.IsInteractive() {
		t.Fatal("invisible node should not be interactive")
	}

	noIndex := &Node{Role: "button", Box: Box{Visible: true}}
	if noIndex.IsInteractive() {
		t.Fatal("node without index should not be interactive")
	}
}

func TestHasPointerCursor(t *testing.T) {
	pointer := &Node{Role: "button", Box: Box{Visible: true, Cursor: "pointer"}}
	if !pointer.HasPointerCursor() {
		t.Fatal("expected pointer cursor")
	}
	plain := &Node{Role: "button", Box: Box{Visible: true, Cursor: "default"}}
	if plain.HasPointerCursor() {
		t.Fatal("default cursor should not read as pointer")
	}
}

func TestIsContainer(t *testing.T) {
	for _, role := range []string{RoleFragment, RoleIframe} {
		if !(&Node{Role: role}).IsContainer() {
			t.Errorf("%s should be a container", role)
		}
	}
	if (&Node{Role: "button"}).IsContainer() {
		t.Error("button should not be a container")
	}
}

func TestTextContent(t *testing.T) {
	n := &Node{Role: "generic", Children: []Child{
		Text("Hello "),
		&Node{Role: "generic", Children: []Child{Text("World")}},
	}}
	if got := n.TextContent(); got != "Hello  World" {
		t.Fatalf("TextContent = %q", got)
	}
}

func TestFragment(t *testing.T) {
	empty := Fragment()
	if empty.Role != RoleFragment || len(empty.Children) != 0 {
		t.Fatalf("Fragment() = %+v", empty)
	}

	root := Fragment(
		Text("intro"),
		&Node{Role: "button", Name: "Go", Index: ip(0)},
	)
	if root.Role != RoleFragment {
		t.Fatalf("role = %q", root.Role)
	}
	if len(root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children))
	}
	if n, ok := root.Children[1].(*Node); !ok || n.Name != "Go" {
		t.Fatalf("second child = %+v", root.Children[1])
	}
}

func TestFindByIndex(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		&Node{Role: "button", Name: "First", Index: ip(0)},
		&Node{Role: "generic", Children: []Child{
			&Node{Role: "button", Name: "Second", Index: ip(1)},
		}},
	}

	found := root.FindByIndex(1)
	if found == nil || found.Name != "Second" {
		t.Fatalf("FindByIndex(1) = %+v", found)
	}
	if root.FindByIndex(999) != nil {
		t.Fatal("missing index should return nil")
	}
}

func TestCountNodes(t *testing.T) {
	root := Fragment()
	root.Children = []Child{
		Text("text"),
		&Node{Role: "button"},
		&Node{Role: "generic", Children: []Child{&Node{Role: "generic"}}},
	}
	// fragment + button + generic + generic = 4; Text contributes 0.
	if got := root.CountNodes(); got != 4 {
		t.Fatalf("CountNodes = %d, want 4", got)
	}

	want := 1
	for _, c := range root.Children {
		if child, ok := c.(*Node); ok {
			want += child.CountNodes()
		}
	}
	if got := root.CountNodes(); got != want {
		t.Fatalf("CountNodes = %d, want recursive sum %d", got, want)
	}
}

func TestCountInteractive(t *testing.T) {
	root := Fragment()
	root.Index = ip(0)
	root.Children = []Child{
		&Node{Role: "button", Index: ip(1)},
		&Node{Role: "link", Index: ip(2)},
		&Node{Role: "generic"},
	}
	if got := root.CountInteractive(); got != 3 {
		t.Fatalf("CountInteractive = %d, want 3", got)
	}
}

func TestUnmarshalChildUnion(t *testing.T) {
	raw := `{
		"role": "generic",
		"name": "",
		"children": [
			"plain text",
			{"role": "button", "name": "Go", "index": 2, "box": {"visible": true}}
		],
		"box": {"visible": true}
	}`
	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatal(err)
	}
	if len(n.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(n.Children))
	}
	if txt, ok := n.Children[0].(Text); !ok || string(txt) != "plain text" {
		t.Fatalf("first child = %#v, want Text", n.Children[0])
	}
	btn, ok := n.Children[1].(*Node)
	if !ok || btn.Role != "button" || btn.Index == nil || *btn.Index != 2 {
		t.Fatalf("second child = %#v, want button node", n.Children[1])
	}
}

func TestUnmarshalTriState(t *testing.T) {
	cases := []struct {
		raw  string
		want TriState
	}{
		{`{"role":"checkbox","name":"","checked":true,"box":{"visible":true}}`, TriTrue},
		{`{"role":"checkbox","name":"","checked":false,"box":{"visible":true}}`, TriFalse},
		{`{"role":"checkbox","name":"","checked":"mixed","box":{"visible":true}}`, TriMixed},
		{`{"role":"checkbox","name":"","box":{"visible":true}}`, TriUnset},
	}
	for _, tc := range cases {
		var n Node
		if err := json.Unmarshal([]byte(tc.raw), &n); err != nil {
			t.Fatal(err)
		}
		if n.Checked != tc.want {
			t.Errorf("checked = %v, want %v for %s", n.Checked, tc.want, tc.raw)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	root := &Node{
		Role: "generic",
		Children: []Child{
			Text("hello"),
			&Node{Role: "button", Name: "Go", Index: ip(0), Checked: TriMixed, Box: Box{Visible: true}},
		},
	}
	data, err := json.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	var back Node
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Children) != 2 {
		t.Fatalf("children = %d", len(back.Children))
	}
	if btn, ok := back.Children[1].(*Node); !ok || btn.Checked != TriMixed {
		t.Fatalf("tri-state lost in round trip: %#v", back.Children[1])
	}
}

func TestTruncateNames(t *testing.T) {
	n := &Node{Role: "heading", Name: strings.Repeat("é", 600)} // 1200 bytes
	n.TruncateNames()
	if len(n.Name) > MaxNameLen {
		t.Fatalf("name still %d bytes", len(n.Name))
	}
	// Must cut on a rune boundary.
	for _, r := range n.Name {
		if r != 'é' {
			t.Fatalf("broken rune %q in truncated name", r)
		}
	}
}
