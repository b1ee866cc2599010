package snapshot

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/ariatree/aria"
)

func ip(v int) *int { return &v }

func testTree(t *testing.T) *Tree {
	t.Helper()
	root := aria.Fragment()
	root.Children = []aria.Child{
		&aria.Node{Role: "button", Name: "Click me", Index: ip(0),
			Box: aria.Box{Visible: true, Cursor: "pointer"}},
		&aria.Node{Role: "link", Name: "Go to page", Index: ip(1),
			Box: aria.Box{Visible: true}},
		&aria.Node{Role: "paragraph", Children: []aria.Child{aria.Text("Some text")}},
	}
	tr := New(root)
	tr.Selectors[0] = "#btn"
	tr.Selectors[1] = "a.nav"
	return tr
}

func TestNewSizesSelectorTable(t *testing.T) {
	tr := testTree(t)
	if len(tr.Selectors) != 2 {
		t.Fatalf("selector table = %d entries, want max(index)+1 = 2", len(tr.Selectors))
	}
}

func TestSelector(t *testing.T) {
	tr := testTree(t)

	sel, ok := tr.Selector(0)
	if !ok || sel != "#btn" {
		t.Fatalf("Selector(0) = %q, %v", sel, ok)
	}

	// Out of range and empty-entry misses are indistinguishable.
	if _, ok := tr.Selector(99); ok {
		t.Fatal("out-of-range index must miss")
	}
	tr.Selectors[1] = ""
	if _, ok := tr.Selector(1); ok {
		t.Fatal("empty selector entry must miss")
	}
	if _, ok := tr.Selector(-1); ok {
		t.Fatal("negative index must miss")
	}
}

func TestInteractiveIndices(t *testing.T) {
	root := aria.Fragment()
	root.Children = []aria.Child{
		&aria.Node{Role: "link", Index: ip(4)},
		&aria.Node{Role: "generic", Children: []aria.Child{
			&aria.Node{Role: "button", Index: ip(2)},
		}},
		&aria.Node{Role: "button", Index: ip(0)},
	}
	tr := New(root)
	if got := tr.InteractiveIndices(); !reflect.DeepEqual(got, []int{0, 2, 4}) {
		t.Fatalf("InteractiveIndices = %v", got)
	}
}

func TestFindByIndex(t *testing.T) {
	tr := testTree(t)
	n := tr.FindByIndex(0)
	if n == nil || n.Role != "button" || n.Name != "Click me" {
		t.Fatalf("FindByIndex(0) = %+v", n)
	}
	if tr.FindByIndex(999) != nil {
		t.Fatal("missing index must return nil")
	}
}

func TestRender(t *testing.T) {
	tr := testTree(t)
	out := tr.Render(aria.ModeAI)
	for _, want := range []string{"button", "Click me", "[index=0]", "[cursor=pointer]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered snapshot missing %q:\n%s", want, out)
		}
	}
}

func framePair(t *testing.T) (*Tree, *Tree) {
	t.Helper()
	main := aria.Fragment()
	main.Children = []aria.Child{
		&aria.Node{Role: "button", Name: "Outer", Index: ip(0), Box: aria.Box{Visible: true}},
		&aria.Node{Role: aria.RoleIframe, Name: "ad", Index: ip(1), Box: aria.Box{Visible: true}},
	}
	parent := New(main)
	parent.Selectors[0] = "#outer"
	parent.Selectors[1] = "iframe#ad"

	inner := aria.Fragment()
	inner.Children = []aria.Child{
		&aria.Node{Role: "button", Name: "Inside", Index: ip(0), Box: aria.Box{Visible: true}},
		&aria.Node{Role: "link", Name: "Deep", Index: ip(1), Box: aria.Box{Visible: true}},
	}
	child := New(inner)
	child.Selectors[0] = "#in-btn"
	child.Selectors[1] = "a.deep"

	return parent, child
}

func TestInjectFrame(t *testing.T) {
	parent, child := framePair(t)
	offset := len(parent.Selectors) // 2

	parent.InjectFrame(1, child)

	iframe := parent.FindByIndex(1)
	if iframe == nil || len(iframe.Children) != 2 {
		t.Fatalf("iframe children not replaced: %+v", iframe)
	}
	inner, ok := iframe.Children[0].(*aria.Node)
	if !ok || inner.Name != "Inside" {
		t.Fatalf("first spliced child = %#v", iframe.Children[0])
	}

	// Injected indices are shifted by the pre-injection table length.
	want := []int{0, 1, 0 + offset, 1 + offset}
	got := parent.InteractiveIndices()
	sortWant := []int{0, 1, 2, 3}
	if !reflect.DeepEqual(got, sortWant) {
		t.Fatalf("InteractiveIndices = %v, want %v (union %v)", got, sortWant, want)
	}

	// Spliced selectors resolve through the shifted indices.
	if sel, ok := parent.Selector(2); !ok || sel != "#in-btn" {
		t.Fatalf("Selector(2) = %q, %v", sel, ok)
	}
	if sel, ok := parent.Selector(3); !ok || sel != "a.deep" {
		t.Fatalf("Selector(3) = %q, %v", sel, ok)
	}
}

func TestInjectFrameMissingIndexIsNoop(t *testing.T) {
	parent, child := framePair(t)
	before := parent.Render(aria.ModeExpect)
	selCount := len(parent.Selectors)

	parent.InjectFrame(42, child)

	if parent.Render(aria.ModeExpect) != before {
		t.Fatal("inject on a missing index must not change the tree")
	}
	if len(parent.Selectors) != selCount {
		t.Fatal("inject on a missing index must not grow the selector table")
	}
}

func TestInjectFrameCarriesNestedIframes(t *testing.T) {
	parent, child := framePair(t)

	// The child frame itself contains an iframe.
	nested := &aria.Node{Role: aria.RoleIframe, Name: "inner-frame", Index: ip(2), Box: aria.Box{Visible: true}}
	child.Root.Children = append(child.Root.Children, nested)
	child.Selectors = append(child.Selectors, "iframe.inner")
	child.IframeIndices = append(child.IframeIndices, 2)

	offset := len(parent.Selectors)
	parent.InjectFrame(1, child)

	found := false
	for _, idx := range parent.IframeIndices {
		if idx == 2+offset {
			found = true
		}
	}
	if !found {
		t.Fatalf("nested iframe index not remapped: %v", parent.IframeIndices)
	}
}

func TestAssembleFrames(t *testing.T) {
	parent, child := framePair(t)

	resolved := []int{}
	parent.AssembleFrames(func(idx int) *Tree {
		resolved = append(resolved, idx)
		if idx == 1 {
			return child
		}
		return nil
	})

	if !reflect.DeepEqual(resolved, []int{1}) {
		t.Fatalf("resolver called with %v, want [1]", resolved)
	}
	if n := parent.FindByIndex(1); len(n.Children) != 2 {
		t.Fatal("frame not spliced during assembly")
	}
}

func TestAssembleFramesSkipsUnresolvable(t *testing.T) {
	parent, _ := framePair(t)
	before := parent.Render(aria.ModeExpect)

	parent.AssembleFrames(func(int) *Tree { return nil })

	if parent.Render(aria.ModeExpect) != before {
		t.Fatal("unresolvable frames must be left unexpanded")
	}
}

func TestDecode(t *testing.T) {
	raw := `{
		"root": {
			"role": "fragment",
			"name": "",
			"children": [
				{"role": "button", "name": "Send", "index": 0, "box": {"visible": true, "cursor": "pointer"}},
				"loose text",
				{"role": "iframe", "name": "", "index": 1, "box": {"visible": true}}
			],
			"box": {"visible": false}
		},
		"selectors": ["#send", "iframe"],
		"iframeIndices": [1]
	}`
	tr, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if tr.CountInteractive() != 2 {
		t.Fatalf("CountInteractive = %d", tr.CountInteractive())
	}
	if !reflect.DeepEqual(tr.IframeIndices, []int{1}) {
		t.Fatalf("IframeIndices = %v", tr.IframeIndices)
	}
	if sel, ok := tr.Selector(0); !ok || sel != "#send" {
		t.Fatalf("Selector(0) = %q, %v", sel, ok)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"root":`)); err == nil {
		t.Fatal("truncated payload must fail")
	}
	if _, err := Decode([]byte(`{"selectors":[]}`)); err == nil {
		t.Fatal("payload without root must fail")
	}
}

func TestDecodeTruncatesNames(t *testing.T) {
	long := strings.Repeat("x", 2000)
	raw := `{"root":{"role":"heading","name":"` + long + `","box":{"visible":true}},"selectors":[]}`
	tr, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Root.Name) > aria.MaxNameLen {
		t.Fatalf("name not truncated: %d bytes", len(tr.Root.Name))
	}
	// The truncated name still renders.
	if out := tr.Render(aria.ModeAI); !strings.Contains(out, "heading") {
		t.Fatalf("truncated name dropped from render:\n%s", out)
	}
}
