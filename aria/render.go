package aria

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mode selects what the renderer emits.
type Mode int

const (
	// ModeAI is the full rendering for agent consumption: includes the
	// volatile [cursor=pointer] and [active] markers.
	ModeAI Mode = iota
	// ModeExpect suppresses the volatile markers, producing output stable
	// enough for comparison and testing.
	ModeExpect
)

// Render converts a tree into its line-oriented snapshot. A fragment root is
// not itself emitted; its children render at indent zero. The result has no
// trailing newline, and an empty fragment renders as the empty string.
// Rendering is a pure, total function: absent fields are simply omitted.
func Render(root *Node, mode Mode) string {
	r := renderer{
		cursorPointer: mode == ModeAI,
		active:        mode == ModeAI,
	}

	if root.Role == RoleFragment {
		for _, c := range root.Children {
			switch c := c.(type) {
			case Text:
				r.text(string(c), "")
			case *Node:
				r.visit(c, "", r.cursorPointer)
			}
		}
	} else {
		r.visit(root, "", r.cursorPointer)
	}

	return strings.Join(r.lines, "\n")
}

type renderer struct {
	lines         []string
	cursorPointer bool
	active        bool
}

func (r *renderer) text(s, indent string) {
	escaped := EscapeValue(s)
	if escaped == "" {
		return
	}
	r.lines = append(r.lines, indent+"- text: "+escaped)
}

// visit emits one node and recurses. renderCursor is false once an ancestor
// has claimed the [cursor=pointer] marker for its subtree.
func (r *renderer) visit(n *Node, indent string, renderCursor bool) {
	key := r.key(n, renderCursor)
	escapedKey := indent + "- " + EscapeKey(key)

	if text, ok := singleInlineText(n); ok {
		r.lines = append(r.lines, escapedKey+": "+EscapeValue(text))
		return
	}
	if len(n.Children) == 0 && len(n.Props) == 0 {
		r.lines = append(r.lines, escapedKey)
		return
	}

	r.lines = append(r.lines, escapedKey+":")

	// Props in lexicographic key order, so output is byte-stable across runs.
	names := make([]string, 0, len(n.Props))
	for name := range n.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.lines = append(r.lines, indent+"  - /"+name+": "+EscapeValue(n.Props[name]))
	}

	childIndent := indent + "  "
	claimed := n.Index != nil && renderCursor && n.HasPointerCursor()
	for _, c := range n.Children {
		switch c := c.(type) {
		case Text:
			r.text(string(c), childIndent)
		case *Node:
			r.visit(c, childIndent, renderCursor && !claimed)
		}
	}
}

// key builds the "role "name" [markers...]" string for one node. Marker
// order is fixed so that two renders of the same tree are byte-identical.
func (r *renderer) key(n *Node, renderCursor bool) string {
	var sb strings.Builder
	sb.WriteString(n.Role)

	if n.Name != "" && len(n.Name) <= MaxNameLen {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Quote(n.Name))
	}

	switch n.Checked {
	case TriTrue:
		sb.WriteString(" [checked]")
	case TriMixed:
		sb.WriteString(" [checked=mixed]")
	}
	if n.Disabled != nil && *n.Disabled {
		sb.WriteString(" [disabled]")
	}
	if n.Expanded != nil && *n.Expanded {
		sb.WriteString(" [expanded]")
	}
	if r.active && n.Active != nil && *n.Active {
		sb.WriteString(" [active]")
	}
	if n.Level != nil {
		fmt.Fprintf(&sb, " [level=%d]", *n.Level)
	}
	switch n.Pressed {
	case TriTrue:
		sb.WriteString(" [pressed]")
	case TriMixed:
		sb.WriteString(" [pressed=mixed]")
	}
	if n.Selected != nil && *n.Selected {
		sb.WriteString(" [selected]")
	}
	if n.Index != nil {
		fmt.Fprintf(&sb, " [index=%d]", *n.Index)
		if renderCursor && n.HasPointerCursor() {
			sb.WriteString(" [cursor=pointer]")
		}
	}

	return sb.String()
}

// singleInlineText reports whether the node collapses to "key: text" —
// exactly one Text child and no props.
func singleInlineText(n *Node) (string, bool) {
	if len(n.Children) != 1 || len(n.Props) != 0 {
		return "", false
	}
	t, ok := n.Children[0].(Text)
	return string(t), ok
}
