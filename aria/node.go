// Package aria models the accessibility tree of a web page and renders it
// as a compact YAML-like snapshot for agent consumption.
//
// A Node is one accessible element (or a structural grouping). Interactive
// elements carry a small integer index assigned by the in-page extractor;
// callers address elements by that index instead of a fragile CSS path.
// The package is pure: no browser, no I/O, no shared state. Everything here
// is a total function over an owned tree.
package aria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Role values with structural meaning. All other roles pass through as-is.
const (
	RoleFragment = "fragment" // non-rendered root container
	RoleIframe   = "iframe"   // splice point for frame assembly
)

// MaxNameLen is the longest accessible name that is rendered; YAML caps map
// keys at 1024 bytes, so names are truncated on decode to stay well under.
const MaxNameLen = 900

// Node is one node of the accessibility tree.
type Node struct {
	// Role is the ARIA role ("button", "link", "generic", "iframe", ...).
	Role string `json:"role"`

	// Name is the accessible name.
	Name string `json:"name"`

	// Index is set only on elements the caller may act upon. Unique within
	// one assembled snapshot.
	Index *int `json:"index,omitempty"`

	// Children in DOM order. Order is reading order.
	Children []Child `json:"children,omitempty"`

	// Props are auxiliary attributes (e.g. a link's url).
	Props map[string]string `json:"props,omitempty"`

	// Box carries visibility and geometry.
	Box Box `json:"box"`

	Checked  TriState `json:"checked,omitempty"`
	Disabled *bool    `json:"disabled,omitempty"`
	Expanded *bool    `json:"expanded,omitempty"`
	Level    *int     `json:"level,omitempty"`
	Pressed  TriState `json:"pressed,omitempty"`
	Selected *bool    `json:"selected,omitempty"`
	Active   *bool    `json:"active,omitempty"`
}

// Child is either a text run or a nested Node. The two implementations are
// Text and *Node; child walks switch exhaustively on those.
type Child interface {
	isChild()
}

// Text is a text-run child.
type Text string

func (Text) isChild()  {}
func (*Node) isChild() {}

// Box is the visibility and geometry of an element.
type Box struct {
	// Visible is true when the element has a non-zero on-screen box.
	Visible bool `json:"visible"`

	// Cursor is the computed CSS cursor; "pointer" triggers the
	// [cursor=pointer] marker. Empty means unknown.
	Cursor string `json:"cursor,omitempty"`

	// Rect is the bounding box, when known.
	Rect *Rect `json:"rect,omitempty"`
}

// Rect is a bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TriState is a three-valued ARIA attribute (checked, pressed): true, false,
// or "mixed". The zero value means the attribute is absent.
type TriState int

const (
	TriUnset TriState = iota
	TriFalse
	TriTrue
	TriMixed
)

func (t TriState) String() string {
	switch t {
	case TriFalse:
		return "false"
	case TriTrue:
		return "true"
	case TriMixed:
		return "mixed"
	default:
		return "unset"
	}
}

// UnmarshalJSON accepts true, false, or any string (the extractor sends
// "mixed"); unknown values degrade to the mixed state rather than failing.
func (t *TriState) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*t = TriTrue
		return nil
	case "false":
		*t = TriFalse
		return nil
	case "null":
		*t = TriUnset
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("aria: tri-state: %w", err)
	}
	*t = TriMixed
	return nil
}

func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case TriFalse:
		return []byte("false"), nil
	case TriTrue:
		return []byte("true"), nil
	case TriMixed:
		return []byte(`"mixed"`), nil
	default:
		return []byte("null"), nil
	}
}

// Fragment returns a new non-rendered root container holding the given
// children.
func Fragment(children ...Child) *Node {
	return &Node{Role: RoleFragment, Children: children}
}

// UnmarshalJSON decodes a node, splitting the children array into Text and
// Node variants (the wire format carries bare strings for text runs).
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	aux := struct {
		*plain
		Children []json.RawMessage `json:"children"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	n.Children = nil
	for _, raw := range aux.Children {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return fmt.Errorf("aria: text child: %w", err)
			}
			n.Children = append(n.Children, Text(s))
			continue
		}
		child := new(Node)
		if err := json.Unmarshal(trimmed, child); err != nil {
			return fmt.Errorf("aria: node child: %w", err)
		}
		n.Children = append(n.Children, child)
	}
	return nil
}

// MarshalJSON emits the wire format: text children as bare strings.
func (n *Node) MarshalJSON() ([]byte, error) {
	type plain Node
	aux := struct {
		*plain
		Children []any `json:"children,omitempty"`
	}{plain: (*plain)(n)}
	for _, c := range n.Children {
		switch c := c.(type) {
		case Text:
			aux.Children = append(aux.Children, string(c))
		case *Node:
			aux.Children = append(aux.Children, c)
		}
	}
	return json.Marshal(aux)
}

// IsInteractive reports whether the node carries an index and is visible.
func (n *Node) IsInteractive() bool {
	return n.Index != nil && n.Box.Visible
}

// HasPointerCursor reports whether the computed cursor is "pointer".
func (n *Node) HasPointerCursor() bool {
	return n.Box.Cursor == "pointer"
}

// IsContainer reports whether the node is a fragment or iframe.
func (n *Node) IsContainer() bool {
	return n.Role == RoleFragment || n.Role == RoleIframe
}

// FindByIndex returns the first node with the given index, depth-first
// pre-order, or nil. Absence is a normal outcome, not an error.
func (n *Node) FindByIndex(index int) *Node {
	if n.Index != nil && *n.Index == index {
		return n
	}
	for _, c := range n.Children {
		child, ok := c.(*Node)
		if !ok {
			continue
		}
		if found := child.FindByIndex(index); found != nil {
			return found
		}
	}
	return nil
}

// TextContent concatenates all text children recursively, separating runs
// with a single space and trimming the result. Diagnostic use only; the
// renderer never calls it.
func (n *Node) TextContent() string {
	var sb strings.Builder
	n.collectText(&sb)
	return strings.TrimSpace(sb.String())
}

func (n *Node) collectText(sb *strings.Builder) {
	for _, c := range n.Children {
		switch c := c.(type) {
		case Text:
			sb.WriteString(string(c))
			sb.WriteByte(' ')
		case *Node:
			c.collectText(sb)
		}
	}
}

// CountNodes counts this node plus all descendant Node children. Text
// children contribute nothing.
func (n *Node) CountNodes() int {
	total := 1
	for _, c := range n.Children {
		if child, ok := c.(*Node); ok {
			total += child.CountNodes()
		}
	}
	return total
}

// CountInteractive counts nodes in the subtree that carry an index.
func (n *Node) CountInteractive() int {
	total := 0
	if n.Index != nil {
		total++
	}
	for _, c := range n.Children {
		if child, ok := c.(*Node); ok {
			total += child.CountInteractive()
		}
	}
	return total
}

// TruncateNames caps every accessible name in the subtree at MaxNameLen
// bytes, cutting on a rune boundary. Applied once at decode time so the
// renderer can assume well-formed input.
func (n *Node) TruncateNames() {
	if len(n.Name) > MaxNameLen {
		cut := MaxNameLen
		for cut > 0 && !utf8.RuneStart(n.Name[cut]) {
			cut--
		}
		n.Name = n.Name[:cut]
	}
	for _, c := range n.Children {
		if child, ok := c.(*Node); ok {
			child.TruncateNames()
		}
	}
}
