// Package snapshot owns one assembled accessibility tree plus the side
// table mapping element indices to live CSS selectors, and splices nested
// frame snapshots into a single seamless tree.
//
// A Tree is built once per page state from extractor output and rebuilt —
// never mutated in place — when the page changes. The selector table is a
// flat arena addressed by the same indices the renderer writes as [index=N]
// markers; an empty string is the "no selector known" sentinel.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hazyhaar/ariatree/aria"
)

// Tree is one page-state snapshot: the node tree, the index→selector table,
// and the iframe splice points discovered by the extractor.
type Tree struct {
	Root          *aria.Node
	Selectors     []string
	IframeIndices []int
}

// payload is the JSON contract with the in-page extractor.
type payload struct {
	Root          *aria.Node `json:"root"`
	Selectors     []string   `json:"selectors"`
	IframeIndices []int      `json:"iframeIndices"`
}

// New builds a Tree around a root node, sizing the selector table to the
// maximum index and collecting iframe splice points from the tree itself.
func New(root *aria.Node) *Tree {
	t := &Tree{Root: root}
	t.rebuild()
	return t
}

// Decode parses the extractor payload {root, selectors, iframeIndices}.
// A parse failure here is the "extraction failed" condition: no Tree is
// built from malformed input.
func Decode(data []byte) (*Tree, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("snapshot: decode extractor payload: %w", err)
	}
	if p.Root == nil {
		return nil, fmt.Errorf("snapshot: extractor payload has no root")
	}
	p.Root.TruncateNames()

	t := &Tree{Root: p.Root, Selectors: p.Selectors, IframeIndices: p.IframeIndices}
	t.ensureTableSize()
	if t.IframeIndices == nil {
		t.collectIframes(t.Root)
	}
	return t, nil
}

// rebuild resizes the selector table and re-collects iframe indices from
// the tree. Existing selector entries are preserved.
func (t *Tree) rebuild() {
	t.IframeIndices = t.IframeIndices[:0]
	t.ensureTableSize()
	t.collectIframes(t.Root)
}

func (t *Tree) ensureTableSize() {
	max := -1
	var walk func(n *aria.Node)
	walk = func(n *aria.Node) {
		if n.Index != nil && *n.Index > max {
			max = *n.Index
		}
		for _, c := range n.Children {
			if child, ok := c.(*aria.Node); ok {
				walk(child)
			}
		}
	}
	walk(t.Root)
	for len(t.Selectors) <= max {
		t.Selectors = append(t.Selectors, "")
	}
}

func (t *Tree) collectIframes(n *aria.Node) {
	if n.Index != nil && n.Role == aria.RoleIframe {
		t.IframeIndices = append(t.IframeIndices, *n.Index)
	}
	for _, c := range n.Children {
		if child, ok := c.(*aria.Node); ok {
			t.collectIframes(child)
		}
	}
}

// Selector returns the CSS selector recorded for an index. An index with no
// recorded selector and an out-of-range index look the same to the caller:
// both are misses.
func (t *Tree) Selector(index int) (string, bool) {
	if index < 0 || index >= len(t.Selectors) || t.Selectors[index] == "" {
		return "", false
	}
	return t.Selectors[index], true
}

// InteractiveIndices returns every index present in the tree, ascending.
func (t *Tree) InteractiveIndices() []int {
	var indices []int
	var walk func(n *aria.Node)
	walk = func(n *aria.Node) {
		if n.Index != nil {
			indices = append(indices, *n.Index)
		}
		for _, c := range n.Children {
			if child, ok := c.(*aria.Node); ok {
				walk(child)
			}
		}
	}
	walk(t.Root)
	sort.Ints(indices)
	return indices
}

// FindByIndex returns the node carrying an index, or nil.
func (t *Tree) FindByIndex(index int) *aria.Node {
	return t.Root.FindByIndex(index)
}

// CountNodes returns the total node count of the tree.
func (t *Tree) CountNodes() int { return t.Root.CountNodes() }

// CountInteractive returns the number of indexed nodes.
func (t *Tree) CountInteractive() int { return t.Root.CountInteractive() }

// Render produces the textual snapshot of the tree.
func (t *Tree) Render(mode aria.Mode) string {
	return aria.Render(t.Root, mode)
}

// InjectFrame splices a child frame's snapshot into the iframe node with
// the given index: the node's children are replaced by the child root's
// children, every index inside the spliced subtree is shifted by the
// pre-injection selector-table length so indices stay unique across the
// assembled snapshot, the child's non-empty selectors are appended at that
// offset, and the child's own iframe indices are re-added shifted by the
// same offset so nested frames remain resolvable. A missing iframe node is
// a silent no-op.
func (t *Tree) InjectFrame(iframeIndex int, child *Tree) {
	node := t.Root.FindByIndex(iframeIndex)
	if node == nil {
		return
	}

	offset := len(t.Selectors)

	for _, c := range child.Root.Children {
		if n, ok := c.(*aria.Node); ok {
			shiftIndices(n, offset)
		}
	}
	node.Children = child.Root.Children

	for _, sel := range child.Selectors {
		if sel != "" {
			t.Selectors = append(t.Selectors, sel)
		}
	}

	for _, idx := range child.IframeIndices {
		t.IframeIndices = append(t.IframeIndices, idx+offset)
	}
}

func shiftIndices(n *aria.Node, offset int) {
	if n.Index != nil {
		shifted := *n.Index + offset
		n.Index = &shifted
	}
	for _, c := range n.Children {
		if child, ok := c.(*aria.Node); ok {
			shiftIndices(child, offset)
		}
	}
}

// Resolver supplies the snapshot of a child frame for an iframe index, or
// nil when the frame cannot be captured (cross-origin, not yet loaded).
type Resolver func(iframeIndex int) *Tree

// AssembleFrames splices child snapshots into every iframe recorded at
// assembly time. The index list is snapshotted before the first injection
// so splices during the pass do not perturb the iteration; unresolvable
// frames are skipped and stay unexpanded in the output.
func (t *Tree) AssembleFrames(resolve Resolver) {
	pending := make([]int, len(t.IframeIndices))
	copy(pending, t.IframeIndices)

	for _, idx := range pending {
		if child := resolve(idx); child != nil {
			t.InjectFrame(idx, child)
		}
	}
}
