package aria

// Equal reports whether two nodes are semantically the same for incremental
// re-rendering: role, name, the stable ARIA states, the pointer-cursor flag,
// and the prop map all match. Bounding-box geometry, raw visibility, the
// active flag, and the index are excluded — they are volatile or positional,
// not semantic. The comparison is shallow; callers diff trees node by node.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Role != b.Role || a.Name != b.Name {
		return false
	}
	if a.Checked != b.Checked || a.Pressed != b.Pressed {
		return false
	}
	if !eqBool(a.Disabled, b.Disabled) || !eqBool(a.Expanded, b.Expanded) || !eqBool(a.Selected, b.Selected) {
		return false
	}
	if !eqInt(a.Level, b.Level) {
		return false
	}
	if a.HasPointerCursor() != b.HasPointerCursor() {
		return false
	}
	if len(a.Props) != len(b.Props) {
		return false
	}
	for k, v := range a.Props {
		if bv, ok := b.Props[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// EqualTree reports whether two trees are structurally the same: Equal must
// hold at every paired node, text runs must match, and the child lists must
// line up in shape and order. This is the page-level change test; a bare
// Equal on two roots only compares the roots themselves.
func EqualTree(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !Equal(a, b) {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i, child := range a.Children {
		switch ac := child.(type) {
		case Text:
			bc, ok := b.Children[i].(Text)
			if !ok || ac != bc {
				return false
			}
		case *Node:
			bc, ok := b.Children[i].(*Node)
			if !ok || !EqualTree(ac, bc) {
				return false
			}
		}
	}
	return true
}

func eqBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
