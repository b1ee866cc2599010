package browser

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/ariatree/snapshot"
)

//go:embed extract_dom.js
var extractScript string

// Extract runs the in-page walker on the given page and decodes the result
// into a snapshot tree. Iframe subtrees are left unassembled; use Snapshot
// to get the full spliced tree.
func Extract(ctx context.Context, page *rod.Page) (*snapshot.Tree, error) {
	res, err := page.Context(ctx).Eval(extractScript)
	if err != nil {
		return nil, fmt.Errorf("browser: extraction failed: %w", err)
	}
	tree, err := snapshot.Decode([]byte(res.Value.Str()))
	if err != nil {
		return nil, fmt.Errorf("browser: extraction failed: %w", err)
	}
	return tree, nil
}

// Snapshot extracts the page tree and splices in every resolvable iframe,
// recursively. Frames that cannot be reached (cross-origin, detached,
// mid-navigation) are skipped; their placeholder nodes keep empty bodies.
func Snapshot(ctx context.Context, page *rod.Page) (*snapshot.Tree, error) {
	tree, err := Extract(ctx, page)
	if err != nil {
		return nil, err
	}
	tree.AssembleFrames(frameResolver(ctx, page, tree))
	return tree, nil
}

// frameResolver maps iframe indices to extracted subframe trees via the
// index's selector. Any failure along the way resolves to nil so the
// assembler can move on.
func frameResolver(ctx context.Context, page *rod.Page, tree *snapshot.Tree) snapshot.Resolver {
	return func(index int) *snapshot.Tree {
		sel, ok := tree.Selector(index)
		if !ok {
			return nil
		}
		el, err := page.Context(ctx).Element(sel)
		if err != nil {
			return nil
		}
		frame, err := el.Frame()
		if err != nil {
			return nil
		}
		sub, err := Snapshot(ctx, frame)
		if err != nil {
			return nil
		}
		return sub
	}
}
