package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minContentLen is the smallest text length a subtree needs before it can
// be considered page content rather than chrome.
const minContentLen = 80

// MainMarkdown converts only the main content region of a page to markdown:
// semantic landmarks (<main>, <article>) when present, else the subtree
// with the best text-to-markup density. Falls back to whole-page conversion
// when no region qualifies.
func (c *Converter) MainMarkdown(htmlStr, pageURL string) (string, error) {
	region, err := mainContent(htmlStr)
	if err != nil {
		return "", err
	}
	if region == "" {
		return c.Markdown(htmlStr, pageURL)
	}
	return c.Markdown(region, pageURL)
}

// mainContent returns the rendered HTML of the page's main content region,
// or "" when none stands out.
func mainContent(htmlStr string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}

	for _, tag := range []atom.Atom{atom.Main, atom.Article} {
		nodes := findAllByTag(doc, tag)
		var parts []string
		for _, n := range nodes {
			if isBoilerplate(n) {
				continue
			}
			if len(nodeText(n)) >= minContentLen {
				parts = append(parts, renderNode(n))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}

	body := findBody(doc)
	if body == nil {
		body = doc
	}
	if best := findDensestNode(body); best != nil {
		return renderNode(best), nil
	}
	return "", nil
}

// nodeScore holds density analysis for a DOM subtree.
type nodeScore struct {
	node     *html.Node
	textLen  int
	density  float64
	linkDens float64
}

// findDensestNode walks the DOM and finds the content-bearing node with the
// highest text-to-markup ratio, skipping link-heavy regions (navigation).
func findDensestNode(root *html.Node) *html.Node {
	var candidates []nodeScore

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode || isBoilerplate(n) {
			return
		}
		if !isContentTag(n.DataAtom) && n.DataAtom != atom.Body {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}

		text := nodeText(n)
		if len(text) >= minContentLen {
			markup := renderNode(n)
			markupLen := len(markup)
			if markupLen == 0 {
				markupLen = 1
			}
			linkDens := float64(len(linkText(n))) / float64(len(text))
			candidates = append(candidates, nodeScore{
				node:     n,
				textLen:  len(text),
				density:  float64(len(text)) / float64(markupLen),
				linkDens: linkDens,
			})
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var best *nodeScore
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if c.linkDens > 0.5 {
			continue // mostly links, probably navigation
		}
		score := c.density * logScale(c.textLen) * (1 - c.linkDens)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.node
}

// logScale returns a log-based scale factor for text length.
func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 100; v /= 2 {
		scale++
	}
	return scale
}

// linkText extracts text only from <a> subtrees.
func linkText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			sb.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(n, false)
	return sb.String()
}

// isBoilerplate reports whether a node is page chrome rather than content.
func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Header, atom.Aside,
		atom.Script, atom.Style, atom.Noscript, atom.Form:
		return true
	}
	role := attrValue(n, "role")
	if role == "navigation" || role == "banner" || role == "contentinfo" {
		return true
	}
	class := strings.ToLower(attrValue(n, "class") + " " + attrValue(n, "id"))
	for _, marker := range []string{"sidebar", "advert", "banner", "cookie", "popup", "menu"} {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}

// isContentTag reports whether a tag can anchor a content region.
func isContentTag(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Td, atom.P:
		return true
	}
	return false
}

// findBody returns the <body> element from a parsed document.
func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}

// findAllByTag finds all elements with a specific tag.
func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// renderNode serializes a node subtree back to HTML.
func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
