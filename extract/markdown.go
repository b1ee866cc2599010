// Package extract turns captured page HTML into agent-consumable content:
// markdown, link inventories, and selector-scoped text.
package extract

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Converter turns page HTML into markdown. Input is sanitized first so
// script payloads and event handlers never reach the converter or the
// consumer.
type Converter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewConverter builds a Converter with the commonmark and table plugins.
func NewConverter() *Converter {
	return &Converter{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts HTML to markdown. pageURL resolves relative links; it
// may be empty. Empty input converts to empty output without error.
func (c *Converter) Markdown(htmlStr, pageURL string) (string, error) {
	if strings.TrimSpace(htmlStr) == "" {
		return "", nil
	}
	clean := c.policy.Sanitize(htmlStr)
	result, err := c.md.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("extract: convert to markdown: %w", err)
	}
	return strings.TrimSpace(result), nil
}
