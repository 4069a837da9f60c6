// Package textutil cleans scraped HTML into plain text.
package textutil

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "p, div, li, h1, h2, h3, h4, h5, h6, tr, blockquote, pre"

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Input that is not HTML is returned normalised.
func StripHTML(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return NormalizeSpace(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return NormalizeSpace(html.UnescapeString(raw))
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find(blockSelector).AppendHtml(" ")

	return NormalizeSpace(doc.Text())
}

// NormalizeSpace collapses whitespace runs into single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to limit runes and appends marker when something was cut.
func Truncate(s string, limit int, marker string) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + marker
}
