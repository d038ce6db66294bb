package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var skippedTextElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// visibleText gathers the document's text outside script, style and noscript,
// collapses it into single-space separated chunks and caps it at limit runes.
func visibleText(doc *goquery.Document, limit int) string {
	var sb strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &sb)
	}
	return truncateRunes(collapseWhitespace(sb.String()), limit)
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedTextElements[strings.ToLower(n.Data)] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// collapseWhitespace splits text into lines, then each line on double spaces,
// trims every chunk and joins the non-empty ones with a single space.
func collapseWhitespace(text string) string {
	chunks := make([]string, 0)
	for _, line := range strings.FieldsFunc(text, isLineBreak) {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, " ")
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
