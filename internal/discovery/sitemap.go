package discovery

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// sitemapDoc is the parsed form of a sitemap or sitemap index.
type sitemapDoc struct {
	// Index is true for <sitemapindex> documents, whose Locs name child sitemaps.
	Index bool
	Locs  []string
}

// parseSitemap extracts <loc> values. Element matching ignores namespace
// prefixes so both the sitemaps.org namespace and bare documents parse.
func parseSitemap(body []byte) (sitemapDoc, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return sitemapDoc{}, fmt.Errorf("parse sitemap: %w", err)
	}
	var out sitemapDoc
	expr := "//*[local-name()='url']/*[local-name()='loc']"
	if xmlquery.FindOne(doc, "//*[local-name()='sitemapindex']") != nil {
		out.Index = true
		expr = "//*[local-name()='sitemap']/*[local-name()='loc']"
	}
	for _, node := range xmlquery.Find(doc, expr) {
		if loc := strings.TrimSpace(node.InnerText()); loc != "" {
			out.Locs = append(out.Locs, loc)
		}
	}
	if len(out.Locs) == 0 && !out.Index {
		// Some generators omit the <url> wrapper.
		for _, node := range xmlquery.Find(doc, "//*[local-name()='loc']") {
			if loc := strings.TrimSpace(node.InnerText()); loc != "" {
				out.Locs = append(out.Locs, loc)
			}
		}
	}
	return out, nil
}
