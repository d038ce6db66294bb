// Package extract turns fetched HTML into crawler.PageSignal records.
//
// Extraction never fails: malformed or sparse markup degrades to empty
// defaults so that downstream scoring always receives a complete record.
package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// Config tunes extraction limits.
type Config struct {
	// MaxContentChars caps ContentText in runes. Zero uses crawler.MaxContentChars.
	MaxContentChars int
}

// Extractor implements crawler.Extractor using goquery.
type Extractor struct {
	maxContentChars int
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	limit := cfg.MaxContentChars
	if limit <= 0 {
		limit = crawler.MaxContentChars
	}
	return &Extractor{maxContentChars: limit}
}

// Extract parses html fetched from pageURL. It is pure and deterministic.
func (e *Extractor) Extract(html string, pageURL string) crawler.PageSignal {
	signal := emptySignal(pageURL)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return signal
	}

	signal.Title = firstText(doc, "title")
	signal.MetaDescription = metaDescription(doc)
	signal.Headings = crawler.Headings{
		H1: texts(doc, "h1"),
		H2: texts(doc, "h2"),
		H3: texts(doc, "h3"),
	}
	signal.SchemaMarkup = schemaMarkup(doc)
	signal.StructuredData = crawler.StructuredData{
		HasLocalBusiness: exists(doc, `[itemtype*="LocalBusiness"]`),
		HasOrganization:  exists(doc, `[itemtype*="Organization"]`),
		HasProduct:       exists(doc, `[itemtype*="Product"]`),
		HasAddress:       exists(doc, `[itemprop="address"]`),
		HasTelephone:     exists(doc, `[itemprop="telephone"]`),
	}
	signal.ContentText = visibleText(doc, e.maxContentChars)
	signal.WordCount = len(strings.Fields(signal.ContentText))
	signal.Images = imageStats(doc)
	signal.Links = classifyLinks(doc, pageURL)
	signal.InternalLinksCount = signal.Links.Internal
	signal.ExternalLinksCount = signal.Links.External
	signal.MobileViewport = exists(doc, `meta[name="viewport"]`)
	signal.PageStructure = crawler.PageStructure{
		HasHeader:   exists(doc, "header"),
		HasNav:      exists(doc, "nav"),
		HasMain:     exists(doc, "main"),
		HasFooter:   exists(doc, "footer"),
		HasSemantic: exists(doc, "article, section, aside"),
	}
	signal.CanonicalURL = canonical(doc)
	signal.OGTags = metaMap(doc, `meta[property^="og:"]`, "property")
	signal.TwitterTags = metaMap(doc, `meta[name^="twitter:"]`, "name")
	return signal
}

func emptySignal(pageURL string) crawler.PageSignal {
	return crawler.PageSignal{
		URL: pageURL,
		Headings: crawler.Headings{
			H1: []string{},
			H2: []string{},
			H3: []string{},
		},
		SchemaMarkup: crawler.SchemaMarkup{JSONLD: []json.RawMessage{}},
		OGTags:       map[string]string{},
		TwitterTags:  map[string]string{},
	}
}

func exists(doc *goquery.Document, selector string) bool {
	return doc.Find(selector).Length() > 0
}

func firstText(doc *goquery.Document, selector string) *string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.Text())
	return &text
}

func texts(doc *goquery.Document, selector string) []string {
	out := make([]string, 0)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

// metaDescription returns the trimmed content of the first description meta
// tag. A tag without content yields an empty, non-nil value.
func metaDescription(doc *goquery.Document) *string {
	sel := doc.Find(`meta[name="description"]`).First()
	if sel.Length() == 0 {
		return nil
	}
	content := strings.TrimSpace(sel.AttrOr("content", ""))
	return &content
}

func canonical(doc *goquery.Document) *string {
	href, ok := doc.Find(`link[rel~="canonical"]`).First().Attr("href")
	if !ok {
		return nil
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	return &href
}

func metaMap(doc *goquery.Document, selector, keyAttr string) map[string]string {
	out := map[string]string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr(keyAttr, "")
		if key == "" {
			return
		}
		out[key] = s.AttrOr("content", "")
	})
	return out
}

func imageStats(doc *goquery.Document) crawler.ImageStats {
	var stats crawler.ImageStats
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		stats.Count++
		if alt, _ := s.Attr("alt"); alt != "" {
			stats.WithAlt++
			return
		}
		stats.WithoutAlt++
	})
	return stats
}

// classifyLinks counts anchors with an href. A link is internal when it
// resolves, against the page URL, to the page's own host; hrefs that cannot
// be parsed are treated as relative and therefore internal.
func classifyLinks(doc *goquery.Document, pageURL string) crawler.LinkStats {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		base = nil
	}
	var stats crawler.LinkStats
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		stats.Total++
		href, _ := s.Attr("href")
		if isInternal(base, href) {
			stats.Internal++
			return
		}
		stats.External++
	})
	return stats
}

func isInternal(base *url.URL, href string) bool {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return true
	}
	if base == nil {
		return ref.Host == "" && ref.Scheme == ""
	}
	resolved := base.ResolveReference(ref)
	switch resolved.Scheme {
	case "http", "https":
	default:
		return false
	}
	return crawler.SameHost(resolved, base)
}
