// Package simple contains the URL scope policy applied to discovered pages.
package simple

import (
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// DefaultSkipExtensions lists path extensions that never lead to an HTML page.
var DefaultSkipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".css", ".js", ".zip", ".gz", ".mp3", ".mp4", ".mov", ".avi", ".xml",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

// Policy decides whether a URL belongs to the crawl of a site.
type Policy struct {
	skip map[string]struct{}
}

// New creates a Policy. With no extensions DefaultSkipExtensions is used.
func New(skipExtensions ...string) *Policy {
	if len(skipExtensions) == 0 {
		skipExtensions = DefaultSkipExtensions
	}
	skip := make(map[string]struct{}, len(skipExtensions))
	for _, ext := range skipExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		skip[ext] = struct{}{}
	}
	return &Policy{skip: skip}
}

// AllowURL reports whether candidate is an http(s) page on site's host.
func (p *Policy) AllowURL(candidate, site *url.URL) bool {
	if candidate == nil || site == nil {
		return false
	}
	switch strings.ToLower(candidate.Scheme) {
	case "http", "https":
	default:
		return false
	}
	if !crawler.SameHost(candidate, site) {
		return false
	}
	_, skipped := p.skip[strings.ToLower(path.Ext(candidate.Path))]
	return !skipped
}
