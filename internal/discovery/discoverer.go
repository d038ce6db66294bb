// Package discovery produces the bounded, same-site URL set for a deep analysis.
//
// Sitemaps are tried first; when they yield fewer than the requested number
// of pages the start page's links fill the remainder. Every failure on either
// path is logged and skipped, so discovery always returns at least the seed.
package discovery

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
	"github.com/JakeFAU/site-visibility-crawler/internal/policy/simple"
)

// DefaultSitemapPaths are probed in order; the first 200 response wins.
var DefaultSitemapPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml"}

// Config tunes discovery fetches.
type Config struct {
	SitemapPaths     []string
	SitemapTimeout   time.Duration
	PageTimeout      time.Duration
	MinBodyBytes     int
	MaxChildSitemaps int
}

// Discoverer implements crawler.Discoverer.
type Discoverer struct {
	fetcher crawler.Fetcher
	pacer   crawler.Pacer
	policy  *simple.Policy
	cfg     Config
	logger  *zap.Logger
}

// New builds a Discoverer. pacer may be nil; policy defaults to simple.New().
func New(fetcher crawler.Fetcher, pacer crawler.Pacer, policy *simple.Policy, cfg Config, logger *zap.Logger) *Discoverer {
	if len(cfg.SitemapPaths) == 0 {
		cfg.SitemapPaths = DefaultSitemapPaths
	}
	if cfg.SitemapTimeout <= 0 {
		cfg.SitemapTimeout = 10 * time.Second
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.MinBodyBytes <= 0 {
		cfg.MinBodyBytes = 200
	}
	if cfg.MaxChildSitemaps <= 0 {
		cfg.MaxChildSitemaps = 5
	}
	if policy == nil {
		policy = simple.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		fetcher: fetcher,
		pacer:   pacer,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
	}
}

// Discover returns at most maxPages deduplicated URLs with startURL first.
func (d *Discoverer) Discover(ctx context.Context, startURL, baseDomain string, maxPages int) crawler.Discovery {
	if maxPages < 1 {
		maxPages = 1
	}
	set := newURLSet(maxPages)
	if !set.add(startURL) {
		set.urls = append(set.urls, startURL)
	}
	result := crawler.Discovery{Source: crawler.DiscoverySeed}

	site := siteURL(startURL, baseDomain)
	if site == nil || set.full() {
		result.URLs = set.urls
		metrics.ObserveDiscovery(string(result.Source), len(result.URLs))
		return result
	}
	logger := d.logger.With(zap.String("start_url", startURL))

	if added := d.addAllowed(set, site, d.fromSitemaps(ctx, site, logger)); added > 0 {
		result.Source = crawler.DiscoverySitemap
	}
	if !set.full() {
		added := d.addAllowed(set, site, d.fromLinks(ctx, startURL, site, logger))
		if added > 0 && result.Source == crawler.DiscoverySeed {
			result.Source = crawler.DiscoveryLinks
		}
	}

	result.URLs = set.urls
	metrics.ObserveDiscovery(string(result.Source), len(result.URLs))
	logger.Debug("discovery complete",
		zap.String("source", string(result.Source)),
		zap.Int("urls", len(result.URLs)),
	)
	return result
}

func (d *Discoverer) addAllowed(set *urlSet, site *url.URL, candidates []string) int {
	added := 0
	for _, raw := range candidates {
		if set.full() {
			break
		}
		u, err := url.Parse(raw)
		if err != nil || !d.policy.AllowURL(u, site) {
			continue
		}
		if set.add(raw) {
			added++
		}
	}
	return added
}

// fromSitemaps returns the page URLs of the first sitemap that answers 200.
// Once a path has answered, later paths are not probed even when the
// document does not parse.
func (d *Discoverer) fromSitemaps(ctx context.Context, site *url.URL, logger *zap.Logger) []string {
	origin := crawler.BaseDomain(site)
	for _, p := range d.cfg.SitemapPaths {
		sitemapURL := origin + p
		body, err := d.fetch(ctx, sitemapURL, d.cfg.SitemapTimeout, 1)
		if err != nil {
			logger.Debug("sitemap unavailable", zap.String("sitemap_url", sitemapURL), zap.Error(err))
			continue
		}
		doc, err := parseSitemap(body)
		if err != nil {
			logger.Debug("sitemap unparsable", zap.String("sitemap_url", sitemapURL), zap.Error(err))
			return nil
		}
		if !doc.Index {
			return doc.Locs
		}
		return d.expandIndex(ctx, doc.Locs, logger)
	}
	return nil
}

func (d *Discoverer) expandIndex(ctx context.Context, children []string, logger *zap.Logger) []string {
	if len(children) > d.cfg.MaxChildSitemaps {
		children = children[:d.cfg.MaxChildSitemaps]
	}
	var locs []string
	for _, child := range children {
		doc, err := d.fetchSitemap(ctx, child)
		if err != nil || doc.Index {
			logger.Debug("child sitemap skipped", zap.String("sitemap_url", child), zap.Error(err))
			continue
		}
		locs = append(locs, doc.Locs...)
	}
	return locs
}

func (d *Discoverer) fetchSitemap(ctx context.Context, sitemapURL string) (sitemapDoc, error) {
	body, err := d.fetch(ctx, sitemapURL, d.cfg.SitemapTimeout, 1)
	if err != nil {
		return sitemapDoc{}, err
	}
	return parseSitemap(body)
}

// fromLinks fetches startURL once and returns its same-site links with
// query and fragment stripped.
func (d *Discoverer) fromLinks(ctx context.Context, startURL string, site *url.URL, logger *zap.Logger) []string {
	body, err := d.fetch(ctx, startURL, d.cfg.PageTimeout, d.cfg.MinBodyBytes)
	if err != nil {
		logger.Debug("link discovery fetch failed", zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		logger.Debug("link discovery parse failed", zap.Error(err))
		return nil
	}
	base, err := url.Parse(startURL)
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !d.policy.AllowURL(resolved, site) {
			return
		}
		links = append(links, crawler.StripQueryAndFragment(resolved))
	})
	return links
}

func (d *Discoverer) fetch(ctx context.Context, rawURL string, timeout time.Duration, minBody int) ([]byte, error) {
	if d.pacer != nil {
		if err := d.pacer.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	resp, err := d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Timeout: timeout, MinBodyBytes: minBody})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// siteURL picks the URL whose host scopes discovery: baseDomain when it
// parses with a host, otherwise the start URL.
func siteURL(startURL, baseDomain string) *url.URL {
	for _, raw := range []string{baseDomain, startURL} {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			return u
		}
	}
	return nil
}

// urlSet is an insertion-ordered set keyed by crawler.DedupKey.
type urlSet struct {
	max  int
	seen map[string]struct{}
	urls []string
}

func newURLSet(maxSize int) *urlSet {
	return &urlSet{max: maxSize, seen: make(map[string]struct{}), urls: make([]string, 0, maxSize)}
}

func (s *urlSet) full() bool {
	return len(s.urls) >= s.max
}

func (s *urlSet) add(raw string) bool {
	if s.full() {
		return false
	}
	key, err := crawler.DedupKey(raw)
	if err != nil {
		return false
	}
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.urls = append(s.urls, raw)
	return true
}
