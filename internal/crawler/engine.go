package crawler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
)

// Site issue thresholds applied to aggregate coverage percentages.
const (
	schemaCoverageThreshold = 50.0
	metaCoverageThreshold   = 80.0
)

// EngineConfig controls crawl pacing, budgets and fan-out.
type EngineConfig struct {
	// PageTimeout bounds each page fetch.
	PageTimeout time.Duration
	// RequestDelay is the minimum per-host spacing enforced by the Pacer. The
	// engine only uses it to derive the default crawl deadline.
	RequestDelay time.Duration
	// DiscoveryBudget is the time reserved for discovery when deriving the deadline.
	DiscoveryBudget time.Duration
	// CrawlDeadline caps the whole crawl. Zero derives it from the page budget.
	CrawlDeadline time.Duration
	MinBodyBytes  int
	Concurrency   int
}

// Engine runs deep analyses: discover, fetch, extract, aggregate.
type Engine struct {
	discoverer Discoverer
	fetcher    Fetcher
	extractor  Extractor
	pacer      Pacer
	clock      Clock
	cfg        EngineConfig
	logger     *zap.Logger
}

// NewEngine wires an Engine. pacer may be nil to disable per-host spacing.
func NewEngine(
	discoverer Discoverer,
	fetcher Fetcher,
	extractor Extractor,
	pacer Pacer,
	clock Clock,
	cfg EngineConfig,
	logger *zap.Logger,
) *Engine {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MinBodyBytes <= 0 {
		cfg.MinBodyBytes = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		discoverer: discoverer,
		fetcher:    fetcher,
		extractor:  extractor,
		pacer:      pacer,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// pageOutcome is the per-index slot filled by one page fetch.
type pageOutcome struct {
	signal  *PageSignal
	failure *PageFailure
}

// crawlSession owns the transient state of a single Crawl call.
type crawlSession struct {
	req        CrawlRequest
	seed       string
	baseDomain string
	started    time.Time
	discovery  Discovery
	outcomes   []pageOutcome
}

// Crawl analyzes up to req.MaxPages pages of the site at req.URL.
//
// Page failures never abort the crawl. When no page could be analyzed the
// (still well-formed) result is returned together with ErrNoPagesAnalyzed.
func (e *Engine) Crawl(ctx context.Context, req CrawlRequest) (CrawlResult, error) {
	start, err := ValidateRequest(req)
	if err != nil {
		return CrawlResult{}, err
	}
	session := &crawlSession{
		req:        req,
		seed:       start.String(),
		baseDomain: BaseDomain(start),
		started:    e.clock.Now(),
	}

	deadline := e.deadline(req.MaxPages)
	crawlCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	logger := e.logger.With(zap.String("url", session.seed), zap.Int("max_pages", req.MaxPages))
	logger.Info("crawl started", zap.Bool("include_subpages", req.IncludeSubpages), zap.Duration("deadline", deadline))

	session.discovery = e.discover(crawlCtx, session)
	logger.Debug("discovery finished",
		zap.String("source", string(session.discovery.Source)),
		zap.Int("urls", len(session.discovery.URLs)),
	)

	session.outcomes = e.fetchAll(crawlCtx, session.discovery.URLs)
	result := session.result(e.clock.Now())

	metrics.ObserveCrawlResult(session.baseDomain, result.SuccessfulScrapes, result.FailedScrapes, result.DurationSeconds)
	logger.Info("crawl finished",
		zap.Int("succeeded", result.SuccessfulScrapes),
		zap.Int("failed", result.FailedScrapes),
		zap.Float64("duration_seconds", result.DurationSeconds),
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl canceled: %w", err)
	}
	if result.SuccessfulScrapes == 0 {
		return result, ErrNoPagesAnalyzed
	}
	return result, nil
}

// ValidateRequest checks the URL and page cap of req and returns the parsed start URL.
func ValidateRequest(req CrawlRequest) (*url.URL, error) {
	start, err := ParseStartURL(req.URL)
	if err != nil {
		return nil, err
	}
	if req.MaxPages < MinPages || req.MaxPages > MaxPages {
		return nil, fmt.Errorf("%w: max_pages must be between %d and %d, got %d",
			ErrInvalidRequest, MinPages, MaxPages, req.MaxPages)
	}
	return start, nil
}

func (e *Engine) deadline(maxPages int) time.Duration {
	if e.cfg.CrawlDeadline > 0 {
		return e.cfg.CrawlDeadline
	}
	perPage := e.cfg.PageTimeout + e.cfg.RequestDelay
	return e.cfg.DiscoveryBudget + time.Duration(maxPages)*perPage
}

func (e *Engine) discover(ctx context.Context, s *crawlSession) Discovery {
	seedOnly := Discovery{URLs: []string{s.seed}, Source: DiscoverySeed}
	if !s.req.IncludeSubpages || e.discoverer == nil {
		return seedOnly
	}
	found := e.discoverer.Discover(ctx, s.seed, s.baseDomain, s.req.MaxPages)
	if len(found.URLs) == 0 {
		return seedOnly
	}
	if len(found.URLs) > s.req.MaxPages {
		found.URLs = found.URLs[:s.req.MaxPages]
	}
	return found
}

// fetchAll processes urls with bounded concurrency, keeping results in input order.
func (e *Engine) fetchAll(ctx context.Context, urls []string) []pageOutcome {
	outcomes := make([]pageOutcome, len(urls))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, pageURL := range urls {
		g.Go(func() error {
			outcomes[i] = e.processPage(ctx, pageURL)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // page goroutines never return errors
	return outcomes
}

func (e *Engine) processPage(ctx context.Context, pageURL string) pageOutcome {
	if err := ctx.Err(); err != nil {
		return e.failed(pageURL, &FetchError{Kind: FetchCanceled, URL: pageURL, Cause: err}, 0)
	}
	if e.pacer != nil {
		if err := e.pacer.Wait(ctx, pageURL); err != nil {
			return e.failed(pageURL, &FetchError{Kind: FetchCanceled, URL: pageURL, Cause: err}, 0)
		}
	}

	resp, err := e.fetcher.Fetch(ctx, FetchRequest{
		URL:          pageURL,
		Timeout:      e.cfg.PageTimeout,
		MinBodyBytes: e.cfg.MinBodyBytes,
	})
	if err != nil {
		if _, typed := FetchErrorKindOf(err); !typed && ctx.Err() != nil {
			err = &FetchError{Kind: FetchCanceled, URL: pageURL, Cause: err}
		}
		return e.failed(pageURL, err, len(resp.Body))
	}

	signal := e.extractor.Extract(string(resp.Body), pageURL)
	signal.ResponseTime = resp.Duration.Seconds()
	metrics.ObservePage(pageURL, "success", len(resp.Body))
	e.logger.Debug("page analyzed",
		zap.String("page_url", pageURL),
		zap.Int("word_count", signal.WordCount),
		zap.Duration("duration", resp.Duration),
	)
	return pageOutcome{signal: &signal}
}

func (e *Engine) failed(pageURL string, err error, bodyBytes int) pageOutcome {
	failure := failureFromError(pageURL, err)
	metrics.ObservePage(pageURL, failure.Kind, bodyBytes)
	level := e.logger.Warn
	if errors.Is(err, context.Canceled) || failure.Kind == string(FetchCanceled) {
		level = e.logger.Debug
	}
	level("page skipped",
		zap.String("page_url", pageURL),
		zap.String("kind", failure.Kind),
		zap.Error(err),
	)
	return pageOutcome{failure: &failure}
}

func (s *crawlSession) result(finished time.Time) CrawlResult {
	pages := make([]PageSignal, 0, len(s.outcomes))
	failures := make([]PageFailure, 0)
	for _, o := range s.outcomes {
		switch {
		case o.signal != nil:
			pages = append(pages, *o.signal)
		case o.failure != nil:
			failures = append(failures, *o.failure)
		}
	}
	total := len(s.outcomes)
	stats, issues := Summarize(pages, total)
	return CrawlResult{
		BaseURL:            s.seed,
		BaseDomain:         s.baseDomain,
		DiscoverySource:    s.discovery.Source,
		TotalPagesAnalyzed: total,
		SuccessfulScrapes:  len(pages),
		FailedScrapes:      total - len(pages),
		Pages:              pages,
		Failures:           failures,
		AggregateStats:     stats,
		CriticalIssues:     issues,
		StartedAt:          s.started,
		DurationSeconds:    finished.Sub(s.started).Seconds(),
	}
}

// Summarize folds successful page signals into coverage statistics and
// site-level issues. Percentages are taken over total attempted pages so
// failures show up as lower coverage.
func Summarize(pages []PageSignal, total int) (AggregateStats, []SiteIssue) {
	issues := make([]SiteIssue, 0)
	if total <= 0 {
		return AggregateStats{}, issues
	}
	var withSchema, withViewport, withMeta, words int
	for _, p := range pages {
		if p.SchemaMarkup.Count > 0 {
			withSchema++
		}
		if p.MobileViewport {
			withViewport++
		}
		if p.MetaDescription != nil && *p.MetaDescription != "" {
			withMeta++
		}
		words += p.WordCount
	}
	stats := AggregateStats{
		SchemaCoverage:          percent(withSchema, total),
		MobileOptimization:      percent(withViewport, total),
		MetaDescriptionCoverage: percent(withMeta, total),
	}
	if len(pages) == 0 {
		return stats, issues
	}
	stats.AvgWordCount = float64(words) / float64(len(pages))

	if stats.SchemaCoverage < schemaCoverageThreshold {
		issues = append(issues, SiteIssue{
			Type:     "low_schema_coverage",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("Only %.1f%% of pages have schema markup", stats.SchemaCoverage),
			Impact:   "AI assistants and search engines cannot reliably understand most of the site",
			Fix:      "Add JSON-LD structured data (Organization, LocalBusiness, Product, FAQ) to every key page",
		})
	}
	if missing := len(pages) - withViewport; missing > 0 {
		issues = append(issues, SiteIssue{
			Type:     "missing_viewport",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d pages lack a mobile viewport meta tag", missing),
			Impact:   "Pages render poorly on mobile devices and lose mobile ranking",
			Fix:      `Add <meta name="viewport" content="width=device-width, initial-scale=1"> to every page`,
		})
	}
	if stats.MetaDescriptionCoverage < metaCoverageThreshold {
		issues = append(issues, SiteIssue{
			Type:     "low_meta_description_coverage",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Only %.1f%% of pages have meta descriptions", stats.MetaDescriptionCoverage),
			Impact:   "Search and AI snippets fall back to arbitrary page text",
			Fix:      "Write a unique 120-160 character meta description for each page",
		})
	}
	return stats, issues
}

func percent(n, total int) float64 {
	return math.Round(1000*float64(n)/float64(total)) / 10
}
