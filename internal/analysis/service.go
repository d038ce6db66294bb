// Package analysis runs a deep analysis end to end: crawl, score every page,
// derive the site score and recommendations, and memoize finished reports.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
)

// Crawler is the part of crawler.Engine the service depends on.
type Crawler interface {
	Crawl(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResult, error)
}

// Service produces crawler.Report values.
type Service struct {
	crawler Crawler
	scorer  crawler.Scorer
	cache   crawler.ReportCache
	clock   crawler.Clock
	logger  *zap.Logger
}

// NewService wires a Service. cache may be nil.
func NewService(c Crawler, scorer crawler.Scorer, cache crawler.ReportCache, clock crawler.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{crawler: c, scorer: scorer, cache: cache, clock: clock, logger: logger}
}

// Analyze crawls req.URL and scores it. When no page could be analyzed the
// report is still returned, together with crawler.ErrNoPagesAnalyzed.
func (s *Service) Analyze(ctx context.Context, req crawler.CrawlRequest) (crawler.Report, error) {
	if report, ok := s.cached(ctx, req); ok {
		return report, nil
	}

	result, err := s.crawler.Crawl(ctx, req)
	if err != nil && !errors.Is(err, crawler.ErrNoPagesAnalyzed) {
		return crawler.Report{}, fmt.Errorf("crawl %s: %w", req.URL, err)
	}
	report := s.Build(result)
	if err != nil {
		return report, err
	}

	if s.cache != nil {
		if cerr := s.cache.Set(ctx, req, report); cerr != nil {
			s.logger.Warn("report cache write failed", zap.String("url", req.URL), zap.Error(cerr))
		}
	}
	return report, nil
}

// Build scores every page of result and assembles the report.
func (s *Service) Build(result crawler.CrawlResult) crawler.Report {
	reports := make([]crawler.PageIssueReport, 0, len(result.Pages))
	for _, page := range result.Pages {
		reports = append(reports, s.scorer.Score(page))
	}
	return crawler.Report{
		Crawl:           result,
		PageReports:     reports,
		SiteScore:       SiteScore(reports),
		Recommendations: Recommendations(result.AggregateStats, result.SuccessfulScrapes),
		GeneratedAt:     s.clock.Now(),
	}
}

func (s *Service) cached(ctx context.Context, req crawler.CrawlRequest) (crawler.Report, bool) {
	if s.cache == nil {
		return crawler.Report{}, false
	}
	report, ok, err := s.cache.Get(ctx, req)
	switch {
	case err != nil:
		metrics.ObserveReportCache("error")
		s.logger.Warn("report cache read failed", zap.String("url", req.URL), zap.Error(err))
		return crawler.Report{}, false
	case !ok:
		metrics.ObserveReportCache("miss")
		return crawler.Report{}, false
	}
	metrics.ObserveReportCache("hit")
	return report, true
}

// SiteScore is the mean page score rounded to one decimal, or 0 with no pages.
func SiteScore(reports []crawler.PageIssueReport) float64 {
	if len(reports) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reports {
		sum += r.PageScore
	}
	return math.Round(10*sum/float64(len(reports))) / 10
}
