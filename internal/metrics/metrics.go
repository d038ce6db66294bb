// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerCrawlsTotal            *prometheus.CounterVec
	crawlerCrawlDurationSeconds   prometheus.Histogram
	crawlerDiscoveredPages        *prometheus.HistogramVec
	crawlerPageScore              prometheus.Histogram
	crawlerReportCacheTotal       *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	crawlerJobsTotal              *prometheus.CounterVec
	crawlerActiveWorkers          prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	crawlerRobotsFallbackTotal    *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerCrawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_crawls_total",
				Help: "Total number of site crawls, labeled by outcome (complete, partial, empty).",
			},
			[]string{"outcome"},
		)

		crawlerCrawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_crawl_duration_seconds",
				Help:    "Histogram of whole-site crawl durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		)

		crawlerDiscoveredPages = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_discovered_pages",
				Help:    "Number of URLs produced by discovery, labeled by source.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 50},
			},
			[]string{"source"},
		)

		crawlerPageScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_page_score",
				Help:    "Distribution of rubric page scores.",
				Buckets: []float64{0, 10, 25, 40, 50, 60, 70, 80, 90, 100},
			},
		)

		crawlerReportCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_report_cache_total",
				Help: "Report cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_jobs_total",
				Help: "Total number of analysis jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of per-host pacing wait durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		crawlerRobotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_robots_fallback_total",
				Help: "robots.txt probes answered with allow-all after repeated TLS timeouts.",
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records one page fetch outcome.
func ObservePage(pageURL string, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(pageURL)
	crawlerPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveCrawlResult records a finished site crawl.
func ObserveCrawlResult(_ string, succeeded, failed int, durationSeconds float64) {
	Init()
	outcome := "complete"
	switch {
	case succeeded == 0:
		outcome = "empty"
	case failed > 0:
		outcome = "partial"
	}
	crawlerCrawlsTotal.WithLabelValues(outcome).Inc()
	crawlerCrawlDurationSeconds.Observe(durationSeconds)
}

// ObserveDiscovery records how many URLs discovery produced and from where.
func ObserveDiscovery(source string, count int) {
	Init()
	crawlerDiscoveredPages.WithLabelValues(source).Observe(float64(count))
}

// ObservePageScore records a rubric page score.
func ObservePageScore(score float64) {
	Init()
	crawlerPageScore.Observe(score)
}

// ObserveReportCache records a report cache lookup result.
func ObserveReportCache(result string) {
	Init()
	crawlerReportCacheTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	crawlerJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback(site string) {
	Init()
	crawlerRobotsFallbackTotal.WithLabelValues(SanitizeSite(site)).Inc()
}
