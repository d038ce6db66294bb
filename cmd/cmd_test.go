package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/config"
	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

type stubAnalyzer struct {
	report crawler.Report
	err    error
	clock  crawler.Clock
	got    crawler.CrawlRequest
	calls  int
}

func (s *stubAnalyzer) Analyze(_ context.Context, req crawler.CrawlRequest) (crawler.Report, error) {
	s.calls++
	s.got = req
	report := s.report
	report.GeneratedAt = s.clock.Now()
	return report, s.err
}

// useStubs swaps the package factories for the duration of the test. Tests
// using it must not run in parallel.
func useStubs(t *testing.T, stub *stubAnalyzer) {
	t.Helper()
	prevLogger, prevAnalyzer := newLogger, newAnalyzer
	newLogger = func(bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	if stub != nil {
		newAnalyzer = func(_ config.Config, clock crawler.Clock, _ *zap.Logger) analyzer {
			stub.clock = clock
			return stub
		}
	}
	t.Cleanup(func() {
		newLogger, newAnalyzer = prevLogger, prevAnalyzer
	})
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlPrintsReport(t *testing.T) {
	stub := &stubAnalyzer{report: crawler.Report{SiteScore: 72.5}}
	useStubs(t, stub)

	out, err := execute("crawl", "https://example.com", "--max-pages", "3", "--generated-at", "2026-01-02T03:04:05Z")
	require.NoError(t, err)

	require.Equal(t, 1, stub.calls)
	assert.Equal(t, crawler.CrawlRequest{URL: "https://example.com", MaxPages: 3, IncludeSubpages: true}, stub.got)

	var report crawler.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.InDelta(t, 72.5, report.SiteScore, 0.0001)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), report.GeneratedAt)
}

func TestCrawlNoSubpagesFlag(t *testing.T) {
	stub := &stubAnalyzer{}
	useStubs(t, stub)

	_, err := execute("crawl", "https://example.com", "--no-subpages")
	require.NoError(t, err)
	assert.False(t, stub.got.IncludeSubpages)
	assert.Equal(t, 10, stub.got.MaxPages)
}

func TestCrawlWritesOutputFileAndFailsWhenNothingAnalyzed(t *testing.T) {
	stub := &stubAnalyzer{
		report: crawler.Report{Recommendations: []string{"We could not analyze this site."}},
		err:    crawler.ErrNoPagesAnalyzed,
	}
	useStubs(t, stub)
	path := filepath.Join(t.TempDir(), "report.json")

	out, err := execute("crawl", "https://example.com", "--output", path)
	require.ErrorIs(t, err, crawler.ErrNoPagesAnalyzed)
	require.EqualError(t, err, "could not analyze this site")
	assert.Empty(t, out)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "We could not analyze this site.")
}

func TestCrawlRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "non http url", args: []string{"crawl", "ftp://example.com"}, want: "invalid crawl request"},
		{name: "too many pages", args: []string{"crawl", "https://example.com", "--max-pages", "51"}, want: "max_pages must be between 1 and 50"},
		{name: "bad timestamp", args: []string{"crawl", "https://example.com", "--generated-at", "yesterday"}, want: "parse --generated-at"},
		{name: "missing url", args: []string{"crawl"}, want: "accepts 1 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalyzer{}
			useStubs(t, stub)

			_, err := execute(tt.args...)
			require.ErrorContains(t, err, tt.want)
			assert.Zero(t, stub.calls)
		})
	}
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	useStubs(t, &stubAnalyzer{})

	_, err := execute("--config", filepath.Join(t.TempDir(), "missing.yaml"), "crawl", "https://example.com")
	require.ErrorContains(t, err, "load config")
}

func TestCrawlEndToEnd(t *testing.T) {
	useStubs(t, nil)

	body := `<html><head><title>Corner Bakery | Fresh Bread Daily</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="description" content="Family bakery baking sourdough, rye and pastries every morning since 1987 in the heart of town.">
</head><body><header>Corner Bakery</header><main><h1>Fresh bread daily</h1>
<p>` + strings.Repeat("We bake with local flour and patience. ", 20) + `</p></main></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	out, err := execute("crawl", srv.URL, "--no-subpages", "--max-pages", "1")
	require.NoError(t, err)

	var report crawler.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Crawl.SuccessfulScrapes)
	assert.Equal(t, crawler.DiscoverySeed, report.Crawl.DiscoverySource)
	require.Len(t, report.PageReports, 1)
	assert.Greater(t, report.SiteScore, 0.0)
}
