// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// DefaultUserAgent identifies the fetcher as a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	defaultTimeout      = 30 * time.Second
	defaultMinBodyBytes = 200
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// RespectRobots makes the collector honor robots.txt before each visit.
	RespectRobots bool
	// Timeout applies when a FetchRequest does not carry its own.
	Timeout time.Duration
	// MinBodyBytes applies when a FetchRequest does not carry its own.
	MinBodyBytes int
	// MaxBodyBytes caps how much of a response is read. Zero keeps colly's default.
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinBodyBytes <= 0 {
		cfg.MinBodyBytes = defaultMinBodyBytes
	}

	c := colly.NewCollector(colly.Async(false))
	// Clones share the visited-URL store; every Fetch is an explicit single visit.
	c.AllowURLRevisit = true
	// Non-2xx responses reach OnResponse so status classification happens here.
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = &robotsAwareTransport{base: transport}
	}
	c.WithTransport(transport)
	// The backend client is shared by every clone, so its timeout is fixed
	// here; per-request timeouts are enforced through the request context.
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Anything other than a 200 response with
// at least MinBodyBytes of body is returned as a *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(fetchCtx, start, &result, &fetchErr)

	if err := f.runCollector(fetchCtx, collector, request.URL, &fetchErr); err != nil {
		return crawler.FetchResponse{URL: request.URL}, classify(ctx, request.URL, err)
	}
	if err := f.validate(request, result); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.Context = ctx

	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:         r.Request.URL.String(),
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) validate(request crawler.FetchRequest, result crawler.FetchResponse) error {
	if result.StatusCode != http.StatusOK {
		return &crawler.FetchError{
			Kind:       crawler.FetchHTTPError,
			URL:        request.URL,
			StatusCode: result.StatusCode,
			BodyBytes:  len(result.Body),
		}
	}
	minBody := request.MinBodyBytes
	if minBody <= 0 {
		minBody = f.cfg.MinBodyBytes
	}
	if len(result.Body) < minBody {
		return &crawler.FetchError{
			Kind:       crawler.FetchTooSmall,
			URL:        request.URL,
			StatusCode: result.StatusCode,
			BodyBytes:  len(result.Body),
		}
	}
	return nil
}

// classify maps a transport failure to a FetchError. parent is the caller's
// context: its cancellation wins over the per-request timeout.
func classify(parent context.Context, rawURL string, err error) error {
	kind := crawler.FetchNetworkError
	var netErr net.Error
	switch {
	case parent.Err() != nil:
		kind = crawler.FetchCanceled
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		kind = crawler.FetchTimeout
	}
	return &crawler.FetchError{Kind: kind, URL: rawURL, Cause: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
