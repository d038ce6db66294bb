package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore persists job metadata and finished reports. A transition to
// JobStatusRunning must only succeed from JobStatusQueued; otherwise
// UpdateJobStatus returns ErrJobNotQueued.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	SaveReport(ctx context.Context, jobID string, report Report, reportURI string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	GetReport(ctx context.Context, jobID string) (Report, error)
}

// ReportStore records a summary row per finished analysis (e.g. Postgres).
type ReportStore interface {
	StoreReport(ctx context.Context, record ReportRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ReportCache memoizes finished reports keyed by request.
type ReportCache interface {
	Get(ctx context.Context, req CrawlRequest) (Report, bool, error)
	Set(ctx context.Context, req CrawlRequest, report Report) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns an HTML document into a PageSignal.
type Extractor interface {
	Extract(html string, pageURL string) PageSignal
}

// Discoverer produces the ordered set of same-site URLs to crawl.
type Discoverer interface {
	Discover(ctx context.Context, startURL, baseDomain string, maxPages int) Discovery
}

// Scorer runs the page issue rubric.
type Scorer interface {
	Score(page PageSignal) PageIssueReport
}

// Pacer spaces out requests to the same host.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Queue provides enqueue/dequeue semantics for analysis jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// ReportRecord is the relational summary of one finished analysis.
type ReportRecord struct {
	ID                      string
	JobID                   string
	BaseURL                 string
	BaseDomain              string
	DiscoverySource         string
	PagesAnalyzed           int
	PagesSucceeded          int
	PagesFailed             int
	SchemaCoverage          float64
	MobileOptimization      float64
	MetaDescriptionCoverage float64
	AvgWordCount            float64
	SiteScore               float64
	SiteIssues              []SiteIssue
	ReportURI               string
	ReportHash              string
	CreatedAt               time.Time
}
