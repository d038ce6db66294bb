// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions follow status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Bounds applied to CrawlRequest.MaxPages.
const (
	MinPages = 1
	MaxPages = 50
)

// MaxContentChars caps PageSignal.ContentText, counted in runes.
const MaxContentChars = 2000

// CrawlRequest describes one deep analysis of a site.
type CrawlRequest struct {
	URL             string `json:"url"`
	MaxPages        int    `json:"max_pages"`
	IncludeSubpages bool   `json:"include_subpages"`
}

// Job represents the metadata persisted for each submitted analysis.
type Job struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Request   CrawlRequest `json:"request"`
	Counters  JobCounters  `json:"counters"`
	ReportURI string       `json:"report_uri,omitempty"`
}

// JobCounters tracks page outcomes per job.
type JobCounters struct {
	PagesSucceeded int `json:"pages_succeeded"`
	PagesFailed    int `json:"pages_failed"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Request   CrawlRequest
	Attempt   int
	Submitted int64
}

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	URL          string
	Timeout      time.Duration
	MinBodyBytes int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Headings holds heading texts in document order.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// SchemaMarkup summarizes JSON-LD and microdata found on a page.
type SchemaMarkup struct {
	Count        int               `json:"count"`
	JSONLD       []json.RawMessage `json:"json_ld"`
	Skipped      int               `json:"skipped"`
	HasMicrodata bool              `json:"has_microdata"`
}

// StructuredData flags the schema.org entities detected through microdata.
type StructuredData struct {
	HasLocalBusiness bool `json:"has_local_business"`
	HasOrganization  bool `json:"has_organization"`
	HasProduct       bool `json:"has_product"`
	HasAddress       bool `json:"has_address"`
	HasTelephone     bool `json:"has_telephone"`
}

// ImageStats counts <img> elements by alt text presence.
type ImageStats struct {
	Count      int `json:"count"`
	WithAlt    int `json:"with_alt"`
	WithoutAlt int `json:"without_alt"`
}

// LinkStats counts <a href> elements by destination host.
type LinkStats struct {
	Total    int `json:"total"`
	Internal int `json:"internal"`
	External int `json:"external"`
}

// PageStructure flags the HTML5 landmark elements present on a page.
type PageStructure struct {
	HasHeader   bool `json:"has_header"`
	HasNav      bool `json:"has_nav"`
	HasMain     bool `json:"has_main"`
	HasFooter   bool `json:"has_footer"`
	HasSemantic bool `json:"has_semantic"`
}

// PageSignal is the structured summary of one successfully fetched page.
//
// Optional values are pointers so that "absent" and "empty" stay distinct;
// collections are always non-nil once produced by the extractor.
type PageSignal struct {
	URL                string            `json:"url"`
	Title              *string           `json:"title"`
	MetaDescription    *string           `json:"meta_description"`
	Headings           Headings          `json:"headings"`
	SchemaMarkup       SchemaMarkup      `json:"schema_markup"`
	StructuredData     StructuredData    `json:"structured_data"`
	ContentText        string            `json:"content_text"`
	Images             ImageStats        `json:"images"`
	Links              LinkStats         `json:"links"`
	MobileViewport     bool              `json:"mobile_viewport"`
	PageStructure      PageStructure     `json:"page_structure"`
	WordCount          int               `json:"word_count"`
	InternalLinksCount int               `json:"internal_links_count"`
	ExternalLinksCount int               `json:"external_links_count"`
	CanonicalURL       *string           `json:"canonical_url"`
	OGTags             map[string]string `json:"og_tags"`
	TwitterTags        map[string]string `json:"twitter_tags"`
	ResponseTime       float64           `json:"response_time"`
}

// PageFailure records why a discovered page contributed no signal.
type PageFailure struct {
	URL        string `json:"url"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// AggregateStats holds site-wide coverage percentages.
type AggregateStats struct {
	SchemaCoverage          float64 `json:"schema_coverage"`
	MobileOptimization      float64 `json:"mobile_optimization"`
	MetaDescriptionCoverage float64 `json:"meta_description_coverage"`
	AvgWordCount            float64 `json:"avg_word_count"`
}

// Severity grades an issue.
type Severity string

// Severity levels, most to least urgent.
const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// SiteIssue is a site-wide finding derived from aggregate statistics.
type SiteIssue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Impact   string   `json:"impact"`
	Fix      string   `json:"fix"`
}

// DiscoverySource names where the crawled URL set came from.
type DiscoverySource string

// Discovery sources.
const (
	DiscoverySitemap DiscoverySource = "sitemap"
	DiscoveryLinks   DiscoverySource = "links"
	DiscoverySeed    DiscoverySource = "seed"
)

// Discovery is the ordered URL set produced by a Discoverer.
type Discovery struct {
	URLs   []string
	Source DiscoverySource
}

// CrawlResult aggregates a multi-page crawl of one site.
type CrawlResult struct {
	BaseURL            string          `json:"base_url"`
	BaseDomain         string          `json:"base_domain"`
	DiscoverySource    DiscoverySource `json:"discovery_source"`
	TotalPagesAnalyzed int             `json:"total_pages_analyzed"`
	SuccessfulScrapes  int             `json:"successful_scrapes"`
	FailedScrapes      int             `json:"failed_scrapes"`
	Pages              []PageSignal    `json:"pages"`
	Failures           []PageFailure   `json:"failures"`
	AggregateStats     AggregateStats  `json:"aggregate_stats"`
	CriticalIssues     []SiteIssue     `json:"critical_issues"`
	StartedAt          time.Time       `json:"started_at"`
	DurationSeconds    float64         `json:"duration_seconds"`
}

// Issue is one rubric finding for a page. Critical issues and warnings
// carry Impact/Fix; suggestions carry Benefit/Implementation.
type Issue struct {
	Type           string   `json:"type"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Impact         string   `json:"impact,omitempty"`
	Fix            string   `json:"fix,omitempty"`
	Benefit        string   `json:"benefit,omitempty"`
	Implementation string   `json:"implementation,omitempty"`
}

// IssueSummary counts issues by severity.
type IssueSummary struct {
	CriticalCount   int `json:"critical_count"`
	WarningCount    int `json:"warning_count"`
	SuggestionCount int `json:"suggestion_count"`
}

// PageIssueReport is the rubric output for one page.
type PageIssueReport struct {
	URL            string       `json:"url"`
	CriticalIssues []Issue      `json:"critical_issues"`
	Warnings       []Issue      `json:"warnings"`
	Suggestions    []Issue      `json:"suggestions"`
	PageScore      float64      `json:"page_score"`
	IssueSummary   IssueSummary `json:"issue_summary"`
}

// Report is the full deep-analysis output: the crawl plus per-page scoring.
type Report struct {
	Crawl           CrawlResult       `json:"crawl"`
	PageReports     []PageIssueReport `json:"page_reports"`
	SiteScore       float64           `json:"site_score"`
	Recommendations []string          `json:"recommendations"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job    Job     `json:"job"`
	Report *Report `json:"report,omitempty"`
}
