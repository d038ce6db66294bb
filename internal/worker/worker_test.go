package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	queuemem "github.com/JakeFAU/site-visibility-crawler/internal/queue/memory"
	storemem "github.com/JakeFAU/site-visibility-crawler/internal/storage/memory"
)

type harness struct {
	queue     *queuemem.Queue
	jobs      *storemem.JobStore
	blobs     *storemem.BlobStore
	reports   *fakeReportStore
	publisher *fakePublisher
	analyzer  *fakeAnalyzer
	worker    *Worker
}

func newHarness(t *testing.T, analyzer *fakeAnalyzer) *harness {
	t.Helper()
	h := &harness{
		queue:     queuemem.NewQueue(4),
		jobs:      storemem.NewJobStore(),
		blobs:     storemem.NewBlobStore(),
		reports:   &fakeReportStore{},
		publisher: &fakePublisher{},
		analyzer:  analyzer,
	}
	h.worker = New(Deps{
		Queue:       h.queue,
		JobStore:    h.jobs,
		ReportStore: h.reports,
		BlobStore:   h.blobs,
		Publisher:   h.publisher,
		Hasher:      fakeHasher{},
		Clock:       fakeClock{},
		IDs:         fakeIDs{},
		Analyzer:    analyzer,
	}, Config{BlobPrefix: "/reports/", Topic: "analyses"}, zap.NewNop())
	return h
}

func (h *harness) submit(t *testing.T, jobID string) {
	t.Helper()
	req := crawler.CrawlRequest{URL: "https://acme.example/", MaxPages: 5, IncludeSubpages: true}
	require.NoError(t, h.jobs.CreateJob(context.Background(), crawler.Job{ID: jobID, Status: crawler.JobStatusQueued, Request: req}))
	require.NoError(t, h.queue.Enqueue(context.Background(), crawler.QueueItem{JobID: jobID, Request: req}))
}

func (h *harness) status(jobID string) crawler.JobStatus {
	job, err := h.jobs.GetJob(context.Background(), jobID)
	if err != nil {
		return ""
	}
	return job.Status
}

func sampleReport(succeeded, failed int) crawler.Report {
	return crawler.Report{
		Crawl: crawler.CrawlResult{
			BaseURL:            "https://acme.example/",
			BaseDomain:         "https://acme.example",
			DiscoverySource:    crawler.DiscoverySitemap,
			TotalPagesAnalyzed: succeeded + failed,
			SuccessfulScrapes:  succeeded,
			FailedScrapes:      failed,
		},
		SiteScore: 64,
	}
}

func TestWorkerSuccessFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeAnalyzer{report: sampleReport(4, 1)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-success")
	go h.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return h.status("job-success") == crawler.JobStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	job, err := h.jobs.GetJob(ctx, "job-success")
	require.NoError(t, err)
	require.Equal(t, crawler.JobCounters{PagesSucceeded: 4, PagesFailed: 1}, job.Counters)
	require.Equal(t, "memory://reports/job-success/abc123.json", job.ReportURI)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)

	body, contentType, ok := h.blobs.Object("reports/job-success/abc123.json")
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)
	var archived crawler.Report
	require.NoError(t, json.Unmarshal(body, &archived))
	require.InDelta(t, 64.0, archived.SiteScore, 1e-9)

	stored, err := h.jobs.GetReport(ctx, "job-success")
	require.NoError(t, err)
	require.Equal(t, 4, stored.Crawl.SuccessfulScrapes)

	records := h.reports.all()
	require.Len(t, records, 1)
	require.Equal(t, "report-id", records[0].ID)
	require.Equal(t, "job-success", records[0].JobID)
	require.Equal(t, "abc123", records[0].ReportHash)
	require.Equal(t, "sitemap", records[0].DiscoverySource)

	msgs := h.publisher.all()
	require.Len(t, msgs, 1)
	payload, ok := msgs[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "job-success", payload["job_id"])
	require.Equal(t, "memory://reports/job-success/abc123.json", payload["report_uri"])
}

func TestWorkerNoPagesAnalyzedFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeAnalyzer{report: sampleReport(0, 3), err: crawler.ErrNoPagesAnalyzed})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-empty")
	go h.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return h.status("job-empty") == crawler.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := h.jobs.GetJob(ctx, "job-empty")
	require.NoError(t, err)
	require.Equal(t, "could not analyze this site", job.ErrorText)
	require.Equal(t, 3, job.Counters.PagesFailed)
	_, err = h.jobs.GetReport(ctx, "job-empty")
	require.NoError(t, err, "the empty report is still stored")
}

func TestWorkerPublishFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeAnalyzer{report: sampleReport(2, 0)})
	h.publisher.err = errors.New("pubsub down")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-publish")
	go h.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return h.status("job-publish") == crawler.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	job, err := h.jobs.GetJob(ctx, "job-publish")
	require.NoError(t, err)
	require.Contains(t, job.ErrorText, "pubsub down")
}

func TestWorkerSkipsCanceledJob(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{report: sampleReport(1, 0)}
	h := newHarness(t, analyzer)
	h.submit(t, "job-canceled")
	require.NoError(t, h.jobs.UpdateJobStatus(context.Background(), "job-canceled", crawler.JobStatusCanceled, "", crawler.JobCounters{}))

	item, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	h.worker.processJob(context.Background(), item)

	require.Zero(t, analyzer.callCount())
	require.Equal(t, crawler.JobStatusCanceled, h.status("job-canceled"))
}

// cancelAfterLoadStore cancels a job right after handing out its queued
// snapshot, as a concurrent cancel request would.
type cancelAfterLoadStore struct {
	*storemem.JobStore
}

func (s cancelAfterLoadStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	job, err := s.JobStore.GetJob(ctx, jobID)
	if err != nil {
		return job, err
	}
	if err := s.JobStore.UpdateJobStatus(ctx, jobID, crawler.JobStatusCanceled, "canceled by request", job.Counters); err != nil {
		return crawler.Job{}, err
	}
	return job, nil
}

func TestWorkerDoesNotResurrectJobCanceledAfterLoad(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{report: sampleReport(1, 0)}
	h := newHarness(t, analyzer)
	h.worker.deps.JobStore = cancelAfterLoadStore{JobStore: h.jobs}
	h.submit(t, "job-late-cancel")

	item, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	h.worker.processJob(context.Background(), item)

	require.Zero(t, analyzer.callCount())
	job, err := h.jobs.GetJob(context.Background(), "job-late-cancel")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCanceled, job.Status)
	require.Equal(t, "canceled by request", job.ErrorText)
	require.Empty(t, h.blobs.Paths())
}

func TestWorkerCancelRunningJob(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{block: true, started: make(chan struct{})}
	h := newHarness(t, analyzer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.submit(t, "job-running")
	go h.worker.Run(ctx)

	select {
	case <-analyzer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis never started")
	}
	require.True(t, h.worker.Cancel("job-running"))
	require.False(t, h.worker.Cancel("unknown"))

	require.Eventually(t, func() bool {
		return h.status("job-running") == crawler.JobStatusCanceled
	}, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, h.blobs.Paths())
}

func TestWorkerStopsOnClosedQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeAnalyzer{})
	h.queue.Close()
	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on closed queue")
	}
}

func TestWorkerBuildBlobPath(t *testing.T) {
	t.Parallel()

	w := New(Deps{}, Config{}, nil)
	require.Equal(t, "job/hash.json", w.buildBlobPath("job", "hash"))
	w = New(Deps{}, Config{BlobPrefix: "/reports/"}, nil)
	require.Equal(t, "reports/job/hash.json", w.buildBlobPath("job", "hash"))
}

func TestDeriveFinalStatus(t *testing.T) {
	t.Parallel()

	ok := crawler.JobCounters{PagesSucceeded: 1}
	require.Equal(t, crawler.JobStatusCanceled, deriveFinalStatus(true, true, ok))
	require.Equal(t, crawler.JobStatusFailed, deriveFinalStatus(false, false, ok))
	require.Equal(t, crawler.JobStatusFailed, deriveFinalStatus(false, true, crawler.JobCounters{}))
	require.Equal(t, crawler.JobStatusSucceeded, deriveFinalStatus(false, true, ok))
}

type fakeAnalyzer struct {
	report  crawler.Report
	err     error
	block   bool
	started chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ crawler.CrawlRequest) (crawler.Report, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		close(f.started)
		<-ctx.Done()
		return crawler.Report{}, ctx.Err()
	}
	return f.report, f.err
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeReportStore struct {
	mu      sync.Mutex
	records []crawler.ReportRecord
}

func (f *fakeReportStore) StoreReport(_ context.Context, record crawler.ReportRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeReportStore) all() []crawler.ReportRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crawler.ReportRecord(nil), f.records...)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, payload)
	return "msg-1", nil
}

func (p *fakePublisher) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.messages...)
}

type fakeHasher struct{}

func (fakeHasher) Hash([]byte) (string, error) { return "abc123", nil }

type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Unix(100, 0).UTC() }

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) { return "report-id", nil }
