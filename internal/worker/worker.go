// Package worker executes queued deep analyses and persists their reports.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
)

const reportContentType = "application/json"

// Analyzer runs one deep analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req crawler.CrawlRequest) (crawler.Report, error)
}

// Config controls Worker behavior.
type Config struct {
	BlobPrefix string
	Topic      string
}

// Deps groups the collaborators of a Worker. ReportStore, BlobStore and
// Publisher are optional.
type Deps struct {
	Queue       crawler.Queue
	JobStore    crawler.JobStore
	ReportStore crawler.ReportStore
	BlobStore   crawler.BlobStore
	Publisher   crawler.Publisher
	Hasher      crawler.Hasher
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
	Analyzer    Analyzer
}

// Worker consumes queue items and runs the analysis pipeline.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

// Cancel stops the job if this worker is running it.
func (w *Worker) Cancel(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, ok := w.running[jobID]
	if ok {
		cancel()
	}
	return ok
}

func (w *Worker) track(ctx context.Context, jobID string) (context.Context, func()) {
	jobCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.running[jobID] = cancel
	w.mu.Unlock()
	return jobCtx, func() {
		w.mu.Lock()
		delete(w.running, jobID)
		w.mu.Unlock()
		cancel()
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("url", item.Request.URL))

	job, err := w.deps.JobStore.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.Status == crawler.JobStatusCanceled {
		logger.Info("skipping canceled job")
		metrics.ObserveJob(string(crawler.JobStatusCanceled))
		return
	}

	jobCtx, done := w.track(ctx, item.JobID)
	if err := w.deps.JobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", crawler.JobCounters{}); err != nil {
		done()
		if errors.Is(err, crawler.ErrJobNotQueued) {
			logger.Info("skipping job that left the queue", zap.Error(err))
			metrics.ObserveJob(string(crawler.JobStatusCanceled))
			return
		}
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	report, analyzeErr := w.deps.Analyzer.Analyze(jobCtx, item.Request)
	canceled := jobCtx.Err() != nil
	done()

	counters := crawler.JobCounters{
		PagesSucceeded: report.Crawl.SuccessfulScrapes,
		PagesFailed:    report.Crawl.FailedScrapes,
	}
	errText := ""
	persisted := false
	hasReport := analyzeErr == nil || errors.Is(analyzeErr, crawler.ErrNoPagesAnalyzed)
	if analyzeErr != nil {
		errText = analyzeErr.Error()
		logger.Warn("analysis finished with error", zap.Error(analyzeErr))
	}
	if hasReport && !canceled {
		if err := w.persist(ctx, item, report); err != nil {
			logger.Error("persist report failed", zap.Error(err))
			errText = err.Error()
		} else {
			persisted = true
		}
	}

	status := deriveFinalStatus(canceled, persisted, counters)
	// The job context may be gone; the final status still has to land.
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.deps.JobStore.UpdateJobStatus(statusCtx, item.JobID, status, errText, counters); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(status))
	logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("pages_succeeded", counters.PagesSucceeded),
		zap.Int("pages_failed", counters.PagesFailed),
	)
}

func (w *Worker) persist(ctx context.Context, item crawler.QueueItem, report crawler.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	hash, err := w.deps.Hasher.Hash(body)
	if err != nil {
		return fmt.Errorf("hash report: %w", err)
	}

	uri := ""
	if w.deps.BlobStore != nil {
		uri, err = w.deps.BlobStore.PutObject(ctx, w.buildBlobPath(item.JobID, hash), reportContentType, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("put object: %w", err)
		}
	}
	if err := w.deps.JobStore.SaveReport(ctx, item.JobID, report, uri); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if err := w.recordSummary(ctx, item.JobID, report, uri, hash); err != nil {
		return err
	}
	return w.publishResult(ctx, item.JobID, report, uri, hash)
}

func (w *Worker) recordSummary(ctx context.Context, jobID string, report crawler.Report, uri, hash string) error {
	if w.deps.ReportStore == nil {
		return nil
	}
	id := jobID
	if w.deps.IDs != nil {
		generated, err := w.deps.IDs.NewID()
		if err != nil {
			return fmt.Errorf("generate report id: %w", err)
		}
		id = generated
	}
	c := report.Crawl
	record := crawler.ReportRecord{
		ID:                      id,
		JobID:                   jobID,
		BaseURL:                 c.BaseURL,
		BaseDomain:              c.BaseDomain,
		DiscoverySource:         string(c.DiscoverySource),
		PagesAnalyzed:           c.TotalPagesAnalyzed,
		PagesSucceeded:          c.SuccessfulScrapes,
		PagesFailed:             c.FailedScrapes,
		SchemaCoverage:          c.AggregateStats.SchemaCoverage,
		MobileOptimization:      c.AggregateStats.MobileOptimization,
		MetaDescriptionCoverage: c.AggregateStats.MetaDescriptionCoverage,
		AvgWordCount:            c.AggregateStats.AvgWordCount,
		SiteScore:               report.SiteScore,
		SiteIssues:              c.CriticalIssues,
		ReportURI:               uri,
		ReportHash:              hash,
		CreatedAt:               w.deps.Clock.Now(),
	}
	if err := w.deps.ReportStore.StoreReport(ctx, record); err != nil {
		return fmt.Errorf("store report record: %w", err)
	}
	return nil
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, jobID, hash)
}

func (w *Worker) publishResult(ctx context.Context, jobID string, report crawler.Report, uri, hash string) error {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return nil
	}
	payload := map[string]any{
		"job_id":          jobID,
		"url":             report.Crawl.BaseURL,
		"report_uri":      uri,
		"hash":            hash,
		"site_score":      report.SiteScore,
		"pages_succeeded": report.Crawl.SuccessfulScrapes,
		"pages_failed":    report.Crawl.FailedScrapes,
		"timestamp":       w.deps.Clock.Now().Format(time.RFC3339),
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

// deriveFinalStatus fails jobs that analyzed no page even when their report
// was stored, so callers see the "could not analyze" outcome.
func deriveFinalStatus(canceled, persisted bool, counters crawler.JobCounters) crawler.JobStatus {
	switch {
	case canceled:
		return crawler.JobStatusCanceled
	case !persisted, counters.PagesSucceeded == 0:
		return crawler.JobStatusFailed
	default:
		return crawler.JobStatusSucceeded
	}
}
