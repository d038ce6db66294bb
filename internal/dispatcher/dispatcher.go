// Package dispatcher accepts analysis jobs and fans queued work out to workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
	"github.com/JakeFAU/site-visibility-crawler/internal/worker"
)

// ErrJobFinished is returned when canceling a job that already ended.
var ErrJobFinished = errors.New("job already finished")

// Dispatcher owns job submission and the worker pool.
type Dispatcher struct {
	queue    crawler.Queue
	jobStore crawler.JobStore
	ids      crawler.IDGenerator
	clock    crawler.Clock
	workers  []*worker.Worker
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	workers []*worker.Worker,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    queue,
		jobStore: jobStore,
		ids:      ids,
		clock:    clock,
		workers:  workers,
		logger:   logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit validates req, records a queued job and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, req crawler.CrawlRequest) (crawler.Job, error) {
	if _, err := crawler.ValidateRequest(req); err != nil {
		return crawler.Job{}, err
	}
	id, err := d.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	job := crawler.Job{
		ID:        id,
		Status:    crawler.JobStatusQueued,
		Submitted: now,
		Request:   req,
	}
	if err := d.jobStore.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("create job: %w", err)
	}
	item := crawler.QueueItem{JobID: id, Request: req, Attempt: 1, Submitted: now.Unix()}
	if err := d.Enqueue(ctx, item); err != nil {
		if uerr := d.jobStore.UpdateJobStatus(ctx, id, crawler.JobStatusFailed, err.Error(), crawler.JobCounters{}); uerr != nil {
			d.logger.Error("mark unqueued job failed", zap.String("job_id", id), zap.Error(uerr))
		}
		return crawler.Job{}, err
	}
	metrics.ObserveJob(string(crawler.JobStatusQueued))
	d.logger.Info("job queued", zap.String("job_id", id), zap.String("url", req.URL), zap.Int("max_pages", req.MaxPages))
	return job, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel stops a job. Queued jobs are marked canceled and skipped by
// workers; running jobs are interrupted and marked canceled by their worker.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (crawler.Job, error) {
	job, err := d.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		return job, ErrJobFinished
	}
	for _, w := range d.workers {
		if w.Cancel(jobID) {
			d.logger.Info("running job canceled", zap.String("job_id", jobID))
			return job, nil
		}
	}
	if err := d.jobStore.UpdateJobStatus(ctx, jobID, crawler.JobStatusCanceled, "canceled by request", job.Counters); err != nil {
		return crawler.Job{}, fmt.Errorf("cancel job: %w", err)
	}
	d.logger.Info("queued job canceled", zap.String("job_id", jobID))
	return d.jobStore.GetJob(ctx, jobID)
}
