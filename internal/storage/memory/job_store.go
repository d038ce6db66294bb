package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]crawler.Job
	reports map[string]crawler.Report
	now     func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]crawler.Job),
		reports: make(map[string]crawler.Report),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. Started and
// Finished are stamped on the first running and terminal transitions. Only a
// queued job may move to running.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if status == crawler.JobStatusRunning && job.Status != crawler.JobStatusQueued {
		return fmt.Errorf("%w: %s is %s", crawler.ErrJobNotQueued, jobID, job.Status)
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// SaveReport stores the finished report for a job.
func (s *JobStore) SaveReport(_ context.Context, jobID string, report crawler.Report, reportURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	job.ReportURI = reportURI
	s.jobs[jobID] = job
	s.reports[jobID] = report
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	return job, nil
}

// GetReport returns the stored report for a job.
func (s *JobStore) GetReport(_ context.Context, jobID string) (crawler.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return crawler.Report{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	report, ok := s.reports[jobID]
	if !ok {
		return crawler.Report{}, fmt.Errorf("%w: %s", crawler.ErrReportNotFound, jobID)
	}
	return report, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
