package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	queuemem "github.com/JakeFAU/site-visibility-crawler/internal/queue/memory"
	storemem "github.com/JakeFAU/site-visibility-crawler/internal/storage/memory"
	"github.com/JakeFAU/site-visibility-crawler/internal/worker"
)

var validRequest = crawler.CrawlRequest{URL: "https://acme.example/", MaxPages: 5, IncludeSubpages: true}

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(worker.Deps{Queue: queue}, worker.Config{}, zap.NewNop())
	dispatch := New(queue, storemem.NewJobStore(), &seqIDs{}, fixedClock{}, []*worker.Worker{w}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(errorQueue{err: errors.New("boom")}, storemem.NewJobStore(), &seqIDs{}, fixedClock{}, nil, nil)
	err := dispatch.Enqueue(context.Background(), crawler.QueueItem{JobID: "job"})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestDispatcherSubmitQueuesJob(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue(2)
	jobs := storemem.NewJobStore()
	dispatch := New(queue, jobs, &seqIDs{}, fixedClock{}, nil, zap.NewNop())

	job, err := dispatch.Submit(context.Background(), validRequest)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, crawler.JobStatusQueued, job.Status)
	require.Equal(t, fixedClock{}.Now(), job.Submitted)

	stored, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, validRequest, stored.Request)

	item, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", item.JobID)
	require.Equal(t, 1, item.Attempt)
	require.Equal(t, fixedClock{}.Now().Unix(), item.Submitted)
}

func TestDispatcherSubmitRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	dispatch := New(queuemem.NewQueue(1), storemem.NewJobStore(), &seqIDs{}, fixedClock{}, nil, nil)
	for _, req := range []crawler.CrawlRequest{
		{URL: "ftp://acme.example/", MaxPages: 5},
		{URL: "https://acme.example/", MaxPages: 0},
		{URL: "https://acme.example/", MaxPages: 51},
	} {
		_, err := dispatch.Submit(context.Background(), req)
		require.ErrorIs(t, err, crawler.ErrInvalidRequest, "request %+v", req)
	}
}

func TestDispatcherSubmitMarksJobFailedWhenQueueRejects(t *testing.T) {
	t.Parallel()

	jobs := storemem.NewJobStore()
	dispatch := New(errorQueue{err: errors.New("full")}, jobs, &seqIDs{}, fixedClock{}, nil, nil)

	_, err := dispatch.Submit(context.Background(), validRequest)
	require.EqualError(t, err, "queue enqueue: full")

	job, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
	require.Equal(t, "queue enqueue: full", job.ErrorText)
}

func TestDispatcherCancelQueuedJob(t *testing.T) {
	t.Parallel()

	jobs := storemem.NewJobStore()
	dispatch := New(queuemem.NewQueue(2), jobs, &seqIDs{}, fixedClock{}, nil, nil)
	_, err := dispatch.Submit(context.Background(), validRequest)
	require.NoError(t, err)

	job, err := dispatch.Cancel(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCanceled, job.Status)
	require.Equal(t, "canceled by request", job.ErrorText)

	_, err = dispatch.Cancel(context.Background(), "job-1")
	require.ErrorIs(t, err, ErrJobFinished)
}

func TestDispatcherCancelUnknownJob(t *testing.T) {
	t.Parallel()

	dispatch := New(queuemem.NewQueue(1), storemem.NewJobStore(), &seqIDs{}, fixedClock{}, nil, nil)
	_, err := dispatch.Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, crawler.QueueItem) error { return nil }

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.QueueItem{}, ctx.Err()
}

type errorQueue struct {
	err error
}

func (q errorQueue) Enqueue(context.Context, crawler.QueueItem) error { return q.err }

func (q errorQueue) Dequeue(context.Context) (crawler.QueueItem, error) {
	return crawler.QueueItem{}, q.err
}

type seqIDs struct {
	n int
}

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("job-%d", s.n), nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
