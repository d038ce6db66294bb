package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/dispatcher"
	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
)

const (
	submitTimeout   = 5 * time.Second
	maxRequestBytes = 1 << 20
)

// Jobs submits and cancels analyses. *dispatcher.Dispatcher satisfies it.
type Jobs interface {
	Submit(ctx context.Context, req crawler.CrawlRequest) (crawler.Job, error)
	Cancel(ctx context.Context, jobID string) (crawler.Job, error)
}

// ReadinessCheck reports whether a downstream dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config controls server behavior.
type Config struct {
	// RequestTimeout bounds every handler. Zero uses 60s.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	jobs     Jobs
	jobStore crawler.JobStore
	scorer   crawler.Scorer
	checks   map[string]ReadinessCheck
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs Jobs,
	jobStore crawler.JobStore,
	scorer crawler.Scorer,
	checks map[string]ReadinessCheck,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		jobs:     jobs,
		jobStore: jobStore,
		scorer:   scorer,
		checks:   checks,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/deep", s.submitDeepAnalysis)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
				r.Post("/cancel", s.cancelJob)
			})
		})
		r.Post("/pages/score", s.scorePage)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failing := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failing", failing))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type deepAnalysisRequest struct {
	URL             string `json:"url"`
	MaxPages        *int   `json:"max_pages"`
	IncludeSubpages *bool  `json:"include_subpages"`
}

// Defaults applied when a deep analysis request omits a field.
const (
	defaultMaxPages        = 10
	defaultIncludeSubpages = true
)

func (req deepAnalysisRequest) toCrawlRequest() crawler.CrawlRequest {
	return crawler.CrawlRequest{
		URL:             req.URL,
		MaxPages:        valueOrDefault(req.MaxPages, defaultMaxPages),
		IncludeSubpages: valueOrDefault(req.IncludeSubpages, defaultIncludeSubpages),
	}
}

func (s *Server) submitDeepAnalysis(w http.ResponseWriter, r *http.Request) {
	var body deepAnalysisRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	job, err := s.jobs.Submit(ctx, body.toCrawlRequest())
	if err != nil {
		switch {
		case errors.Is(err, crawler.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, crawler.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, "analysis queue unavailable")
		default:
			s.logger.Error("submit analysis failed", zap.String("url", body.URL), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to queue analysis")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !job.Status.IsTerminal() {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "analysis not finished", "job": job})
		return
	}
	report, err := s.jobStore.GetReport(r.Context(), job.ID)
	switch {
	case errors.Is(err, crawler.ErrReportNotFound):
		writeJSON(w, http.StatusOK, crawler.JobResult{Job: job})
	case err != nil:
		s.logger.Error("load report failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
	default:
		writeJSON(w, http.StatusOK, crawler.JobResult{Job: job, Report: &report})
	}
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, crawler.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, dispatcher.ErrJobFinished):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job already finished", "status": string(job.Status)})
	case err != nil:
		s.logger.Error("cancel job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
	case job.Status == crawler.JobStatusRunning:
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "canceling"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(job.Status)})
	}
}

func (s *Server) scorePage(w http.ResponseWriter, r *http.Request) {
	var page crawler.PageSignal
	if err := decodeJSON(w, r, &page); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if page.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Score(page))
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (crawler.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
		} else {
			s.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
		}
		return crawler.Job{}, false
	}
	return job, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	return dec.Decode(dst) //nolint:wrapcheck // callers map any decode failure to 400
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
