// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/analysis"
	"github.com/JakeFAU/site-visibility-crawler/internal/api"
	rediscache "github.com/JakeFAU/site-visibility-crawler/internal/cache/redis"
	"github.com/JakeFAU/site-visibility-crawler/internal/clock/system"
	"github.com/JakeFAU/site-visibility-crawler/internal/config"
	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/discovery"
	"github.com/JakeFAU/site-visibility-crawler/internal/dispatcher"
	"github.com/JakeFAU/site-visibility-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/site-visibility-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/site-visibility-crawler/internal/hash/sha256"
	"github.com/JakeFAU/site-visibility-crawler/internal/id/uuid"
	"github.com/JakeFAU/site-visibility-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/site-visibility-crawler/internal/policy/simple"
	memorypublisher "github.com/JakeFAU/site-visibility-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/site-visibility-crawler/internal/publisher/pubsub"
	memoryqueue "github.com/JakeFAU/site-visibility-crawler/internal/queue/memory"
	"github.com/JakeFAU/site-visibility-crawler/internal/scoring"
	gcsstore "github.com/JakeFAU/site-visibility-crawler/internal/storage/gcs"
	localstore "github.com/JakeFAU/site-visibility-crawler/internal/storage/local"
	memorystore "github.com/JakeFAU/site-visibility-crawler/internal/storage/memory"
	postgresstore "github.com/JakeFAU/site-visibility-crawler/internal/storage/postgres"
	s3store "github.com/JakeFAU/site-visibility-crawler/internal/storage/s3"
	"github.com/JakeFAU/site-visibility-crawler/internal/worker"
)

const readHeaderTimeout = 5 * time.Second

// App holds all the shared, long-lived services of the HTTP service: the
// analysis pipeline, the job queue and workers, the configured stores and the
// API router. It is built once at startup by New.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	analyzer   *analysis.Service
	queue      *memoryqueue.Queue
	jobStore   *memorystore.JobStore
	blobStore  crawler.BlobStore
	publisher  crawler.Publisher
	dispatcher *dispatcher.Dispatcher
	server     *api.Server
	closers    []closer
}

type closer struct {
	name string
	fn   func() error
}

// Pipeline is the crawl and scoring stack shared by the service and the CLI.
type Pipeline struct {
	Engine   *crawler.Engine
	Scorer   *scoring.Rubric
	Analyzer *analysis.Service
}

// NewPipeline wires fetcher, pacer, discovery, extraction, the crawl engine,
// the rubric and the analysis service. cache and clock may be nil.
func NewPipeline(cfg config.Config, cache crawler.ReportCache, clock crawler.Clock, logger *zap.Logger) Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	c := cfg.Crawler
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     c.UserAgent,
		RespectRobots: c.RespectRobots,
		Timeout:       c.PageTimeout,
		MinBodyBytes:  c.MinBodyBytes,
		MaxBodyBytes:  c.MaxBodyBytes,
	})
	pacer := ratelimit.New(ratelimit.Config{MinDelay: c.RequestDelay})
	discoverer := discovery.New(fetcher, pacer, simple.New(), discovery.Config{
		SitemapTimeout:   c.SitemapTimeout,
		PageTimeout:      c.PageTimeout,
		MinBodyBytes:     c.MinBodyBytes,
		MaxChildSitemaps: c.MaxChildSitemaps,
	}, logger.Named("discovery"))
	engine := crawler.NewEngine(
		discoverer,
		fetcher,
		extract.New(extract.Config{MaxContentChars: c.MaxContentChars}),
		pacer,
		clock,
		crawler.EngineConfig{
			PageTimeout:     c.PageTimeout,
			RequestDelay:    c.RequestDelay,
			DiscoveryBudget: c.DiscoveryBudget,
			CrawlDeadline:   c.CrawlDeadline,
			MinBodyBytes:    c.MinBodyBytes,
			Concurrency:     c.Concurrency,
		},
		logger.Named("engine"),
	)
	scorer := scoring.New(cfg.Scoring)
	return Pipeline{
		Engine:   engine,
		Scorer:   scorer,
		Analyzer: analysis.NewService(engine, scorer, cache, clock, logger.Named("analysis")),
	}
}

// New creates and initializes an App from cfg. It fails fast when a
// configured backend cannot be reached; anything opened before the failure is
// closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Info("initializing application services",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("workers", cfg.Crawler.Workers),
	)
	checks := map[string]api.ReadinessCheck{}

	var cache crawler.ReportCache
	if cfg.Cache.RedisAddr != "" {
		rc := rediscache.New(rediscache.Config{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		a.addCloser("redis", rc.Close)
		checks["redis"] = rc.Ping
		cache = rc
		a.logger.Info("report cache enabled", zap.String("addr", cfg.Cache.RedisAddr))
	}
	clock := system.New()
	pipeline := NewPipeline(cfg, cache, clock, a.logger)
	a.analyzer = pipeline.Analyzer

	blobStore, err := a.buildBlobStore(ctx)
	if err != nil {
		return err
	}
	a.blobStore = blobStore

	var reportStore crawler.ReportStore
	if cfg.DB.DSN != "" {
		store, err := postgresstore.NewReportStore(ctx, postgresstore.ReportStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init report store: %w", err)
		}
		a.addCloser("postgres", func() error {
			store.Close()
			return nil
		})
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure report schema: %w", err)
		}
		checks["postgres"] = store.Ping
		reportStore = store
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return err
	}
	a.publisher = publisher

	a.queue = memoryqueue.NewQueue(cfg.Crawler.QueueDepth)
	a.jobStore = memorystore.NewJobStore()
	ids := uuid.New()

	workers := make([]*worker.Worker, 0, cfg.Crawler.Workers)
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(worker.Deps{
			Queue:       a.queue,
			JobStore:    a.jobStore,
			ReportStore: reportStore,
			BlobStore:   a.blobStore,
			Publisher:   a.publisher,
			Hasher:      sha256.New(),
			Clock:       clock,
			IDs:         ids,
			Analyzer:    a.analyzer,
		}, worker.Config{
			BlobPrefix: cfg.Storage.Prefix,
			Topic:      cfg.PubSub.TopicName,
		}, a.logger.Named("worker").With(zap.Int("worker", i))))
	}
	a.dispatcher = dispatcher.New(a.queue, a.jobStore, ids, clock, workers, a.logger.Named("dispatcher"))
	a.server = api.NewServer(
		a.dispatcher,
		a.jobStore,
		pipeline.Scorer,
		checks,
		api.Config{RequestTimeout: cfg.Server.RequestTimeout},
		a.logger.Named("api"),
	)
	a.logger.Info("application services initialized")
	return nil
}

func (a *App) buildBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case "", config.StorageMemory:
		return memorystore.NewBlobStore(), nil
	case config.StorageLocal:
		store, err := localstore.New(localstore.Config{BaseDir: sc.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	case config.StorageGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.addCloser("gcs", client.Close)
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: sc.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return store, nil
	case config.StorageS3:
		store, err := s3store.New(ctx, s3store.Config{
			Bucket:       sc.S3Bucket,
			Region:       sc.S3Region,
			Endpoint:     sc.S3Endpoint,
			UsePathStyle: sc.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), nil
	}
	p, err := pubsubpublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.addCloser("pubsub", p.Close)
	a.logger.Info("publishing completion events",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return p, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Analyzer exposes the analysis service.
func (a *App) Analyzer() *analysis.Service {
	return a.analyzer
}

// Dispatcher exposes the job dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// JobStore exposes the job store backing the API.
func (a *App) JobStore() crawler.JobStore {
	return a.jobStore
}

// BlobStore exposes the configured report artifact store.
func (a *App) BlobStore() crawler.BlobStore {
	return a.blobStore
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Serve runs the workers and the HTTP server on addr until ctx is done, then
// drains in-flight requests within the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.dispatcher.Run(runCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var result error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			result = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown incomplete", zap.Error(err))
	}
	a.queue.Close()
	stopWorkers()
	<-workersDone
	a.logger.Info("server stopped")
	return result
}

// Close releases every backend client in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing backend", zap.String("backend", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
