package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-visibility-crawler/internal/scoring"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, 1, cfg.Crawler.Concurrency)
	require.Equal(t, 500*time.Millisecond, cfg.Crawler.RequestDelay)
	require.Equal(t, 30*time.Second, cfg.Crawler.PageTimeout)
	require.Equal(t, 10*time.Second, cfg.Crawler.SitemapTimeout)
	require.Zero(t, cfg.Crawler.CrawlDeadline)
	require.Equal(t, 200, cfg.Crawler.MinBodyBytes)
	require.False(t, cfg.Crawler.RespectRobots)
	require.Equal(t, scoring.DefaultThresholds(), cfg.Scoring)
	require.Equal(t, StorageMemory, cfg.Storage.Backend)
	require.Equal(t, "reports", cfg.Storage.Prefix)
	require.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
crawler:
  workers: 3
  concurrency: 2
  user_agent: audit-bot/1.0
  respect_robots: true
  page_timeout: 12s
  request_delay: 250ms
  crawl_deadline: 2m
scoring:
  meta_max: 155
  critical_weight: 20
storage:
  backend: s3
  s3_bucket: site-reports
  s3_endpoint: http://localhost:9000
  s3_path_style: true
cache:
  redis_addr: localhost:6379
  ttl: 1h
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 3, cfg.Crawler.Workers)
	require.Equal(t, 2, cfg.Crawler.Concurrency)
	require.Equal(t, "audit-bot/1.0", cfg.Crawler.UserAgent)
	require.True(t, cfg.Crawler.RespectRobots)
	require.Equal(t, 12*time.Second, cfg.Crawler.PageTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Crawler.RequestDelay)
	require.Equal(t, 2*time.Minute, cfg.Crawler.CrawlDeadline)
	require.Equal(t, 155, cfg.Scoring.MetaMax)
	require.Equal(t, 50, cfg.Scoring.MetaMin)
	require.InDelta(t, 20.0, cfg.Scoring.CriticalWeight, 1e-9)
	require.Equal(t, StorageS3, cfg.Storage.Backend)
	require.Equal(t, "site-reports", cfg.Storage.S3Bucket)
	require.True(t, cfg.Storage.S3PathStyle)
	require.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	require.Equal(t, time.Hour, cfg.Cache.TTL)
	require.False(t, cfg.Logging.Development)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SITECRAWLER_SERVER_PORT", "7070")
	t.Setenv("SITECRAWLER_CRAWLER_REQUEST_DELAY", "1s")
	t.Setenv("SITECRAWLER_DB_DSN", "postgres://localhost/crawler")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, time.Second, cfg.Crawler.RequestDelay)
	require.Equal(t, "postgres://localhost/crawler", cfg.DB.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Workers: 1, Concurrency: 1, PageTimeout: time.Second},
		Scoring: scoring.DefaultThresholds(),
		Storage: StorageConfig{Backend: StorageMemory},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "no workers", mutate: func(c *Config) { c.Crawler.Workers = 0 }, want: "crawler.workers"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "invalid page timeout", mutate: func(c *Config) { c.Crawler.PageTimeout = 0 }, want: "crawler.page_timeout"},
		{name: "negative delay", mutate: func(c *Config) { c.Crawler.RequestDelay = -time.Second }, want: "crawler.request_delay"},
		{name: "title bounds", mutate: func(c *Config) { c.Scoring.TitleMin = 80 }, want: "scoring.title_min"},
		{name: "meta bounds", mutate: func(c *Config) { c.Scoring.MetaMin = 200 }, want: "scoring.meta_min"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.gcs_bucket"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageS3 }, want: "storage.s3_bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = StorageLocal }, want: "storage.local_dir"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, want: "storage.backend"},
		{
			name:   "pubsub without topic",
			mutate: func(c *Config) { c.PubSub.ProjectID = "proj" },
			want:   "pubsub.topic_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
