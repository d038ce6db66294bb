// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/site-visibility-crawler/internal/scoring"
)

// EnvPrefix namespaces environment overrides, e.g. SITECRAWLER_SERVER_PORT.
const EnvPrefix = "SITECRAWLER"

// Blob storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageS3     = "s3"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig       `mapstructure:"server"`
	Crawler CrawlerConfig      `mapstructure:"crawler"`
	Scoring scoring.Thresholds `mapstructure:"scoring"`
	Storage StorageConfig      `mapstructure:"storage"`
	DB      DBConfig           `mapstructure:"db"`
	PubSub  PubSubConfig       `mapstructure:"pubsub"`
	Cache   CacheConfig        `mapstructure:"cache"`
	Logging LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CrawlerConfig governs the crawl engine and the worker pool.
type CrawlerConfig struct {
	// Workers is the number of jobs analyzed in parallel.
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
	// Concurrency is the number of pages fetched in parallel within one crawl.
	Concurrency      int           `mapstructure:"concurrency"`
	UserAgent        string        `mapstructure:"user_agent"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
	RequestDelay     time.Duration `mapstructure:"request_delay"`
	SitemapTimeout   time.Duration `mapstructure:"sitemap_timeout"`
	DiscoveryBudget  time.Duration `mapstructure:"discovery_budget"`
	CrawlDeadline    time.Duration `mapstructure:"crawl_deadline"`
	MinBodyBytes     int           `mapstructure:"min_body_bytes"`
	MaxBodyBytes     int           `mapstructure:"max_body_bytes"`
	MaxChildSitemaps int           `mapstructure:"max_child_sitemaps"`
	MaxContentChars  int           `mapstructure:"max_content_chars"`
}

// StorageConfig selects where JSON reports are archived.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Prefix      string `mapstructure:"prefix"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
}

// DBConfig controls access to the relational database. An empty DSN
// disables the report summary table.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications. An empty
// project disables publishing to Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// CacheConfig configures the Redis report cache. An empty address disables it.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.page_timeout", "30s")
	v.SetDefault("crawler.request_delay", "500ms")
	v.SetDefault("crawler.sitemap_timeout", "10s")
	v.SetDefault("crawler.discovery_budget", "30s")
	v.SetDefault("crawler.crawl_deadline", "0s")
	v.SetDefault("crawler.min_body_bytes", 200)
	v.SetDefault("crawler.max_body_bytes", 10*1024*1024)
	v.SetDefault("crawler.max_child_sitemaps", 5)
	v.SetDefault("crawler.max_content_chars", 2000)

	th := scoring.DefaultThresholds()
	v.SetDefault("scoring.title_min", th.TitleMin)
	v.SetDefault("scoring.title_max", th.TitleMax)
	v.SetDefault("scoring.meta_min", th.MetaMin)
	v.SetDefault("scoring.meta_max", th.MetaMax)
	v.SetDefault("scoring.thin_content", th.ThinContent)
	v.SetDefault("scoring.short_content", th.ShortContent)
	v.SetDefault("scoring.min_internal_links", th.MinInternalLinks)
	v.SetDefault("scoring.min_images", th.MinImages)
	v.SetDefault("scoring.critical_weight", th.CriticalWeight)
	v.SetDefault("scoring.warning_weight", th.WarningWeight)
	v.SetDefault("scoring.suggestion_weight", th.SuggestionWeight)

	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("storage.local_dir", "data")
	// Empty defaults register the keys so environment overrides are seen by Unmarshal.
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_path_style", false)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "site-analyses")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.key_prefix", "sitecrawler:report:")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.PageTimeout <= 0 {
		return fmt.Errorf("crawler.page_timeout must be > 0")
	}
	if c.Crawler.RequestDelay < 0 {
		return fmt.Errorf("crawler.request_delay must be >= 0")
	}
	if c.Scoring.TitleMax > 0 && c.Scoring.TitleMin > c.Scoring.TitleMax {
		return fmt.Errorf("scoring.title_min must not exceed scoring.title_max")
	}
	if c.Scoring.MetaMax > 0 && c.Scoring.MetaMin > c.Scoring.MetaMax {
		return fmt.Errorf("scoring.meta_min must not exceed scoring.meta_max")
	}
	switch c.Storage.Backend {
	case StorageMemory, "":
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs, s3", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}
