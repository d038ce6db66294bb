// Package redis memoizes finished deep-analysis reports in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// Config controls cache behavior.
type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

const (
	defaultTTL       = 24 * time.Hour
	defaultKeyPrefix = "sitecrawler:report:"
)

// Cache implements crawler.ReportCache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New connects a Cache to the server at cfg.Addr.
func New(cfg Config) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Cache{client: client, ttl: cfg.TTL, prefix: cfg.KeyPrefix}
}

// Key derives the cache key of req. URLs that differ only in case, default
// port, query or fragment share an entry.
func (c *Cache) Key(req crawler.CrawlRequest) string {
	target, err := crawler.DedupKey(req.URL)
	if err != nil {
		target = req.URL
	}
	return fmt.Sprintf("%s%s|max=%d|subpages=%t", c.prefix, target, req.MaxPages, req.IncludeSubpages)
}

// Get returns the cached report for req, if any.
func (c *Cache) Get(ctx context.Context, req crawler.CrawlRequest) (crawler.Report, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(req)).Bytes()
	if errors.Is(err, redis.Nil) {
		return crawler.Report{}, false, nil
	}
	if err != nil {
		return crawler.Report{}, false, fmt.Errorf("redis get failure: %w", err)
	}
	var report crawler.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return crawler.Report{}, false, fmt.Errorf("decode cached report: %w", err)
	}
	return report, true, nil
}

// Set stores report under req's key for the configured TTL.
func (c *Cache) Set(ctx context.Context, req crawler.CrawlRequest, report crawler.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(req), string(body), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failure: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
