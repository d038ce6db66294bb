// Package postgres records analysis summaries in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

const defaultTable = "site_reports"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ReportStoreConfig controls the Postgres connection pool used for report rows.
type ReportStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// ReportStore writes one summary row per finished analysis. It implements
// crawler.ReportStore.
type ReportStore struct {
	pool  pool
	table string
}

// NewReportStore creates a Postgres-backed ReportStore using the provided config.
func NewReportStore(ctx context.Context, cfg ReportStoreConfig) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewReportStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewReportStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReportStoreWithPool(p pool, table string) (*ReportStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ReportStore{pool: p, table: table}, nil
}

// EnsureSchema creates the report table when it does not exist.
func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id                        TEXT PRIMARY KEY,
	job_id                    TEXT NOT NULL,
	base_url                  TEXT NOT NULL,
	base_domain               TEXT NOT NULL,
	discovery_source          TEXT NOT NULL,
	pages_analyzed            INTEGER NOT NULL,
	pages_succeeded           INTEGER NOT NULL,
	pages_failed              INTEGER NOT NULL,
	schema_coverage           DOUBLE PRECISION NOT NULL,
	mobile_optimization       DOUBLE PRECISION NOT NULL,
	meta_description_coverage DOUBLE PRECISION NOT NULL,
	avg_word_count            DOUBLE PRECISION NOT NULL,
	site_score                DOUBLE PRECISION NOT NULL,
	site_issues               JSONB NOT NULL,
	report_uri                TEXT NOT NULL,
	report_hash               TEXT NOT NULL,
	created_at                TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StoreReport inserts a report row. Re-storing the same ID is a no-op.
func (s *ReportStore) StoreReport(ctx context.Context, record crawler.ReportRecord) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	issues := record.SiteIssues
	if issues == nil {
		issues = []crawler.SiteIssue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("marshal site issues: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	job_id,
	base_url,
	base_domain,
	discovery_source,
	pages_analyzed,
	pages_succeeded,
	pages_failed,
	schema_coverage,
	mobile_optimization,
	meta_description_coverage,
	avg_word_count,
	site_score,
	site_issues,
	report_uri,
	report_hash,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (id) DO NOTHING`, s.table)

	args := []any{
		record.ID,
		record.JobID,
		record.BaseURL,
		record.BaseDomain,
		record.DiscoverySource,
		record.PagesAnalyzed,
		record.PagesSucceeded,
		record.PagesFailed,
		record.SchemaCoverage,
		record.MobileOptimization,
		record.MetaDescriptionCoverage,
		record.AvgWordCount,
		record.SiteScore,
		issuesJSON,
		record.ReportURI,
		record.ReportHash,
		record.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *ReportStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ReportStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
