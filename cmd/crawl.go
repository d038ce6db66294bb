package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-visibility-crawler/internal/app"
	"github.com/JakeFAU/site-visibility-crawler/internal/clock/system"
	"github.com/JakeFAU/site-visibility-crawler/internal/config"
	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

// analyzer is the part of analysis.Service the crawl command uses.
type analyzer interface {
	Analyze(ctx context.Context, req crawler.CrawlRequest) (crawler.Report, error)
}

// newAnalyzer builds the crawl pipeline. It is a variable so tests can swap
// in a canned analyzer.
var newAnalyzer = func(cfg config.Config, clock crawler.Clock, logger *zap.Logger) analyzer {
	return app.NewPipeline(cfg, nil, clock, logger).Analyzer
}

type crawlOptions struct {
	maxPages    int
	noSubpages  bool
	output      string
	generatedAt string
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one deep analysis in
// process and prints the report as JSON.
func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Analyzes one site and prints the report",
		Long: `Discovers and fetches up to --max-pages pages of the site at <url>, scores
each one and writes the JSON report to stdout or --output. The command exits
non-zero when no page could be analyzed, after still writing the report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args[0], opts)
		},
	}
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 10,
		fmt.Sprintf("pages to analyze (%d-%d)", crawler.MinPages, crawler.MaxPages))
	cmd.Flags().BoolVar(&opts.noSubpages, "no-subpages", false, "analyze only the start page")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.generatedAt, "generated-at", "",
		"RFC 3339 timestamp stamped on the report instead of the current time")
	return cmd
}

func runCrawl(cmd *cobra.Command, rawURL string, opts crawlOptions) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}

	var clock crawler.Clock = system.New()
	if opts.generatedAt != "" {
		at, err := time.Parse(time.RFC3339, opts.generatedAt)
		if err != nil {
			return fmt.Errorf("parse --generated-at: %w", err)
		}
		clock = system.Fixed{At: at}
	}

	req := crawler.CrawlRequest{
		URL:             rawURL,
		MaxPages:        opts.maxPages,
		IncludeSubpages: !opts.noSubpages,
	}
	if _, err := crawler.ValidateRequest(req); err != nil {
		return err
	}

	report, analyzeErr := newAnalyzer(e.cfg, clock, e.logger).Analyze(cmd.Context(), req)
	if analyzeErr != nil && !errors.Is(analyzeErr, crawler.ErrNoPagesAnalyzed) {
		return analyzeErr
	}
	if err := writeReport(cmd.OutOrStdout(), opts.output, report); err != nil {
		return err
	}
	if analyzeErr != nil {
		return analyzeErr
	}
	e.logger.Info("crawl command finished",
		zap.String("url", rawURL),
		zap.Float64("site_score", report.SiteScore),
		zap.Int("pages_succeeded", report.Crawl.SuccessfulScrapes),
	)
	return nil
}

func writeReport(stdout io.Writer, path string, report crawler.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report to %s: %w", path, err)
	}
	return nil
}
