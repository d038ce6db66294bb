package analysis

import (
	"fmt"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

const thinSiteWordCount = 300

// Recommendations renders site-wide advice from aggregate coverage. The
// output depends only on its inputs.
func Recommendations(stats crawler.AggregateStats, analyzedPages int) []string {
	recs := make([]string, 0, 5)
	if analyzedPages == 0 {
		return append(recs, "We could not analyze this site. Check that it is online and reachable without a login.")
	}
	if stats.SchemaCoverage < 100 {
		recs = append(recs, fmt.Sprintf(
			"Add JSON-LD schema markup: only %.1f%% of pages describe the business in a machine-readable way.",
			stats.SchemaCoverage))
	}
	if stats.MobileOptimization < 100 {
		recs = append(recs, fmt.Sprintf(
			"Make every page mobile friendly: %.1f%% of pages declare a responsive viewport.",
			stats.MobileOptimization))
	}
	if stats.MetaDescriptionCoverage < 100 {
		recs = append(recs, fmt.Sprintf(
			"Write a unique meta description for each page: %.1f%% of pages currently have one.",
			stats.MetaDescriptionCoverage))
	}
	if stats.AvgWordCount < thinSiteWordCount {
		recs = append(recs, fmt.Sprintf(
			"Expand page content: pages average %.0f words, below the %d words AI assistants need to cite a source.",
			stats.AvgWordCount, thinSiteWordCount))
	}
	recs = append(recs, "Publish an FAQ page answering the questions customers ask most, marked up with FAQPage schema.")
	return recs
}
