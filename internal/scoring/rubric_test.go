package scoring

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
)

func ptr(s string) *string { return &s }

// healthyPage trips only the unconditional related-content suggestion.
func healthyPage() crawler.PageSignal {
	return crawler.PageSignal{
		URL:             "https://acme.example/",
		Title:           ptr("Acme Plumbing | Emergency Repairs"),
		MetaDescription: ptr(strings.Repeat("m", 120)),
		Headings: crawler.Headings{
			H1: []string{"Emergency Plumbing"},
			H2: []string{"Services"},
			H3: []string{},
		},
		SchemaMarkup: crawler.SchemaMarkup{
			Count:  1,
			JSONLD: []json.RawMessage{json.RawMessage(`{"@type":"FAQPage"}`)},
		},
		ContentText:        "Watch our video. " + strings.Repeat("x", 900),
		Images:             crawler.ImageStats{Count: 3, WithAlt: 3},
		Links:              crawler.LinkStats{Total: 5, Internal: 5},
		InternalLinksCount: 5,
		OGTags:             map[string]string{},
		TwitterTags:        map[string]string{},
	}
}

func types(issues []crawler.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Type)
	}
	return out
}

func TestScoreHealthyPage(t *testing.T) {
	t.Parallel()

	report := New(Thresholds{}).Score(healthyPage())

	require.Empty(t, report.CriticalIssues)
	require.Empty(t, report.Warnings)
	require.Equal(t, []string{SuggestRelatedContent}, types(report.Suggestions))
	require.InDelta(t, 98.0, report.PageScore, 1e-9)
	require.Equal(t, crawler.IssueSummary{SuggestionCount: 1}, report.IssueSummary)
}

func TestScoreFiveCriticals(t *testing.T) {
	t.Parallel()

	page := crawler.PageSignal{
		Title:           ptr("Short"),
		MetaDescription: ptr(""),
		ContentText:     strings.Repeat("a", 120),
		Headings:        crawler.Headings{H1: []string{}, H2: []string{}, H3: []string{}},
	}
	report := New(Thresholds{}).Score(page)

	require.Equal(t, []string{
		IssueMissingTitle,
		IssueMissingMetaDescription,
		IssueThinContent,
		IssueMissingH1,
		IssueMissingSchema,
	}, types(report.CriticalIssues))
	require.Contains(t, report.CriticalIssues[2].Message, "120")

	expected := 100 - 15*5 - 5*float64(len(report.Warnings)) - 2*float64(len(report.Suggestions))
	require.InDelta(t, math.Max(0, expected), report.PageScore, 1e-9)
	require.NotContains(t, types(report.Warnings), IssueShortContent)
}

func TestScoreLongTitleAndMeta(t *testing.T) {
	t.Parallel()

	page := healthyPage()
	page.Title = ptr(strings.Repeat("t", 70))
	page.MetaDescription = ptr(strings.Repeat("m", 170))
	report := New(Thresholds{}).Score(page)

	require.Empty(t, report.CriticalIssues)
	require.Equal(t, []string{IssueLongTitle, IssueLongMetaDescription}, types(report.Warnings))
	n := float64(len(report.Suggestions))
	require.InDelta(t, 100-5*2-2*n, report.PageScore, 1e-9)
}

func TestScoreTriggers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*crawler.PageSignal)
		field  func(crawler.PageIssueReport) []crawler.Issue
		want   string
	}{
		{
			name:   "absent title",
			mutate: func(p *crawler.PageSignal) { p.Title = nil },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.CriticalIssues },
			want:   IssueMissingTitle,
		},
		{
			name:   "absent meta description",
			mutate: func(p *crawler.PageSignal) { p.MetaDescription = nil },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.CriticalIssues },
			want:   IssueMissingMetaDescription,
		},
		{
			name:   "multiple h1",
			mutate: func(p *crawler.PageSignal) { p.Headings.H1 = []string{"a", "b", "c"} },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.CriticalIssues },
			want:   IssueMultipleH1,
		},
		{
			name:   "missing h2",
			mutate: func(p *crawler.PageSignal) { p.Headings.H2 = []string{} },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Warnings },
			want:   IssueMissingH2,
		},
		{
			name:   "missing alt text",
			mutate: func(p *crawler.PageSignal) { p.Images = crawler.ImageStats{Count: 3, WithAlt: 1, WithoutAlt: 2} },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Warnings },
			want:   IssueMissingAltText,
		},
		{
			name:   "short content",
			mutate: func(p *crawler.PageSignal) { p.ContentText = "video " + strings.Repeat("x", 400) },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Warnings },
			want:   IssueShortContent,
		},
		{
			name:   "no faq schema",
			mutate: func(p *crawler.PageSignal) { p.SchemaMarkup.JSONLD = []json.RawMessage{json.RawMessage(`{"@type":"Organization"}`)} },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Suggestions },
			want:   SuggestFAQSchema,
		},
		{
			name:   "few internal links",
			mutate: func(p *crawler.PageSignal) { p.InternalLinksCount = 2 },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Suggestions },
			want:   SuggestInternalLinks,
		},
		{
			name:   "no video",
			mutate: func(p *crawler.PageSignal) { p.ContentText = strings.Repeat("x", 900) },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Suggestions },
			want:   SuggestVideoContent,
		},
		{
			name:   "few images",
			mutate: func(p *crawler.PageSignal) { p.Images = crawler.ImageStats{Count: 1, WithAlt: 1} },
			field:  func(r crawler.PageIssueReport) []crawler.Issue { return r.Suggestions },
			want:   SuggestMoreImages,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := healthyPage()
			tt.mutate(&page)
			report := New(Thresholds{}).Score(page)
			require.Contains(t, types(tt.field(report)), tt.want)
		})
	}
}

func TestScoreSeverityFields(t *testing.T) {
	t.Parallel()

	report := New(Thresholds{}).Score(crawler.PageSignal{})
	for _, issue := range report.CriticalIssues {
		require.Equal(t, crawler.SeverityCritical, issue.Severity)
		require.NotEmpty(t, issue.Impact)
		require.NotEmpty(t, issue.Fix)
	}
	for _, issue := range report.Suggestions {
		require.Equal(t, crawler.SeveritySuggestion, issue.Severity)
		require.NotEmpty(t, issue.Benefit)
		require.NotEmpty(t, issue.Implementation)
	}
}

func TestScoreIsClampedAndCountsMatch(t *testing.T) {
	t.Parallel()

	harsh := New(Thresholds{CriticalWeight: 40})
	report := harsh.Score(crawler.PageSignal{Images: crawler.ImageStats{Count: 1, WithoutAlt: 1}})
	require.Zero(t, report.PageScore)
	require.Equal(t, len(report.CriticalIssues), report.IssueSummary.CriticalCount)
	require.Equal(t, len(report.Warnings), report.IssueSummary.WarningCount)
	require.Equal(t, len(report.Suggestions), report.IssueSummary.SuggestionCount)
}

func TestThresholdsOverride(t *testing.T) {
	t.Parallel()

	r := New(Thresholds{TitleMax: 20})
	require.Equal(t, 20, r.Thresholds().TitleMax)
	require.Equal(t, DefaultThresholds().MetaMax, r.Thresholds().MetaMax)

	page := healthyPage()
	report := r.Score(page)
	require.Contains(t, types(report.Warnings), IssueLongTitle)
}
