// Package scoring implements the per-page issue rubric and page score.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/site-visibility-crawler/internal/crawler"
	"github.com/JakeFAU/site-visibility-crawler/internal/metrics"
)

// Issue type identifiers. Downstream consumers key off these values.
const (
	IssueMissingTitle           = "missing_title"
	IssueMissingMetaDescription = "missing_meta_description"
	IssueThinContent            = "thin_content"
	IssueMissingH1              = "missing_h1"
	IssueMultipleH1             = "multiple_h1"
	IssueMissingSchema          = "missing_schema"

	IssueLongTitle           = "long_title"
	IssueLongMetaDescription = "long_meta_description"
	IssueMissingH2           = "missing_h2"
	IssueMissingAltText      = "missing_alt_text"
	IssueShortContent        = "short_content"

	SuggestFAQSchema      = "add_faq_schema"
	SuggestInternalLinks  = "add_internal_links"
	SuggestVideoContent   = "add_video_content"
	SuggestMoreImages     = "add_more_images"
	SuggestRelatedContent = "add_related_content"
)

// Thresholds are the tunable bounds and weights of the rubric. Lengths are
// counted in characters (runes).
type Thresholds struct {
	TitleMin         int     `mapstructure:"title_min"`
	TitleMax         int     `mapstructure:"title_max"`
	MetaMin          int     `mapstructure:"meta_min"`
	MetaMax          int     `mapstructure:"meta_max"`
	ThinContent      int     `mapstructure:"thin_content"`
	ShortContent     int     `mapstructure:"short_content"`
	MinInternalLinks int     `mapstructure:"min_internal_links"`
	MinImages        int     `mapstructure:"min_images"`
	CriticalWeight   float64 `mapstructure:"critical_weight"`
	WarningWeight    float64 `mapstructure:"warning_weight"`
	SuggestionWeight float64 `mapstructure:"suggestion_weight"`
}

// DefaultThresholds returns the stock rubric tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TitleMin:         10,
		TitleMax:         60,
		MetaMin:          50,
		MetaMax:          160,
		ThinContent:      300,
		ShortContent:     800,
		MinInternalLinks: 3,
		MinImages:        2,
		CriticalWeight:   15,
		WarningWeight:    5,
		SuggestionWeight: 2,
	}
}

// withDefaults fills zero-valued fields from DefaultThresholds.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	fillInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fillFloat := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	fillInt(&t.TitleMin, d.TitleMin)
	fillInt(&t.TitleMax, d.TitleMax)
	fillInt(&t.MetaMin, d.MetaMin)
	fillInt(&t.MetaMax, d.MetaMax)
	fillInt(&t.ThinContent, d.ThinContent)
	fillInt(&t.ShortContent, d.ShortContent)
	fillInt(&t.MinInternalLinks, d.MinInternalLinks)
	fillInt(&t.MinImages, d.MinImages)
	fillFloat(&t.CriticalWeight, d.CriticalWeight)
	fillFloat(&t.WarningWeight, d.WarningWeight)
	fillFloat(&t.SuggestionWeight, d.SuggestionWeight)
	return t
}

// Rubric scores pages. It holds no mutable state and is safe for concurrent use.
type Rubric struct {
	th Thresholds
}

// New builds a Rubric. Zero-valued thresholds fall back to the defaults.
func New(th Thresholds) *Rubric {
	return &Rubric{th: th.withDefaults()}
}

// Thresholds returns the effective tuning.
func (r *Rubric) Thresholds() Thresholds {
	return r.th
}

// Score evaluates every rule against page and derives the page score.
func (r *Rubric) Score(page crawler.PageSignal) crawler.PageIssueReport {
	report := crawler.PageIssueReport{
		URL:            page.URL,
		CriticalIssues: r.critical(page),
		Warnings:       r.warnings(page),
		Suggestions:    r.suggestions(page),
	}
	report.IssueSummary = crawler.IssueSummary{
		CriticalCount:   len(report.CriticalIssues),
		WarningCount:    len(report.Warnings),
		SuggestionCount: len(report.Suggestions),
	}
	report.PageScore = r.pageScore(report.IssueSummary)
	metrics.ObservePageScore(report.PageScore)
	return report
}

func (r *Rubric) pageScore(s crawler.IssueSummary) float64 {
	score := 100 -
		r.th.CriticalWeight*float64(s.CriticalCount) -
		r.th.WarningWeight*float64(s.WarningCount) -
		r.th.SuggestionWeight*float64(s.SuggestionCount)
	return math.Max(0, math.Min(100, score))
}

func (r *Rubric) critical(page crawler.PageSignal) []crawler.Issue {
	issues := make([]crawler.Issue, 0)
	titleLen := optionalLen(page.Title)
	metaLen := optionalLen(page.MetaDescription)
	contentLen := utf8.RuneCountInString(page.ContentText)

	if page.Title == nil || titleLen < r.th.TitleMin {
		msg := "Page has no title tag"
		if page.Title != nil {
			msg = fmt.Sprintf("Title is too short (%d characters)", titleLen)
		}
		issues = append(issues, critical(IssueMissingTitle, msg,
			"Search engines and AI assistants cannot tell what this page is about",
			fmt.Sprintf("Write a descriptive %d-%d character title that names the business and service",
				r.th.TitleMin, r.th.TitleMax),
		))
	}
	if metaLen < r.th.MetaMin {
		msg := "Page has no meta description"
		if metaLen > 0 {
			msg = fmt.Sprintf("Meta description is too short (%d characters)", metaLen)
		}
		issues = append(issues, critical(IssueMissingMetaDescription, msg,
			"Search results and AI summaries fall back to arbitrary page text",
			fmt.Sprintf("Add a %d-%d character meta description summarizing the page", r.th.MetaMin, r.th.MetaMax),
		))
	}
	if contentLen < r.th.ThinContent {
		issues = append(issues, critical(IssueThinContent,
			fmt.Sprintf("Page has only %d characters of content", contentLen),
			"Thin pages rarely rank and give AI assistants nothing to quote",
			fmt.Sprintf("Expand the page to at least %d characters of useful, specific text", r.th.ShortContent),
		))
	}
	switch h1 := len(page.Headings.H1); {
	case h1 == 0:
		issues = append(issues, critical(IssueMissingH1, "Page has no H1 heading",
			"The main topic of the page is unclear to crawlers",
			"Add exactly one H1 that states the page's primary topic",
		))
	case h1 > 1:
		issues = append(issues, critical(IssueMultipleH1,
			fmt.Sprintf("Page has %d H1 headings", h1),
			"Multiple H1s dilute the page's primary topic",
			"Keep a single H1 and demote the others to H2",
		))
	}
	if page.SchemaMarkup.Count == 0 {
		issues = append(issues, critical(IssueMissingSchema, "Page has no JSON-LD schema markup",
			"AI assistants cannot extract structured facts such as services, hours or location",
			"Add JSON-LD for the relevant schema.org types (LocalBusiness, Organization, Product)",
		))
	}
	return issues
}

func (r *Rubric) warnings(page crawler.PageSignal) []crawler.Issue {
	issues := make([]crawler.Issue, 0)
	titleLen := optionalLen(page.Title)
	metaLen := optionalLen(page.MetaDescription)
	contentLen := utf8.RuneCountInString(page.ContentText)

	if titleLen > r.th.TitleMax {
		issues = append(issues, warning(IssueLongTitle,
			fmt.Sprintf("Title is %d characters long", titleLen),
			"Long titles are truncated in search results",
			fmt.Sprintf("Shorten the title to %d characters or fewer", r.th.TitleMax),
		))
	}
	if metaLen > r.th.MetaMax {
		issues = append(issues, warning(IssueLongMetaDescription,
			fmt.Sprintf("Meta description is %d characters long", metaLen),
			"Long descriptions are truncated in search results",
			fmt.Sprintf("Shorten the meta description to %d characters or fewer", r.th.MetaMax),
		))
	}
	if len(page.Headings.H2) == 0 {
		issues = append(issues, warning(IssueMissingH2, "Page has no H2 headings",
			"Content without subheadings is harder to scan and summarize",
			"Break the content into sections with descriptive H2 headings",
		))
	}
	if page.Images.WithoutAlt > 0 {
		issues = append(issues, warning(IssueMissingAltText,
			fmt.Sprintf("%d images are missing alt text", page.Images.WithoutAlt),
			"Images without alt text are invisible to screen readers and AI crawlers",
			"Describe every meaningful image in its alt attribute",
		))
	}
	if contentLen >= r.th.ThinContent && contentLen < r.th.ShortContent {
		issues = append(issues, warning(IssueShortContent,
			fmt.Sprintf("Page has %d characters of content", contentLen),
			"Short pages compete poorly against more thorough competitors",
			fmt.Sprintf("Aim for at least %d characters covering common customer questions", r.th.ShortContent),
		))
	}
	return issues
}

func (r *Rubric) suggestions(page crawler.PageSignal) []crawler.Issue {
	issues := make([]crawler.Issue, 0)
	if !schemaMentions(page.SchemaMarkup, "faq") {
		issues = append(issues, suggestion(SuggestFAQSchema, "Add an FAQ section with FAQPage schema",
			"FAQ markup is one of the most frequently quoted sources in AI answers",
			"Publish common customer questions and mark them up with FAQPage JSON-LD",
		))
	}
	if page.InternalLinksCount < r.th.MinInternalLinks {
		issues = append(issues, suggestion(SuggestInternalLinks,
			fmt.Sprintf("Page has only %d internal links", page.InternalLinksCount),
			"Internal links help crawlers discover and relate your pages",
			fmt.Sprintf("Link to at least %d related pages on your site", r.th.MinInternalLinks),
		))
	}
	if !strings.Contains(strings.ToLower(page.ContentText), "video") {
		issues = append(issues, suggestion(SuggestVideoContent, "Consider adding video content",
			"Video increases engagement and time on page",
			"Embed a short explainer or testimonial video with a transcript",
		))
	}
	if page.Images.Count < r.th.MinImages {
		issues = append(issues, suggestion(SuggestMoreImages,
			fmt.Sprintf("Page has only %d images", page.Images.Count),
			"Relevant images make content more engaging and appear in image search",
			"Add original photos of your work, team or products with descriptive alt text",
		))
	}
	issues = append(issues, suggestion(SuggestRelatedContent, "Add a related content section",
		"Related links keep visitors exploring and strengthen topical relevance",
		"Add a 'Related services' or 'You may also like' block linking to similar pages",
	))
	return issues
}

func schemaMentions(markup crawler.SchemaMarkup, needle string) bool {
	for _, block := range markup.JSONLD {
		if strings.Contains(strings.ToLower(string(block)), needle) {
			return true
		}
	}
	return false
}

func optionalLen(s *string) int {
	if s == nil {
		return 0
	}
	return utf8.RuneCountInString(*s)
}

func critical(kind, message, impact, fix string) crawler.Issue {
	return crawler.Issue{Type: kind, Severity: crawler.SeverityCritical, Message: message, Impact: impact, Fix: fix}
}

func warning(kind, message, impact, fix string) crawler.Issue {
	return crawler.Issue{Type: kind, Severity: crawler.SeverityWarning, Message: message, Impact: impact, Fix: fix}
}

func suggestion(kind, message, benefit, implementation string) crawler.Issue {
	return crawler.Issue{
		Type:           kind,
		Severity:       crawler.SeveritySuggestion,
		Message:        message,
		Benefit:        benefit,
		Implementation: implementation,
	}
}
