package render

import (
	"fmt"
	"strings"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/synthesis"
)

const articleSummaryLength = 400

// DailyMarkdown builds the daily page for a run.
func DailyMarkdown(result core.CurationResult, output core.SynthesisOutput) string {
	var b strings.Builder

	byFP := make(map[string]core.CanonicalArticle)
	for _, a := range result.Selected() {
		byFP[a.Fingerprint] = a
	}

	fmt.Fprintf(&b, "# %s\n\n", pageTitle(result.RunDate))
	fmt.Fprintf(&b, "> **%d** articles curated from **%d** categories\n\n", result.Len(), len(result.Groups))

	if output.Degraded {
		b.WriteString("> **Note:** the configured synthesis backend was unavailable, so this page uses the template summary.\n\n")
	}

	if result.Len() == 0 {
		b.WriteString("No articles were curated for this day.\n")
		return b.String()
	}

	b.WriteString("---\n\n## Overview\n\n")
	for _, g := range result.Groups {
		fmt.Fprintf(&b, "- **%s**: %s\n", core.DisplayName(g.Name), countLabel(len(g.Articles)))
	}
	b.WriteString("\n")

	if len(output.Digest) > 0 {
		b.WriteString("## Digest\n\n")
		for _, bullet := range output.Digest {
			fmt.Fprintf(&b, "- %s%s\n", oneLine(bullet.Text), sourceLink(byFP, bullet.Fingerprint, bullet.Source))
		}
		b.WriteString("\n")
	}

	if len(output.DeepPost.Trends) > 0 {
		b.WriteString("## Trends\n\n")
		for _, t := range output.DeepPost.Trends {
			fmt.Fprintf(&b, "### %s\n\n", oneLine(t.Title))
			if t.Explanation != "" {
				fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(t.Explanation))
			}
			var links []string
			for _, fp := range t.Fingerprints {
				if a, ok := byFP[fp]; ok {
					links = append(links, link(a.Title, a.URL))
				}
			}
			if len(links) > 0 {
				fmt.Fprintf(&b, "Sources: %s\n\n", strings.Join(links, ", "))
			}
		}
	}

	if output.DeepPost.Analysis != "" {
		fmt.Fprintf(&b, "## Analysis\n\n%s\n\n", strings.TrimSpace(output.DeepPost.Analysis))
	}

	if len(output.DeepPost.ActionItems) > 0 {
		b.WriteString("## Action Items\n\n")
		for _, item := range output.DeepPost.ActionItems {
			fmt.Fprintf(&b, "- [ ] %s\n", oneLine(item))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n## Articles\n\n")
	for _, g := range result.Groups {
		fmt.Fprintf(&b, "### %s\n\n", core.DisplayName(g.Name))
		for _, a := range g.Articles {
			fmt.Fprintf(&b, "#### %s\n\n", link(a.Title, a.URL))

			meta := "*" + a.Source
			if a.ExtractionStatus == core.ExtractionSuccess {
				meta += " · full text"
			} else {
				meta += " · snippet only"
			}
			fmt.Fprintf(&b, "%s*\n\n", meta)

			if summary := articleSummary(a); summary != "" {
				fmt.Fprintf(&b, "> %s\n\n", summary)
			}
		}
	}

	return b.String()
}

func articleSummary(a core.CanonicalArticle) string {
	if a.ExtractionStatus == core.ExtractionSuccess && a.ExtractedText != "" {
		return oneLine(synthesis.ExtractSummary(a.ExtractedText, articleSummaryLength))
	}
	return oneLine(a.Snippet)
}

func sourceLink(byFP map[string]core.CanonicalArticle, fp, source string) string {
	a, ok := byFP[fp]
	if !ok || a.URL == "" {
		if source == "" {
			return ""
		}
		return " (" + source + ")"
	}
	if source == "" {
		source = a.Source
	}
	return " (" + link(source, a.URL) + ")"
}

func link(text, url string) string {
	text = escapeLinkText(oneLine(text))
	if url == "" {
		return text
	}
	return "[" + text + "](" + strings.ReplaceAll(url, " ", "%20") + ")"
}

var linkTextEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func countLabel(n int) string {
	if n == 1 {
		return "1 article"
	}
	return fmt.Sprintf("%d articles", n)
}

// pageTitle formats "2024-05-10" as "May 10, 2024".
func pageTitle(runDate string) string {
	t, err := time.Parse("2006-01-02", runDate)
	if err != nil {
		return runDate
	}
	return t.Format("January 02, 2006")
}
