package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"dailyintel/internal/core"
)

const (
	summaryMaxLength   = 500
	summaryMinPara     = 50
	bulletDetailLength = 280
)

// DeterministicBackend builds the digest and deep post from titles, groups
// and counts with fixed templates. It makes no external call and its output
// depends only on its input.
type DeterministicBackend struct{}

// NewDeterministicBackend returns the deterministic backend.
func NewDeterministicBackend() *DeterministicBackend {
	return &DeterministicBackend{}
}

func (d *DeterministicBackend) Name() string { return string(KindDeterministic) }

// ProduceDigest emits one bullet per grounding entry in input order.
func (d *DeterministicBackend) ProduceDigest(_ context.Context, in core.SynthesisInput) ([]core.Bullet, error) {
	bullets := make([]core.Bullet, 0, in.Len())
	for _, g := range in.Groups {
		for _, e := range g.Entries {
			text := fmt.Sprintf("%s (%s)", e.Title, e.Source)
			detail := e.Text
			if e.Extracted {
				detail = ExtractSummary(e.Text, summaryMaxLength)
			}
			if detail = clip(detail, bulletDetailLength); detail != "" && detail != e.Title {
				text += ": " + detail
			}
			bullets = append(bullets, core.Bullet{Text: text, Fingerprint: e.Fingerprint, Source: e.Source})
		}
	}
	return bullets, nil
}

// ProduceDeepPost emits one trend per group, an analysis paragraph built
// from counts and one reading action per group.
func (d *DeterministicBackend) ProduceDeepPost(_ context.Context, in core.SynthesisInput) (core.DeepPost, error) {
	post := core.DeepPost{Trends: []core.Trend{}, ActionItems: []string{}}

	extracted := 0
	largest, largestCount := "", 0
	for _, g := range in.Groups {
		titles := make([]string, 0, len(g.Entries))
		fps := make([]string, 0, len(g.Entries))
		sources := make(map[string]bool)
		for _, e := range g.Entries {
			titles = append(titles, e.Title)
			fps = append(fps, e.Fingerprint)
			sources[e.Source] = true
			if e.Extracted {
				extracted++
			}
		}

		post.Trends = append(post.Trends, core.Trend{
			Title:        fmt.Sprintf("%s: %s", core.DisplayName(g.Name), plural(len(g.Entries), "article")),
			Explanation:  fmt.Sprintf("%s from %s: %s.", plural(len(g.Entries), "article"), plural(len(sources), "source"), strings.Join(titles, "; ")),
			Fingerprints: fps,
		})
		post.ActionItems = append(post.ActionItems, "Read: "+g.Entries[0].Title)

		if len(g.Entries) > largestCount {
			largest, largestCount = g.Name, len(g.Entries)
		}
	}

	total := in.Len()
	if total == 0 {
		return post, nil
	}
	post.Analysis = fmt.Sprintf(
		"This digest covers %s across %s. The largest group is %s with %s. Full text was available for %d of %d articles; the rest are summarized from source snippets.",
		plural(total, "article"), plural(len(in.Groups), "topic group"),
		core.DisplayName(largest), plural(largestCount, "article"),
		extracted, total)
	return post, nil
}

var markdownHeader = regexp.MustCompile(`(?m)^#+\s+`)

// ExtractSummary returns the first substantial paragraph of text, skipping
// short lines and list, table or link debris, cut to maxLength runes.
func ExtractSummary(text string, maxLength int) string {
	text = markdownHeader.ReplaceAllString(text, "")

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if utf8.RuneCountInString(para) < summaryMinPara {
			continue
		}
		if strings.HasPrefix(para, "*") || strings.HasPrefix(para, "-") || strings.HasPrefix(para, "|") || strings.HasPrefix(para, "[") {
			continue
		}
		return cut(para, maxLength)
	}
	return cut(strings.TrimSpace(text), maxLength)
}

// cut truncates to n runes and appends "..." when it did.
func cut(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// clip collapses whitespace and cuts at a word boundary.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	prefix := string([]rune(s)[:n])
	if i := strings.LastIndex(prefix, " "); i > len(prefix)/2 {
		return prefix[:i] + "..."
	}
	return prefix + "..."
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
