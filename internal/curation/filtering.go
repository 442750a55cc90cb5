package curation

import (
	"strings"
	"time"
	"unicode/utf8"

	"dailyintel/internal/core"
)

// FilterResult represents the result of keyword and quality filtering
type FilterResult struct {
	Included bool                 `json:"included"`
	Reason   core.RejectionReason `json:"reason,omitempty"`
	Keyword  string               `json:"keyword,omitempty"` // Keyword that caused the decision, if any
}

// Filter decides whether a single article survives the pre-filters and the
// keyword rules. The denylist is always checked before the allowlist so a
// denied keyword wins even when an allowed keyword also matches.
func (e *Engine) Filter(article core.CanonicalArticle, runDate time.Time) FilterResult {
	if e.rules.MinTitleLength > 0 && utf8.RuneCountInString(strings.TrimSpace(article.Title)) < e.rules.MinTitleLength {
		return FilterResult{Reason: core.RejectShortTitle}
	}

	if e.rules.MaxAge > 0 && article.PublishedAt != nil && !runDate.IsZero() {
		cutoff := endOfDay(runDate).Add(-e.rules.MaxAge)
		if article.PublishedAt.Before(cutoff) {
			return FilterResult{Reason: core.RejectTooOld}
		}
	}

	haystack := searchText(article)

	for _, kw := range e.rules.Denylist {
		if strings.Contains(haystack, kw) {
			return FilterResult{Reason: core.RejectDenylist, Keyword: kw}
		}
	}

	if len(e.rules.Allowlist) == 0 {
		return FilterResult{Included: true}
	}
	for _, kw := range e.rules.Allowlist {
		if strings.Contains(haystack, kw) {
			return FilterResult{Included: true, Keyword: kw}
		}
	}
	return FilterResult{Reason: core.RejectAllowlistMiss}
}

// searchText is the lower-cased text keyword rules are matched against.
func searchText(a core.CanonicalArticle) string {
	parts := []string{a.Title, a.Snippet}
	if a.ExtractedText != "" {
		parts = append(parts, a.ExtractedText)
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Add(24 * time.Hour)
}

func normalizeKeywords(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
