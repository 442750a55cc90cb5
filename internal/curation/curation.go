// Package curation filters, groups, ranks and caps canonical articles.
package curation

import (
	"sort"
	"strings"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

// DefaultTopPerGroup is used when Rules.TopPerGroup is not positive.
const DefaultTopPerGroup = 5

// Rules configures the engine. Keywords are matched case-insensitively.
type Rules struct {
	Allowlist      []string
	Denylist       []string
	TopPerGroup    int
	Groups         []string // group registry in presentation order
	MinTitleLength int
	MaxAge         time.Duration // zero disables the age filter
}

// Engine applies Rules to a run's articles. Safe for concurrent use.
type Engine struct {
	rules    Rules
	registry map[string]string // lower-cased name -> registry spelling
}

// NewEngine creates an engine with normalized rules.
func NewEngine(rules Rules) *Engine {
	rules.Allowlist = normalizeKeywords(rules.Allowlist)
	rules.Denylist = normalizeKeywords(rules.Denylist)
	if rules.TopPerGroup <= 0 {
		rules.TopPerGroup = DefaultTopPerGroup
	}

	registry := make(map[string]string, len(rules.Groups))
	groups := make([]string, 0, len(rules.Groups))
	for _, g := range rules.Groups {
		key := strings.ToLower(strings.TrimSpace(g))
		if key == "" || key == core.UnclassifiedGroup {
			continue
		}
		if _, dup := registry[key]; dup {
			continue
		}
		registry[key] = strings.TrimSpace(g)
		groups = append(groups, strings.TrimSpace(g))
	}
	rules.Groups = groups

	return &Engine{rules: rules, registry: registry}
}

// Rules returns the normalized rules the engine runs with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Curate filters, groups, ranks and caps articles for one run date. The
// input slice is not modified. Identical input yields identical output.
func (e *Engine) Curate(runDate time.Time, articles []core.CanonicalArticle) core.CurationResult {
	result := core.CurationResult{RunDate: runDate.Format("2006-01-02")}
	buckets := make(map[string][]core.CanonicalArticle)

	for _, article := range articles {
		fr := e.Filter(article, runDate)
		if !fr.Included {
			result.Rejected = append(result.Rejected, core.Rejection{Article: article, Reason: fr.Reason, Detail: fr.Keyword})
			logger.Debug("Rejected article", "fingerprint", article.Fingerprint, "reason", fr.Reason, "keyword", fr.Keyword)
			continue
		}

		article.TopicGroup = e.AssignGroup(article.Tags)
		buckets[article.TopicGroup] = append(buckets[article.TopicGroup], article)
	}

	order := append(append([]string(nil), e.rules.Groups...), core.UnclassifiedGroup)
	for _, name := range order {
		members := buckets[name]
		if len(members) == 0 {
			continue
		}

		Rank(members)

		keep := members
		if len(members) > e.rules.TopPerGroup {
			keep = members[:e.rules.TopPerGroup]
			for _, dropped := range members[e.rules.TopPerGroup:] {
				result.Rejected = append(result.Rejected, core.Rejection{Article: dropped, Reason: core.RejectGroupCap, Detail: name})
			}
		}

		result.Groups = append(result.Groups, core.Group{Name: name, Articles: append([]core.CanonicalArticle(nil), keep...)})
	}

	logger.Info("Curation complete",
		"run_date", result.RunDate,
		"input", len(articles),
		"selected", result.Len(),
		"rejected", len(result.Rejected),
		"groups", len(result.Groups))

	return result
}

// AssignGroup picks the first tag that names a registered group, falling
// back to the unclassified group.
func (e *Engine) AssignGroup(tags []string) string {
	for _, tag := range tags {
		if name, ok := e.registry[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return name
		}
	}
	return core.UnclassifiedGroup
}

// Rank sorts articles in place: priority ascending, then published_at
// descending with unknown times last, then fingerprint ascending.
func Rank(articles []core.CanonicalArticle) {
	sort.SliceStable(articles, func(i, j int) bool {
		return less(articles[i], articles[j])
	})
}

func less(a, b core.CanonicalArticle) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	switch {
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return true
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return false
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.After(*b.PublishedAt)
	}
	return a.Fingerprint < b.Fingerprint
}
