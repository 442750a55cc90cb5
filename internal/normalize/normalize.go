// Package normalize turns raw items from many sources into deduplicated
// canonical articles with stable fingerprints.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

// SourceBatch is everything one source returned for a run.
type SourceBatch struct {
	Source core.Source
	Items  []core.RawItem
}

// DroppedItem is a raw item that could not be normalized.
type DroppedItem struct {
	Source string       `json:"source"`
	Item   core.RawItem `json:"item"`
	Reason string       `json:"reason"`
}

// Result is the output of a normalization pass.
type Result struct {
	Articles []core.CanonicalArticle
	Dropped  []DroppedItem
	Merged   int // raw items folded into an earlier article
}

// Fingerprint returns the stable identity of a raw item. Well-formed URLs
// are hashed on their normalized form; anything else falls back to the
// normalized title plus the source name. An item without a title is keyed
// on its raw URL, which is also what gets displayed as its title.
func Fingerprint(item core.RawItem) string {
	if normalized, ok := NormalizeURL(item.URL); ok {
		return hashString("url:" + normalized)
	}
	title := NormalizeTitle(item.Title)
	if title == "" {
		title = strings.TrimSpace(item.URL)
	}
	return hashString("title:" + title + "|" + strings.ToLower(strings.TrimSpace(item.Source)))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Normalizer deduplicates raw items. It holds no state between calls.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize processes batches in the given order. The first item seen for a
// fingerprint keeps its title, URL and source name; later duplicates add
// their source to SeenVia and may contribute an earlier publish time or a
// snippet when the first had none. Priority and tags come from the
// highest-priority reporter so ranking and grouping do not depend on the
// order sources are listed in. Malformed items are dropped and logged.
func (n *Normalizer) Normalize(batches []SourceBatch) Result {
	var result Result
	index := make(map[string]int)
	seenVia := make(map[string]map[string]bool)

	for _, batch := range batches {
		for _, item := range batch.Items {
			if item.Source == "" {
				item.Source = batch.Source.Name
			}
			item.Title = strings.TrimSpace(item.Title)
			item.URL = strings.TrimSpace(item.URL)

			if item.Title == "" && item.URL == "" {
				logger.Warn("Dropping malformed item", "source", item.Source, "reason", "missing title and url")
				result.Dropped = append(result.Dropped, DroppedItem{Source: item.Source, Item: item, Reason: "missing title and url"})
				continue
			}

			fp := Fingerprint(item)
			if i, ok := index[fp]; ok {
				merge(&result.Articles[i], item, batch.Source)
				seenVia[fp][item.Source] = true
				result.Merged++
				logger.Debug("Merged duplicate item", "fingerprint", fp, "source", item.Source)
				continue
			}

			normalizedURL, _ := NormalizeURL(item.URL)
			article := core.CanonicalArticle{
				Fingerprint:      fp,
				Title:            item.Title,
				URL:              item.URL,
				NormalizedURL:    normalizedURL,
				Source:           item.Source,
				Tags:             append([]string(nil), batch.Source.Tags...),
				Priority:         batch.Source.Priority,
				PublishedAt:      copyTime(item.PublishedAt),
				Snippet:          strings.TrimSpace(item.Snippet),
				ExtractionStatus: core.ExtractionPending,
			}
			if article.Title == "" {
				article.Title = item.URL
			}

			index[fp] = len(result.Articles)
			seenVia[fp] = map[string]bool{item.Source: true}
			result.Articles = append(result.Articles, article)
		}
	}

	for i := range result.Articles {
		result.Articles[i].SeenVia = sortedSet(seenVia[result.Articles[i].Fingerprint])
	}
	return result
}

func merge(article *core.CanonicalArticle, item core.RawItem, src core.Source) {
	if src.Priority > 0 && (article.Priority == 0 || src.Priority < article.Priority) {
		article.Priority = src.Priority
		article.Tags = append([]string(nil), src.Tags...)
	}
	if item.PublishedAt != nil && (article.PublishedAt == nil || item.PublishedAt.Before(*article.PublishedAt)) {
		article.PublishedAt = copyTime(item.PublishedAt)
	}
	if article.Snippet == "" {
		article.Snippet = strings.TrimSpace(item.Snippet)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
