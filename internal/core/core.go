// Package core defines the data model shared by the pipeline stages: sources,
// raw and canonical articles, curation results, synthesis input and output,
// and run records.
package core

import (
	"strings"
	"time"
	"unicode"
)

// SourceKind identifies which fetch collaborator handles a source.
type SourceKind string

const (
	SourceKindRSS    SourceKind = "rss"
	SourceKindAPI    SourceKind = "api"
	SourceKindScrape SourceKind = "scrape"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindRSS, SourceKindAPI, SourceKindScrape:
		return true
	}
	return false
}

// Source is a configured news source. Loaded once per run and never modified.
type Source struct {
	Name     string            `json:"name" yaml:"name"`                           // Unique display name
	Kind     SourceKind        `json:"kind" yaml:"kind"`                           // rss, api or scrape
	Endpoint string            `json:"endpoint" yaml:"url"`                        // Feed, API or page URL
	Tags     []string          `json:"tags" yaml:"tags"`                           // Topic tags in preference order
	Priority int               `json:"priority" yaml:"priority"`                   // 1 is highest
	Enabled  bool              `json:"enabled" yaml:"enabled"`                     // Disabled sources are never fetched
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"` // Kind-specific settings (selectors, field names)
}

// RawItem is one entry returned by a source collaborator.
type RawItem struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Snippet     string     `json:"snippet,omitempty"`
}

// ExtractionStatus records whether full text was obtained for an article.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionSuccess ExtractionStatus = "success"
	ExtractionFailed  ExtractionStatus = "failed"
	ExtractionSkipped ExtractionStatus = "skipped"
)

// CanonicalArticle is the deduplicated unit of work for a run.
type CanonicalArticle struct {
	Fingerprint      string           `json:"fingerprint"`              // Stable identity, see normalize.Fingerprint
	Title            string           `json:"title"`                    // Title of the first-seen item
	URL              string           `json:"url"`                      // URL of the first-seen item
	NormalizedURL    string           `json:"normalized_url,omitempty"` // Tracking-free form used for identity
	Source           string           `json:"source"`                   // First reporting source
	SeenVia          []string         `json:"seen_via"`                 // Sorted set of every reporting source
	Tags             []string         `json:"tags,omitempty"`           // Tags of the highest-priority reporting source
	TopicGroup       string           `json:"topic_group,omitempty"`    // Assigned during curation
	Priority         int              `json:"priority"`                 // Best priority among reporting sources
	PublishedAt      *time.Time       `json:"published_at,omitempty"`   // Earliest known publish time
	Snippet          string           `json:"snippet,omitempty"`        // Short description from the source
	ExtractedText    string           `json:"extracted_text,omitempty"` // Full text when extraction succeeded
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
}

// BestText returns the extracted text when extraction succeeded, otherwise the snippet.
func (a CanonicalArticle) BestText() string {
	if a.ExtractionStatus == ExtractionSuccess && a.ExtractedText != "" {
		return a.ExtractedText
	}
	return a.Snippet
}

// RejectionReason explains why an article was left out of a CurationResult.
type RejectionReason string

const (
	RejectDenylist      RejectionReason = "denylist_match"
	RejectAllowlistMiss RejectionReason = "allowlist_miss"
	RejectGroupCap      RejectionReason = "group_cap_exceeded"
	RejectTooOld        RejectionReason = "too_old"
	RejectShortTitle    RejectionReason = "title_too_short"
)

// Rejection is one entry of the rejected-item log.
type Rejection struct {
	Article CanonicalArticle `json:"article"`
	Reason  RejectionReason  `json:"reason"`
	Detail  string           `json:"detail,omitempty"` // Matched keyword or group name
}

// UnclassifiedGroup collects articles whose tags match no registered group.
const UnclassifiedGroup = "unclassified"

// DisplayName formats a group key for presentation: "data_platform"
// becomes "Data Platform".
func DisplayName(group string) string {
	words := strings.FieldsFunc(group, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// Group is a ranked, capped topic bucket.
type Group struct {
	Name     string             `json:"name"`
	Articles []CanonicalArticle `json:"articles"`
}

// CurationResult is the per-run outcome of curation. Groups appear in
// registry order with the unclassified group last.
type CurationResult struct {
	RunDate  string      `json:"run_date"`
	Groups   []Group     `json:"groups"`
	Rejected []Rejection `json:"rejected"`
}

// Group returns the named group and whether it exists.
func (r CurationResult) Group(name string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Selected flattens the groups in presentation order.
func (r CurationResult) Selected() []CanonicalArticle {
	var out []CanonicalArticle
	for _, g := range r.Groups {
		out = append(out, g.Articles...)
	}
	return out
}

// Len returns the number of selected articles.
func (r CurationResult) Len() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Articles)
	}
	return n
}

// Clone returns a deep copy of the groups so a later stage can annotate
// articles without touching the original snapshot.
func (r CurationResult) Clone() CurationResult {
	out := CurationResult{RunDate: r.RunDate, Rejected: append([]Rejection(nil), r.Rejected...)}
	out.Groups = make([]Group, len(r.Groups))
	for i, g := range r.Groups {
		out.Groups[i] = Group{Name: g.Name, Articles: append([]CanonicalArticle(nil), g.Articles...)}
	}
	return out
}

// InputEntry is one grounding item handed to a synthesis backend.
type InputEntry struct {
	Fingerprint string `json:"id"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Extracted   bool   `json:"extracted"` // false when Text is only the snippet
}

// InputGroup holds the grounding entries of one topic group in rank order.
type InputGroup struct {
	Name    string       `json:"group"`
	Entries []InputEntry `json:"entries"`
}

// SynthesisInput is the grounding context for a backend.
type SynthesisInput struct {
	RunDate string       `json:"run_date"`
	Groups  []InputGroup `json:"groups"`
}

// Has reports whether fingerprint is part of the grounding context.
func (in SynthesisInput) Has(fingerprint string) bool {
	_, ok := in.Entry(fingerprint)
	return ok
}

// Entry looks up a grounding entry by fingerprint.
func (in SynthesisInput) Entry(fingerprint string) (InputEntry, bool) {
	for _, g := range in.Groups {
		for _, e := range g.Entries {
			if e.Fingerprint == fingerprint {
				return e, true
			}
		}
	}
	return InputEntry{}, false
}

// Len returns the number of grounding entries.
func (in SynthesisInput) Len() int {
	n := 0
	for _, g := range in.Groups {
		n += len(g.Entries)
	}
	return n
}

// Bullet is one digest statement tied to the article it came from.
type Bullet struct {
	Text        string `json:"text"`
	Fingerprint string `json:"fingerprint"`
	Source      string `json:"source"`
}

// Trend is a labeled observation supported by one or more articles.
type Trend struct {
	Title        string   `json:"title"`
	Explanation  string   `json:"explanation"`
	Fingerprints []string `json:"fingerprints"`
}

// DeepPost is the longer synthesis section.
type DeepPost struct {
	Trends      []Trend  `json:"trends"`
	Analysis    string   `json:"analysis"`
	ActionItems []string `json:"action_items"`
}

// SynthesisOutput is the final artifact of a run.
type SynthesisOutput struct {
	Digest        []Bullet `json:"digest"`
	DeepPost      DeepPost `json:"deep_post"`
	BackendUsed   string   `json:"backend_used"`
	Degraded      bool     `json:"degraded"`                 // Primary backend failed, deterministic fallback used
	FailureReason string   `json:"failure_reason,omitempty"` // Why the primary backend was abandoned
}

// IsEmpty reports whether the output carries no content.
func (o SynthesisOutput) IsEmpty() bool {
	return len(o.Digest) == 0 && len(o.DeepPost.Trends) == 0 &&
		o.DeepPost.Analysis == "" && len(o.DeepPost.ActionItems) == 0
}

// SourceFailure records a source that contributed no items to a run.
type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// RunRecord summarizes one pipeline run for history and observability.
type RunRecord struct {
	ID             string          `json:"id"`
	RunDate        string          `json:"run_date"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Discovered     int             `json:"discovered"`      // Raw items returned by all sources
	Canonical      int             `json:"canonical"`       // Articles after deduplication
	PreviouslySeen int             `json:"previously_seen"` // Dropped because an earlier run already covered them
	Selected       int             `json:"selected"`
	Rejected       int             `json:"rejected"`
	Extracted      int             `json:"extracted"`
	ExtractFailed  int             `json:"extract_failed"`
	ExtractSkipped int             `json:"extract_skipped"`
	DroppedItems   int             `json:"dropped_items"` // Malformed raw items
	Backend        string          `json:"backend"`
	Degraded       bool            `json:"degraded"`
	SourceFailures []SourceFailure `json:"source_failures,omitempty"`
}
