package normalize

import (
	"testing"
	"time"

	"dailyintel/internal/core"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{
			name:     "remove utm parameters",
			input:    "https://example.com/article?utm_source=twitter&utm_campaign=promo",
			expected: "https://example.com/article",
			ok:       true,
		},
		{
			name:     "remove fbclid and ref",
			input:    "https://example.com/article?fbclid=123456&ref=hn",
			expected: "https://example.com/article",
			ok:       true,
		},
		{
			name:     "keep query parameters that aren't tracking",
			input:    "https://example.com/search?q=golang&page=2",
			expected: "https://example.com/search?page=2&q=golang",
			ok:       true,
		},
		{
			name:     "remove fragment and trailing slash",
			input:    "https://example.com/article/#section-1",
			expected: "https://example.com/article",
			ok:       true,
		},
		{
			name:     "lower-case host and drop default port",
			input:    "HTTPS://Example.COM:443/Post",
			expected: "https://example.com/post",
			ok:       true,
		},
		{
			name:     "root path collapses",
			input:    "https://example.com/",
			expected: "https://example.com",
			ok:       true,
		},
		{name: "relative url", input: "/posts/1", ok: false},
		{name: "mailto", input: "mailto:someone@example.com", ok: false},
		{name: "empty", input: "  ", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := NormalizeURL(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	got := NormalizeTitle("  Delta Lake 4.0: What's New?!  ")
	if got != "delta lake 40 whats new" {
		t.Errorf("NormalizeTitle = %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	a := core.RawItem{Title: "A", URL: "https://example.com/a?utm_source=x", Source: "one"}
	b := core.RawItem{Title: "Different title", URL: "https://EXAMPLE.com/a/", Source: "two"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("items with the same normalized URL should share a fingerprint")
	}

	noURL1 := core.RawItem{Title: "Big News!", Source: "one"}
	noURL2 := core.RawItem{Title: "big news", Source: "One"}
	noURL3 := core.RawItem{Title: "big news", Source: "two"}
	if Fingerprint(noURL1) != Fingerprint(noURL2) {
		t.Error("title fingerprint should ignore case and punctuation")
	}
	if Fingerprint(noURL1) == Fingerprint(noURL3) {
		t.Error("title fingerprint should include the source name")
	}
	if Fingerprint(a) == Fingerprint(noURL1) {
		t.Error("url and title fingerprints should not collide")
	}

	untitled1 := core.RawItem{URL: "not a url", Source: "one"}
	untitled2 := core.RawItem{URL: "also:/broken", Source: "one"}
	if Fingerprint(untitled1) == Fingerprint(untitled2) {
		t.Error("untitled items with different raw urls should not share a fingerprint")
	}
	if Fingerprint(untitled1) != Fingerprint(core.RawItem{URL: "  not a url ", Source: "one"}) {
		t.Error("raw url fallback should ignore surrounding whitespace")
	}
}

func TestNormalizeKeepsUntitledItemsApart(t *testing.T) {
	batches := []SourceBatch{{
		Source: core.Source{Name: "alpha", Priority: 1},
		Items: []core.RawItem{
			{URL: "not a url"},
			{URL: "also:/broken"},
		},
	}}

	result := New().Normalize(batches)
	if len(result.Articles) != 2 || result.Merged != 0 {
		t.Fatalf("expected 2 distinct articles, got %d (merged %d)", len(result.Articles), result.Merged)
	}
	if result.Articles[0].Title != "not a url" || result.Articles[1].Title != "also:/broken" {
		t.Errorf("titles should fall back to the raw url, got %q %q", result.Articles[0].Title, result.Articles[1].Title)
	}
}

func TestNormalizeMergedPriorityIgnoresSourceOrder(t *testing.T) {
	batches := []SourceBatch{
		{
			Source: core.Source{Name: "beta", Priority: 3, Tags: []string{"misc"}},
			Items:  []core.RawItem{{Title: "Repost", URL: "https://example.com/a?utm_source=rss"}},
		},
		{
			Source: core.Source{Name: "alpha", Priority: 1, Tags: []string{"data"}},
			Items:  []core.RawItem{{Title: "Original", URL: "https://example.com/a"}},
		},
	}

	a := New().Normalize(batches).Articles[0]
	if a.Title != "Repost" || a.Source != "beta" {
		t.Errorf("first-seen title and source should be kept, got %q/%s", a.Title, a.Source)
	}
	if a.Priority != 1 || len(a.Tags) != 1 || a.Tags[0] != "data" {
		t.Errorf("priority and tags should come from the best source, got %d %v", a.Priority, a.Tags)
	}
}

func TestNormalizeMergesDuplicates(t *testing.T) {
	early := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(6 * time.Hour)

	batches := []SourceBatch{
		{
			Source: core.Source{Name: "alpha", Priority: 1, Tags: []string{"data"}},
			Items: []core.RawItem{
				{Title: "Article A", URL: "https://example.com/a", PublishedAt: &late},
				{Title: "Article B", URL: "https://example.com/b"},
			},
		},
		{
			Source: core.Source{Name: "beta", Priority: 2},
			Items: []core.RawItem{
				{Title: "A, reposted", URL: "https://example.com/a?utm_medium=rss", PublishedAt: &early, Snippet: "ignored"},
			},
		},
	}

	result := New().Normalize(batches)
	if len(result.Articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(result.Articles))
	}
	if result.Merged != 1 {
		t.Errorf("Merged = %d, want 1", result.Merged)
	}

	a := result.Articles[0]
	if a.Title != "Article A" || a.URL != "https://example.com/a" {
		t.Errorf("first-seen title/url should win, got %q %q", a.Title, a.URL)
	}
	if a.Source != "alpha" || a.Priority != 1 {
		t.Errorf("expected source alpha at priority 1, got %s/%d", a.Source, a.Priority)
	}
	if len(a.SeenVia) != 2 || a.SeenVia[0] != "alpha" || a.SeenVia[1] != "beta" {
		t.Errorf("SeenVia = %v", a.SeenVia)
	}
	if a.PublishedAt == nil || !a.PublishedAt.Equal(early) {
		t.Errorf("earliest published_at should be kept, got %v", a.PublishedAt)
	}
	if a.ExtractionStatus != core.ExtractionPending {
		t.Errorf("new articles should be pending, got %s", a.ExtractionStatus)
	}
	if len(result.Articles[1].SeenVia) != 1 {
		t.Errorf("B SeenVia = %v", result.Articles[1].SeenVia)
	}
}

func TestNormalizeKeepsEarliestNonNullTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	batches := []SourceBatch{
		{Source: core.Source{Name: "alpha"}, Items: []core.RawItem{{Title: "X", URL: "https://x.dev/1"}}},
		{Source: core.Source{Name: "beta"}, Items: []core.RawItem{{Title: "X", URL: "https://x.dev/1", PublishedAt: &ts}}},
		{Source: core.Source{Name: "gamma"}, Items: []core.RawItem{{Title: "X", URL: "https://x.dev/1"}}},
	}

	result := New().Normalize(batches)
	if len(result.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(result.Articles))
	}
	if got := result.Articles[0].PublishedAt; got == nil || !got.Equal(ts) {
		t.Errorf("PublishedAt = %v, want %v", got, ts)
	}
}

func TestNormalizeDropsMalformed(t *testing.T) {
	batches := []SourceBatch{{
		Source: core.Source{Name: "alpha"},
		Items: []core.RawItem{
			{Title: "  ", URL: ""},
			{Title: "Only a title, no link"},
			{URL: "https://example.com/untitled"},
		},
	}}

	result := New().Normalize(batches)
	if len(result.Dropped) != 1 {
		t.Fatalf("expected 1 dropped item, got %d", len(result.Dropped))
	}
	if result.Dropped[0].Source != "alpha" {
		t.Errorf("dropped item should record its source, got %q", result.Dropped[0].Source)
	}
	if len(result.Articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(result.Articles))
	}
	if result.Articles[1].Title != "https://example.com/untitled" {
		t.Errorf("untitled article should fall back to its url, got %q", result.Articles[1].Title)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	batches := []SourceBatch{
		{Source: core.Source{Name: "alpha"}, Items: []core.RawItem{{Title: "One", URL: "https://a.dev/1"}, {Title: "Two", URL: "https://a.dev/2"}}},
		{Source: core.Source{Name: "beta"}, Items: []core.RawItem{{Title: "Two", URL: "https://a.dev/2"}, {Title: "Three"}}},
	}

	first := New().Normalize(batches)
	second := New().Normalize(batches)
	if len(first.Articles) != len(second.Articles) {
		t.Fatal("article counts differ between runs")
	}
	for i := range first.Articles {
		if first.Articles[i].Fingerprint != second.Articles[i].Fingerprint {
			t.Errorf("order differs at %d", i)
		}
	}
}
