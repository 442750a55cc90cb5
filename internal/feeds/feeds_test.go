package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dailyintel/internal/core"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Data Eng Weekly</title>
  <link>https://example.com</link>
  <item>
    <title>Iceberg 1.6 released</title>
    <link>https://example.com/iceberg-16?utm_source=rss</link>
    <description><![CDATA[<p>New <b>REST catalog</b> features.</p>]]></description>
    <pubDate>Thu, 09 May 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>No date item</title>
    <link>https://example.com/no-date</link>
  </item>
</channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://atom.dev/entry-1"/>
    <id>urn:uuid:1</id>
    <updated>2024-05-08T12:00:00Z</updated>
    <summary>Summary text</summary>
  </entry>
</feed>`

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRSSFetcher(t *testing.T) {
	server := serve(t, "application/rss+xml", rssFeed)
	f := NewRSSFetcher(http.DefaultClient, "test")

	items, err := f.Fetch(context.Background(), core.Source{Name: "weekly", Kind: core.SourceKindRSS, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "Iceberg 1.6 released" || first.Source != "weekly" {
		t.Errorf("unexpected item: %+v", first)
	}
	if first.Snippet != "New REST catalog features." {
		t.Errorf("snippet should be cleaned of HTML, got %q", first.Snippet)
	}
	want := time.Date(2024, 5, 9, 10, 0, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", first.PublishedAt, want)
	}
	if items[1].PublishedAt != nil {
		t.Errorf("item without a date should have nil PublishedAt, got %v", items[1].PublishedAt)
	}
}

func TestRSSFetcherAtom(t *testing.T) {
	server := serve(t, "application/atom+xml", atomFeed)
	items, err := NewRSSFetcher(http.DefaultClient, "test").Fetch(context.Background(), core.Source{Name: "atom", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://atom.dev/entry-1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].PublishedAt == nil {
		t.Error("updated date should be used when published is missing")
	}
}

func TestRSSFetcherErrors(t *testing.T) {
	bad := serve(t, "text/plain", "this is not a feed")
	if _, err := NewRSSFetcher(http.DefaultClient, "test").Fetch(context.Background(), core.Source{Endpoint: bad.URL}); err == nil {
		t.Error("expected parse error")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	_, err := NewRSSFetcher(http.DefaultClient, "test").Fetch(context.Background(), core.Source{Endpoint: down.URL})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestAPIFetcher(t *testing.T) {
	body := `{"data": {"posts": [
		{"headline": "Kafka 4.0 drops ZooKeeper", "link": "https://api.dev/kafka", "ts": 1715248800, "meta": {"blurb": "KRaft only"}},
		{"headline": "dbt Fusion engine", "link": "https://api.dev/dbt", "ts": "2024-05-09T08:00:00Z"},
		"not-an-object"
	]}}`
	server := serve(t, "application/json", body)

	source := core.Source{
		Name:     "api",
		Kind:     core.SourceKindAPI,
		Endpoint: server.URL,
		Options: map[string]string{
			"items_path":    "data.posts",
			"title_field":   "headline",
			"url_field":     "link",
			"date_field":    "ts",
			"snippet_field": "meta.blurb",
		},
	}

	items, err := NewAPIFetcher(http.DefaultClient, "test").Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "Kafka 4.0 drops ZooKeeper" || items[0].Snippet != "KRaft only" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[0].PublishedAt == nil || items[0].PublishedAt.Unix() != 1715248800 {
		t.Errorf("unix timestamp not parsed: %v", items[0].PublishedAt)
	}
	if items[1].PublishedAt == nil || items[1].PublishedAt.Hour() != 8 {
		t.Errorf("RFC3339 timestamp not parsed: %v", items[1].PublishedAt)
	}
}

func TestAPIFetcherBadPath(t *testing.T) {
	server := serve(t, "application/json", `{"items": {}}`)
	_, err := NewAPIFetcher(http.DefaultClient, "test").Fetch(context.Background(), core.Source{Endpoint: server.URL, Options: map[string]string{"items_path": "items"}})
	if err == nil {
		t.Error("expected error when items_path is not an array")
	}
}

func TestScrapeFetcher(t *testing.T) {
	page := `<html><body>
<div class="post"><h2><a href="/blog/one">Post one</a></h2><p>First <em>summary</em></p><time datetime="2024-05-09">May 9</time></div>
<div class="post"><h2>Post two</h2><a href="https://other.dev/two">read</a></div>
<div class="post"><span>empty</span></div>
</body></html>`
	server := serve(t, "text/html", page)

	source := core.Source{
		Name:     "blog",
		Kind:     core.SourceKindScrape,
		Endpoint: server.URL + "/blog/",
		Options:  map[string]string{"item_selector": "div.post"},
	}

	items, err := NewScrapeFetcher(http.DefaultClient, "test").Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].URL != server.URL+"/blog/one" {
		t.Errorf("relative link not resolved: %q", items[0].URL)
	}
	if items[0].Snippet != "First summary" {
		t.Errorf("snippet = %q", items[0].Snippet)
	}
	if items[0].PublishedAt == nil || items[0].PublishedAt.Day() != 9 {
		t.Errorf("datetime attribute not parsed: %v", items[0].PublishedAt)
	}
	if items[1].Title != "Post two" || items[1].URL != "https://other.dev/two" {
		t.Errorf("unexpected second item: %+v", items[1])
	}
}

type countingFetcher struct {
	items []core.RawItem
	err   error
	calls int
}

func (c *countingFetcher) Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error) {
	c.calls++
	return c.items, c.err
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Options{MaxItems: 2})
	stub := &countingFetcher{items: []core.RawItem{{Title: "a"}, {Title: "b"}, {Title: "c"}}}
	r.Register(core.SourceKindRSS, stub)

	items, err := r.Fetch(context.Background(), core.Source{Name: "s", Kind: core.SourceKindRSS, Endpoint: "https://s.dev/feed"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("MaxItems not applied, got %d", len(items))
	}
	if items[0].Source != "s" {
		t.Errorf("source name should be filled in, got %q", items[0].Source)
	}

	_, err = r.Fetch(context.Background(), core.Source{Name: "x", Kind: "carrier-pigeon"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestRegistryRateLimitHonorsContext(t *testing.T) {
	r := NewRegistry(Options{RateInterval: time.Hour})
	r.Register(core.SourceKindRSS, &countingFetcher{})
	source := core.Source{Name: "s", Kind: core.SourceKindRSS, Endpoint: "https://same.dev/a"}

	if _, err := r.Fetch(context.Background(), source); err != nil {
		t.Fatalf("first fetch should not wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Fetch(ctx, source); err == nil {
		t.Error("second fetch to the same host should be throttled")
	}

	other := core.Source{Name: "o", Kind: core.SourceKindRSS, Endpoint: "https://other.dev/a"}
	if _, err := r.Fetch(context.Background(), other); err != nil {
		t.Errorf("a different host should not be throttled: %v", err)
	}
}

func TestCleanSnippet(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"<p>Hello   <b>world</b></p>", 100, "Hello world"},
		{"plain\n\ntext", 100, "plain text"},
		{"AT&amp;T news", 100, "AT&T news"},
		{"abcdefghij", 8, "abcde..."},
		{"héllo wörld", 6, "hél..."},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if got := CleanSnippet(tt.in, tt.max); got != tt.want {
			t.Errorf("CleanSnippet(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{
		"2024-05-09T10:00:00Z",
		"Thu, 09 May 2024 10:00:00 +0000",
		"2024-05-09 10:00:00",
		"2024-05-09",
	} {
		if got := ParseDate(s); got == nil || got.Day() != 9 {
			t.Errorf("ParseDate(%q) = %v", s, got)
		}
	}
	if ParseDate("yesterday") != nil || ParseDate("") != nil {
		t.Error("unparseable dates should return nil")
	}
}
