// Package feeds fetches article lists from configured sources: RSS/Atom
// feeds, JSON APIs and scraped HTML listing pages.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "dailyintel/1.0"
)

// MaxSnippetLength caps snippets taken from feed descriptions.
const MaxSnippetLength = 500

// ErrUnknownKind is returned for a source whose kind has no fetcher.
var ErrUnknownKind = errors.New("unknown source kind")

// Fetcher returns the current items of one source.
type Fetcher interface {
	Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error)
}

// Options configures the HTTP behaviour shared by all fetchers.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	RateInterval time.Duration // minimum gap between requests to the same host
	MaxItems     int           // per source; zero keeps everything
	Client       *http.Client
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.RateInterval < 0 {
		o.RateInterval = 0
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Registry dispatches a source to the fetcher registered for its kind and
// throttles requests per host.
type Registry struct {
	fetchers map[core.SourceKind]Fetcher
	opts     Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRegistry creates a registry with the rss, api and scrape fetchers.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	r := &Registry{
		fetchers: make(map[core.SourceKind]Fetcher),
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
	r.Register(core.SourceKindRSS, NewRSSFetcher(opts.Client, opts.UserAgent))
	r.Register(core.SourceKindAPI, NewAPIFetcher(opts.Client, opts.UserAgent))
	r.Register(core.SourceKindScrape, NewScrapeFetcher(opts.Client, opts.UserAgent))
	return r
}

// Register replaces the fetcher for kind.
func (r *Registry) Register(kind core.SourceKind, f Fetcher) {
	r.fetchers[kind] = f
}

// Fetch resolves the fetcher for source.Kind, waits for the host's rate
// limiter and truncates the result to MaxItems.
func (r *Registry) Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error) {
	f, ok := r.fetchers[source.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (source %s)", ErrUnknownKind, source.Kind, source.Name)
	}

	if lim := r.limiter(source.Endpoint); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	items, err := f.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].Source == "" {
			items[i].Source = source.Name
		}
	}
	if r.opts.MaxItems > 0 && len(items) > r.opts.MaxItems {
		items = items[:r.opts.MaxItems]
	}

	logger.Debug("Fetched source", "source", source.Name, "kind", source.Kind, "items", len(items), "duration", time.Since(start).String())
	return items, nil
}

func (r *Registry) limiter(endpoint string) *rate.Limiter {
	if r.opts.RateInterval == 0 {
		return nil
	}
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(r.opts.RateInterval), 1)
		r.limiters[host] = lim
	}
	return lim
}

// CleanSnippet turns an HTML or plain-text description into a single line
// of text of at most max runes, ending in "..." when truncated.
func CleanSnippet(html string, max int) string {
	text := html
	if strings.ContainsAny(html, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")

	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

// ParseDate understands the date formats feeds and APIs commonly use.
// It returns nil when s is empty or unparseable.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// get performs a GET with the shared headers and rejects non-200 responses.
func get(ctx context.Context, client *http.Client, userAgent, endpoint, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return resp, nil
}

// option returns source.Options[key] or def.
func option(source core.Source, key, def string) string {
	if v, ok := source.Options[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}
