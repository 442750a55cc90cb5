package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"dailyintel/internal/core"
)

// RSSFetcher reads RSS and Atom feeds.
type RSSFetcher struct {
	client    *http.Client
	userAgent string
	parser    *gofeed.Parser
}

// NewRSSFetcher creates an RSS/Atom fetcher.
func NewRSSFetcher(client *http.Client, userAgent string) *RSSFetcher {
	return &RSSFetcher{client: client, userAgent: userAgent, parser: gofeed.NewParser()}
}

// Fetch downloads and parses the feed at source.Endpoint.
func (f *RSSFetcher) Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error) {
	resp, err := get(ctx, f.client, f.userAgent, source.Endpoint, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", source.Endpoint, err)
	}

	items := make([]core.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}

		item := core.RawItem{
			Title:  strings.TrimSpace(entry.Title),
			URL:    strings.TrimSpace(entry.Link),
			Source: source.Name,
		}
		if item.URL == "" && strings.HasPrefix(entry.GUID, "http") {
			item.URL = entry.GUID
		}

		if entry.PublishedParsed != nil {
			t := entry.PublishedParsed.UTC()
			item.PublishedAt = &t
		} else if entry.UpdatedParsed != nil {
			t := entry.UpdatedParsed.UTC()
			item.PublishedAt = &t
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		item.Snippet = CleanSnippet(summary, MaxSnippetLength)

		items = append(items, item)
	}
	return items, nil
}
