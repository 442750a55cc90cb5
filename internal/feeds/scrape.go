package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dailyintel/internal/core"
)

// ScrapeFetcher extracts items from an HTML listing page using CSS
// selectors from the source options: item_selector (default "article"),
// title_selector (default "h2, h3"), link_selector (default "a[href]"),
// snippet_selector (default "p") and date_selector (default "time").
type ScrapeFetcher struct {
	client    *http.Client
	userAgent string
}

// NewScrapeFetcher creates an HTML listing fetcher.
func NewScrapeFetcher(client *http.Client, userAgent string) *ScrapeFetcher {
	return &ScrapeFetcher{client: client, userAgent: userAgent}
}

// Fetch downloads source.Endpoint and maps each item element to a RawItem.
func (f *ScrapeFetcher) Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error) {
	base, err := url.Parse(source.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %s: %w", source.Endpoint, err)
	}

	resp, err := get(ctx, f.client, f.userAgent, source.Endpoint, "text/html")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", source.Endpoint, err)
	}

	itemSel := option(source, "item_selector", "article")
	titleSel := option(source, "title_selector", "h2, h3")
	linkSel := option(source, "link_selector", "a[href]")
	snippetSel := option(source, "snippet_selector", "p")
	dateSel := option(source, "date_selector", "time")

	var items []core.RawItem
	doc.Find(itemSel).Each(func(_ int, s *goquery.Selection) {
		item := core.RawItem{Source: source.Name}

		item.Title = strings.Join(strings.Fields(s.Find(titleSel).First().Text()), " ")

		link := s.Find(linkSel).First()
		if goquery.NodeName(s) == "a" {
			link = s
		}
		if href, ok := link.Attr("href"); ok {
			item.URL = resolve(base, href)
		}
		if item.Title == "" {
			item.Title = strings.Join(strings.Fields(link.Text()), " ")
		}

		item.Snippet = CleanSnippet(s.Find(snippetSel).First().Text(), MaxSnippetLength)

		date := s.Find(dateSel).First()
		if dt, ok := date.Attr("datetime"); ok {
			item.PublishedAt = ParseDate(dt)
		} else {
			item.PublishedAt = ParseDate(date.Text())
		}

		if item.Title == "" && item.URL == "" {
			return
		}
		items = append(items, item)
	})
	return items, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
