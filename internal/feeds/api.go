package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dailyintel/internal/core"
)

// APIFetcher reads a JSON endpoint that returns a list of items. Field
// names come from the source options:
//
//	items_path     dot path to the array (empty means the document root)
//	title_field    default "title"
//	url_field      default "url"
//	date_field     default "published_at"; RFC3339 strings or unix seconds
//	snippet_field  default "summary"
type APIFetcher struct {
	client    *http.Client
	userAgent string
}

// NewAPIFetcher creates a JSON API fetcher.
func NewAPIFetcher(client *http.Client, userAgent string) *APIFetcher {
	return &APIFetcher{client: client, userAgent: userAgent}
}

// Fetch downloads and maps the JSON document at source.Endpoint.
func (f *APIFetcher) Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error) {
	resp, err := get(ctx, f.client, f.userAgent, source.Endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON from %s: %w", source.Endpoint, err)
	}

	itemsPath := option(source, "items_path", "")
	list, ok := lookup(doc, itemsPath).([]any)
	if !ok {
		return nil, fmt.Errorf("%s: items_path %q is not an array", source.Endpoint, itemsPath)
	}

	titleField := option(source, "title_field", "title")
	urlField := option(source, "url_field", "url")
	dateField := option(source, "date_field", "published_at")
	snippetField := option(source, "snippet_field", "summary")

	items := make([]core.RawItem, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, core.RawItem{
			Title:       strings.TrimSpace(stringValue(lookup(obj, titleField))),
			URL:         strings.TrimSpace(stringValue(lookup(obj, urlField))),
			Source:      source.Name,
			PublishedAt: dateValue(lookup(obj, dateField)),
			Snippet:     CleanSnippet(stringValue(lookup(obj, snippetField)), MaxSnippetLength),
		})
	}
	return items, nil
}

// lookup walks a dot-separated path through nested JSON objects.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, key := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func dateValue(v any) *time.Time {
	switch t := v.(type) {
	case string:
		if secs, err := strconv.ParseInt(t, 10, 64); err == nil {
			ts := time.Unix(secs, 0).UTC()
			return &ts
		}
		return ParseDate(t)
	case float64:
		ts := time.Unix(int64(t), 0).UTC()
		return &ts
	}
	return nil
}
