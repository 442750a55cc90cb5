// Package messaging sends a short run summary to chat platforms.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

// DefaultHighlights is the number of articles listed per group.
const DefaultHighlights = 3

const maxHighlightTitle = 80

// Highlight is one article listed in a notification.
type Highlight struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// GroupCount summarizes one topic group.
type GroupCount struct {
	Name       string      `json:"name"`
	Display    string      `json:"display"`
	Count      int         `json:"count"`
	Highlights []Highlight `json:"highlights"`
}

// Summary is the platform-neutral content of a run notification.
type Summary struct {
	RunDate   string       `json:"run_date"`
	Total     int          `json:"total"`
	DigestLen int          `json:"digest_len"`
	Groups    []GroupCount `json:"groups"`
	Link      string       `json:"link,omitempty"`
	Backend   string       `json:"backend"`
	Degraded  bool         `json:"degraded"`
}

// BuildSummary condenses a run into a Summary. perGroup bounds the
// highlights listed for each group; zero means DefaultHighlights.
func BuildSummary(result core.CurationResult, output core.SynthesisOutput, siteURL string, perGroup int) Summary {
	if perGroup <= 0 {
		perGroup = DefaultHighlights
	}

	s := Summary{
		RunDate:   result.RunDate,
		Total:     result.Len(),
		DigestLen: len(output.Digest),
		Backend:   output.BackendUsed,
		Degraded:  output.Degraded,
		Link:      PageURL(siteURL, result.RunDate),
	}

	for _, g := range result.Groups {
		gc := GroupCount{Name: g.Name, Display: core.DisplayName(g.Name), Count: len(g.Articles)}
		for i, a := range g.Articles {
			if i >= perGroup {
				break
			}
			gc.Highlights = append(gc.Highlights, Highlight{
				Title:  shorten(a.Title, maxHighlightTitle),
				URL:    a.URL,
				Source: a.Source,
			})
		}
		s.Groups = append(s.Groups, gc)
	}
	return s
}

// PageURL returns the public address of a daily page, or "" without a site URL.
func PageURL(siteURL, runDate string) string {
	if siteURL == "" || runDate == "" {
		return ""
	}
	return strings.TrimRight(siteURL, "/") + "/daily/" + runDate + ".html"
}

// Notifier delivers a Summary to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, s Summary) error
}

// Multi sends to every notifier and joins their errors. One failing
// destination does not stop the others.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Name())
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, s Summary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, s); err != nil {
			logger.Error("Notification failed", err, "notifier", n.Name(), "run_date", s.RunDate)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		logger.Info("Notification sent", "notifier", n.Name(), "run_date", s.RunDate)
	}
	return errors.Join(errs...)
}

func shorten(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
