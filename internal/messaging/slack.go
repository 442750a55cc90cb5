package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackMessage represents a Slack message structure
type SlackMessage struct {
	Text      string       `json:"text,omitempty"`
	Blocks    []SlackBlock `json:"blocks,omitempty"`
	Username  string       `json:"username,omitempty"`
	IconEmoji string       `json:"icon_emoji,omitempty"`
}

// SlackBlock represents a Slack block kit element
type SlackBlock struct {
	Type     string       `json:"type"`
	Text     *SlackText   `json:"text,omitempty"`
	Elements []*SlackText `json:"elements,omitempty"`
}

// SlackText represents text in Slack blocks
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackNotifier posts summaries to an incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Username   string
	IconEmoji  string
	HTTPClient *http.Client
}

// NewSlackNotifier creates a Slack notifier for webhookURL.
func NewSlackNotifier(webhookURL string, timeout time.Duration) *SlackNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Username:   "dailyintel",
		IconEmoji:  ":newspaper:",
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (n *SlackNotifier) Name() string { return "slack" }

// Notify posts the summary as a block kit message.
func (n *SlackNotifier) Notify(ctx context.Context, s Summary) error {
	if n.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	jsonData, err := json.Marshal(SlackSummaryMessage(s, n.Username, n.IconEmoji))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// SlackSummaryMessage lays out a summary as header, one section per group
// and a context footer.
func SlackSummaryMessage(s Summary, username, icon string) *SlackMessage {
	title := fmt.Sprintf("📰 Daily Engineering Intelligence - %s", s.RunDate)
	blocks := []SlackBlock{
		{Type: "header", Text: &SlackText{Type: "plain_text", Text: title}},
		{Type: "divider"},
	}

	if s.Total == 0 {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: "No articles were curated today."},
		})
	}

	for _, g := range s.Groups {
		var b strings.Builder
		fmt.Fprintf(&b, "*%s* (%d)\n", slackEscape(g.Display), g.Count)
		for _, h := range g.Highlights {
			if h.URL != "" {
				fmt.Fprintf(&b, "• <%s|%s>\n", h.URL, slackEscape(h.Title))
			} else {
				fmt.Fprintf(&b, "• %s\n", slackEscape(h.Title))
			}
		}
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: b.String()},
		})
	}

	footer := fmt.Sprintf("%s curated today", plural(s.Total, "item"))
	if s.Link != "" {
		footer += fmt.Sprintf(" • <%s|Read full report>", s.Link)
	}
	if s.Degraded {
		footer += " • template summary (backend unavailable)"
	}
	blocks = append(blocks, SlackBlock{
		Type:     "context",
		Elements: []*SlackText{{Type: "mrkdwn", Text: footer}},
	})

	return &SlackMessage{
		Text:      title,
		Blocks:    blocks,
		Username:  username,
		IconEmoji: icon,
	}
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func slackEscape(s string) string {
	return slackEscaper.Replace(s)
}
