package messaging

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram rejects messages longer than this many characters.
const telegramMaxMessage = 4096

// TelegramNotifier sends HTML-formatted summaries through the Bot API.
type TelegramNotifier struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client
}

// NewTelegramNotifier validates the chat id and prepares a notifier. The
// bot is contacted only when Notify is called.
func NewTelegramNotifier(token, chatID string, timeout time.Duration) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TelegramNotifier{
		token:    token,
		chatID:   id,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WithEndpoint points the notifier at another Bot API server. The format
// takes the token and method like tgbotapi.APIEndpoint.
func (n *TelegramNotifier) WithEndpoint(endpoint string) *TelegramNotifier {
	n.endpoint = endpoint
	return n
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify sends the summary. The Bot API client has no context support, so
// ctx is only checked before the calls.
func (n *TelegramNotifier) Notify(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := tgbotapi.NewBotAPIWithClient(n.token, n.endpoint, n.client)
	if err != nil {
		return fmt.Errorf("failed to connect telegram bot: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, TelegramSummaryHTML(s))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// TelegramSummaryHTML renders a summary in Telegram's HTML subset. Groups
// are dropped from the end when the message would exceed the size limit.
func TelegramSummaryHTML(s Summary) string {
	header := fmt.Sprintf("📰 <b>Daily Engineering Intelligence - %s</b>\n\n", html.EscapeString(s.RunDate))

	var footer strings.Builder
	if s.Link != "" {
		fmt.Fprintf(&footer, "📖 <a href=\"%s\">Read full report</a>\n\n", html.EscapeString(s.Link))
	}
	fmt.Fprintf(&footer, "<i>%s curated today</i>", plural(s.Total, "item"))
	if s.Degraded {
		footer.WriteString("\n<i>Template summary: the synthesis backend was unavailable.</i>")
	}

	var body strings.Builder
	for _, g := range s.Groups {
		section := telegramGroup(g)
		if len([]rune(header+body.String()+section+footer.String())) > telegramMaxMessage {
			break
		}
		body.WriteString(section)
	}
	if s.Total == 0 {
		body.WriteString("No articles were curated today.\n\n")
	}

	return header + body.String() + footer.String()
}

func telegramGroup(g GroupCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> (%d)\n", html.EscapeString(g.Display), g.Count)
	for _, h := range g.Highlights {
		title := html.EscapeString(h.Title)
		if h.URL != "" {
			fmt.Fprintf(&b, "• <a href=\"%s\">%s</a>\n", html.EscapeString(h.URL), title)
		} else {
			fmt.Fprintf(&b, "• %s\n", title)
		}
	}
	b.WriteString("\n")
	return b.String()
}
