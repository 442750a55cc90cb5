package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"dailyintel/internal/core"
)

func testResult() core.CurationResult {
	var data []core.CanonicalArticle
	for _, title := range []string{"Iceberg 1.6", "Spark 4 <preview>", "Delta 3.2", "Hudi 1.0"} {
		data = append(data, core.CanonicalArticle{Title: title, URL: "https://x.dev/" + strings.Fields(title)[0], Source: "feed"})
	}
	return core.CurationResult{
		RunDate: "2024-05-10",
		Groups: []core.Group{
			{Name: "data_platform", Articles: data},
			{Name: "ai_agents", Articles: []core.CanonicalArticle{{Title: "Agents & tools", URL: "https://y.dev/a", Source: "blog"}}},
		},
	}
}

func TestBuildSummary(t *testing.T) {
	out := core.SynthesisOutput{Digest: make([]core.Bullet, 4), BackendUsed: "deterministic", Degraded: true}
	s := BuildSummary(testResult(), out, "https://intel.example.com/", 0)

	if s.Total != 5 || s.DigestLen != 4 || !s.Degraded {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Link != "https://intel.example.com/daily/2024-05-10.html" {
		t.Errorf("Link = %q", s.Link)
	}
	if len(s.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(s.Groups))
	}
	if s.Groups[0].Display != "Data Platform" || s.Groups[0].Count != 4 {
		t.Errorf("group = %+v", s.Groups[0])
	}
	if len(s.Groups[0].Highlights) != DefaultHighlights {
		t.Errorf("expected top %d highlights, got %d", DefaultHighlights, len(s.Groups[0].Highlights))
	}
}

func TestPageURL(t *testing.T) {
	if got := PageURL("", "2024-05-10"); got != "" {
		t.Errorf("no site URL should give no link, got %q", got)
	}
	if got := PageURL("https://a.dev", "2024-05-10"); got != "https://a.dev/daily/2024-05-10.html" {
		t.Errorf("PageURL = %q", got)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("short", 10); got != "short" {
		t.Errorf("shorten = %q", got)
	}
	if got := shorten(strings.Repeat("é", 20), 10); got != strings.Repeat("é", 7)+"..." {
		t.Errorf("shorten = %q", got)
	}
}

func TestTelegramSummaryHTML(t *testing.T) {
	s := BuildSummary(testResult(), core.SynthesisOutput{}, "https://intel.example.com", 3)
	msg := TelegramSummaryHTML(s)

	for _, want := range []string{
		"<b>Daily Engineering Intelligence - 2024-05-10</b>",
		"<b>Data Platform</b> (4)",
		"Spark 4 &lt;preview&gt;",
		"Agents &amp; tools",
		`<a href="https://intel.example.com/daily/2024-05-10.html">Read full report</a>`,
		"<i>5 items curated today</i>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Hudi") {
		t.Error("only the top 3 per group should be listed")
	}
}

func TestTelegramSummaryHTMLRespectsLimit(t *testing.T) {
	s := Summary{RunDate: "2024-05-10", Total: 400}
	for i := 0; i < 40; i++ {
		g := GroupCount{Display: "Group", Count: 10}
		for j := 0; j < 3; j++ {
			g.Highlights = append(g.Highlights, Highlight{Title: strings.Repeat("x", 80), URL: "https://example.com/" + strings.Repeat("p", 40)})
		}
		s.Groups = append(s.Groups, g)
	}

	if n := len([]rune(TelegramSummaryHTML(s))); n > telegramMaxMessage {
		t.Errorf("message length %d exceeds limit", n)
	}
}

func TestTelegramNotifier(t *testing.T) {
	var mu sync.Mutex
	var sent url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			mu.Lock()
			sent = r.PostForm
			mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("TOKEN", "42", time.Second)
	if err != nil {
		t.Fatalf("NewTelegramNotifier: %v", err)
	}
	n.WithEndpoint(srv.URL + "/bot%s/%s")

	s := BuildSummary(testResult(), core.SynthesisOutput{}, "", 3)
	if err := n.Notify(context.Background(), s); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if sent.Get("chat_id") != "42" || sent.Get("parse_mode") != "HTML" {
		t.Errorf("unexpected request: %v", sent)
	}
	if !strings.Contains(sent.Get("text"), "Data Platform") {
		t.Errorf("text = %q", sent.Get("text"))
	}
}

func TestNewTelegramNotifierValidation(t *testing.T) {
	if _, err := NewTelegramNotifier("", "42", 0); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := NewTelegramNotifier("TOKEN", "not-a-number", 0); err == nil {
		t.Error("expected error for invalid chat id")
	}
}

func TestSlackNotifier(t *testing.T) {
	var got SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, time.Second)
	s := BuildSummary(testResult(), core.SynthesisOutput{}, "https://intel.example.com", 3)
	if err := n.Notify(context.Background(), s); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got.Username != "dailyintel" || len(got.Blocks) != 5 {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Blocks[0].Type != "header" || got.Blocks[len(got.Blocks)-1].Type != "context" {
		t.Errorf("unexpected block layout: %+v", got.Blocks)
	}
	if !strings.Contains(got.Blocks[2].Text.Text, "Spark 4 &lt;preview&gt;") {
		t.Errorf("titles should be escaped: %q", got.Blocks[2].Text.Text)
	}
}

func TestSlackNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL, time.Second).Notify(context.Background(), Summary{RunDate: "2024-05-10"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("expected status error, got %v", err)
	}

	if err := NewSlackNotifier("", 0).Notify(context.Background(), Summary{}); err == nil {
		t.Error("expected error without webhook URL")
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, Summary) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	failing := &stubNotifier{name: "a", err: errors.New("down")}
	ok := &stubNotifier{name: "b"}

	err := Multi{failing, ok}.Notify(context.Background(), Summary{})
	if err == nil || !strings.Contains(err.Error(), "a: down") {
		t.Errorf("expected joined error, got %v", err)
	}
	if ok.calls != 1 {
		t.Error("a failing notifier must not stop the others")
	}
	if name := (Multi{failing, ok}).Name(); name != "a,b" {
		t.Errorf("Name = %q", name)
	}
}
