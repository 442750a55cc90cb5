// Package fetch downloads article pages and extracts their readable text.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; dailyintel/1.0)"
	defaultMinLength = 100
	defaultMaxLength = 20000
	maxBodyBytes     = 5 << 20
)

// ErrNoContent is returned when a page was fetched but no usable text could
// be extracted from it.
var ErrNoContent = errors.New("no readable content")

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch URL %s: status code %d", e.URL, e.Code)
}

// Extractor fetches a page and returns its main text.
type Extractor struct {
	client    *http.Client
	userAgent string
	minLength int
	maxLength int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(e *Extractor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithMinLength sets how many characters of text count as a successful
// extraction.
func WithMinLength(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minLength = n
		}
	}
}

// WithMaxLength truncates extracted text.
func WithMaxLength(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxLength = n
		}
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		minLength: defaultMinLength,
		maxLength: defaultMaxLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches rawURL and returns its readable text. Readability is tried
// first; pages it cannot handle fall back to common content selectors.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	body, err := e.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	text := ""
	if article, err := readability.FromReader(bytes.NewReader(body), parsedURL); err == nil {
		text = cleanText(article.TextContent)
	}
	if utf8.RuneCountInString(text) < e.minLength {
		if fallback, err := ParseMainContent(bytes.NewReader(body)); err == nil && len(fallback) > len(text) {
			text = fallback
		}
	}

	if text == "" || utf8.RuneCountInString(text) < e.minLength {
		return "", fmt.Errorf("%w: %s", ErrNoContent, rawURL)
	}
	if len(text) > e.maxLength {
		text = truncate(text, e.maxLength)
	}
	return text, nil
}

func (e *Extractor) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", rawURL, err)
	}
	return body, nil
}

var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content", ".post-body", ".article-body",
	"[role='main']",
	".content", "#content",
}

// ParseMainContent extracts paragraph text from an HTML document using
// common content containers, falling back to the whole body.
func ParseMainContent(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner").Remove()

	var b strings.Builder
	collect := func(s *goquery.Selection) {
		s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
			if t := strings.TrimSpace(item.Text()); t != "" {
				b.WriteString(t)
				b.WriteString("\n\n")
			}
		})
	}

	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) { collect(s) })
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		collect(doc.Find("body"))
	}

	return cleanText(b.String()), nil
}

// ExtractTitle returns the page title from <title>, og:title or the first h1.
func ExtractTitle(r io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if og, _ := doc.Find("meta[property='og:title']").Attr("content"); strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

var (
	blankLines = regexp.MustCompile(`\n\s*\n+`)
	spaceRuns  = regexp.MustCompile(`[ \t]+`)
)

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimSpace(s[:n])
}
