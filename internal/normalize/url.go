package normalize

import (
	"net/url"
	"strings"
	"unicode"
)

// trackingParams are query parameters that never change the content behind a URL.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id",
	"fbclid", "gclid", "msclkid", "mc_cid", "mc_eid",
	"ref", "source",
}

// NormalizeURL removes tracking parameters and normalizes URL format.
// The second return value is false when the URL is not an absolute http(s) URL.
func NormalizeURL(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if parsed.Hostname() == "" {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()
	if (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	parsed.Host = host
	parsed.User = nil

	// Remove common tracking parameters
	query := parsed.Query()
	for _, param := range trackingParams {
		query.Del(param)
	}
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			query.Del(key)
		}
	}
	// Encode sorts by key, so parameter order never changes identity.
	parsed.RawQuery = query.Encode()

	// Remove fragment (anchor) as it doesn't affect content
	parsed.Fragment = ""
	parsed.RawFragment = ""

	// Normalize trailing slash for consistency
	if parsed.Path != "" && parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
	}
	if parsed.Path == "/" {
		parsed.Path = ""
	}

	return strings.ToLower(parsed.String()), true
}

// NormalizeTitle lower-cases a title, strips punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
