package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"dailyintel/internal/logger"
)

// ValidationError identifies one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	lines := make([]string, len(e))
	for i, ve := range e {
		lines[i] = ve.Error()
	}
	return fmt.Sprintf("configuration errors:\n- %s", strings.Join(lines, "\n- "))
}

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, ve := range e {
		out[i] = ve.Field
	}
	return out
}

// Known backend identifiers. Kept here so validation does not depend on the
// synthesis package.
var knownBackends = map[string]bool{"deterministic": true, "nollm": true, "cli": true, "gemini": true}

var knownExtractionModes = map[string]bool{"always": true, "best_effort": true, "off": true}

// Validate checks the whole configuration and returns ValidationErrors when
// anything is wrong. It is safe to call again after flag overrides.
func Validate(cfg *Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	validateSources(cfg, add)

	if cfg.Curation.TopPerGroup < 1 || cfg.Curation.TopPerGroup > 20 {
		add("curation.top_per_group", "must be between 1 and 20, got %d", cfg.Curation.TopPerGroup)
	}
	if cfg.Curation.MinTitleLength < 0 {
		add("curation.min_title_length", "must not be negative")
	}
	if cfg.Curation.MaxAgeDays < 0 {
		add("curation.max_age_days", "must not be negative")
	}
	for _, w := range cfg.Curation.Allowlist {
		for _, d := range cfg.Curation.Denylist {
			if w == d {
				logger.Warn("Keyword present in both allowlist and denylist; denylist wins", "keyword", w)
			}
		}
	}

	if cfg.Fetch.MaxConcurrency < 1 {
		add("fetch.max_concurrency", "must be at least 1")
	}
	if cfg.Extraction.MaxConcurrency < 1 {
		add("extraction.max_concurrency", "must be at least 1")
	}
	if !knownExtractionModes[cfg.Extraction.Mode] {
		add("extraction.mode", "unknown mode %q (supported: always, best_effort, off)", cfg.Extraction.Mode)
	}

	switch cfg.Synthesis.Backend {
	case "gemini":
		if cfg.Synthesis.Gemini.APIKey == "" {
			add("synthesis.gemini.api_key", "required for the gemini backend. Set GEMINI_API_KEY or synthesis.gemini.api_key")
		}
	case "cli":
		if strings.TrimSpace(cfg.Synthesis.CLI.Command) == "" {
			add("synthesis.cli.command", "required for the cli backend. Set LLM_CLI_COMMAND or synthesis.cli.command")
		}
	}
	if !knownBackends[cfg.Synthesis.Backend] {
		add("synthesis.backend", "unknown backend %q (supported: deterministic, cli, gemini)", cfg.Synthesis.Backend)
	}

	if cfg.Notify.Telegram.BotToken != "" {
		if _, err := strconv.ParseInt(cfg.Notify.Telegram.ChatID, 10, 64); err != nil {
			add("notify.telegram.chat_id", "must be a numeric chat id when a bot token is set")
		}
	}
	if cfg.Notify.Slack.WebhookURL != "" && !isHTTPURL(cfg.Notify.Slack.WebhookURL) {
		add("notify.slack.webhook_url", "must be an absolute http(s) URL")
	}

	durations := map[string]string{
		"fetch.timeout":           cfg.Fetch.Timeout,
		"fetch.rate_interval":     cfg.Fetch.RateInterval,
		"extraction.timeout":      cfg.Extraction.Timeout,
		"synthesis.timeout":       cfg.Synthesis.Timeout,
		"notify.timeout":          cfg.Notify.Timeout,
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
	}
	for _, key := range sortedKeys(durations) {
		value := durations[key]
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			add(key, "invalid duration %q", value)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSources(cfg *Config, add func(field, format string, args ...any)) {
	enabled := 0
	seen := make(map[string]bool)
	for i, src := range cfg.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if src.Name != "" {
			field = fmt.Sprintf("sources[%s]", src.Name)
		}

		if strings.TrimSpace(src.Name) == "" {
			add(field+".name", "is required")
		} else if seen[src.Name] {
			add(field+".name", "duplicate source name")
		}
		seen[src.Name] = true

		if !src.Kind.Valid() {
			add(field+".kind", "unknown kind %q (supported: rss, api, scrape)", src.Kind)
		}
		if !isHTTPURL(src.Endpoint) {
			add(field+".url", "must be an absolute http(s) URL, got %q", src.Endpoint)
		}
		if src.Priority < 1 || src.Priority > 10 {
			add(field+".priority", "must be between 1 and 10, got %d", src.Priority)
		}
		if src.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		add("sources", "at least one enabled source is required")
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
