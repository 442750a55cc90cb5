package pipeline

import (
	"context"
	"fmt"
	"io"

	"dailyintel/internal/config"
	"dailyintel/internal/curation"
	"dailyintel/internal/extraction"
	"dailyintel/internal/feeds"
	"dailyintel/internal/fetch"
	"dailyintel/internal/llm"
	"dailyintel/internal/logger"
	"dailyintel/internal/messaging"
	"dailyintel/internal/render"
	"dailyintel/internal/synthesis"
)

// Builder helps construct a fully configured Coordinator
type Builder struct {
	cfg        *config.Config
	backend    string
	fetcher    SourceFetcher
	extractor  ArticleExtractor
	primary    synthesis.Backend
	renderer   Renderer
	notifier   messaging.Notifier
	store      RunStore
	output     io.Writer
	dryRun     bool
	skipNotify bool
}

// NewBuilder creates a new builder for cfg
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithBackend overrides the configured synthesis backend kind
func (b *Builder) WithBackend(kind string) *Builder {
	b.backend = kind
	return b
}

// WithSynthesisBackend supplies a ready backend instead of building one
func (b *Builder) WithSynthesisBackend(backend synthesis.Backend) *Builder {
	b.primary = backend
	return b
}

// WithFetcher replaces the feed registry
func (b *Builder) WithFetcher(f SourceFetcher) *Builder {
	b.fetcher = f
	return b
}

// WithExtractor replaces the readability extractor
func (b *Builder) WithExtractor(e ArticleExtractor) *Builder {
	b.extractor = e
	return b
}

// WithRenderer replaces the static page renderer
func (b *Builder) WithRenderer(r Renderer) *Builder {
	b.renderer = r
	return b
}

// WithNotifier replaces the notifiers derived from config
func (b *Builder) WithNotifier(n messaging.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithStore enables run history and the cross-day seen filter
func (b *Builder) WithStore(s RunStore) *Builder {
	b.store = s
	return b
}

// WithOutput sets where progress lines are printed
func (b *Builder) WithOutput(w io.Writer) *Builder {
	b.output = w
	return b
}

// WithDryRun stops runs after synthesis
func (b *Builder) WithDryRun(dryRun bool) *Builder {
	b.dryRun = dryRun
	return b
}

// WithoutNotify disables notifications
func (b *Builder) WithoutNotify() *Builder {
	b.skipNotify = true
	return b
}

// Build constructs a fully configured Coordinator
func (b *Builder) Build(ctx context.Context) (*Coordinator, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	cfg := b.cfg

	fetcher := b.fetcher
	if fetcher == nil {
		fetcher = feeds.NewRegistry(feeds.Options{
			Timeout:      cfg.Fetch.TimeoutDuration(),
			UserAgent:    cfg.Fetch.UserAgent,
			RateInterval: cfg.Fetch.RateIntervalDuration(),
			MaxItems:     cfg.Fetch.MaxItemsPerSource,
		})
	}

	curator := curation.NewEngine(curation.Rules{
		Allowlist:      cfg.Curation.Allowlist,
		Denylist:       cfg.Curation.Denylist,
		TopPerGroup:    cfg.Curation.TopPerGroup,
		Groups:         cfg.Registry(),
		MinTitleLength: cfg.Curation.MinTitleLength,
		MaxAge:         cfg.Curation.MaxAge(),
	})

	mode, err := extraction.ParseMode(cfg.Extraction.Mode)
	if err != nil {
		return nil, err
	}
	extractor := b.extractor
	if extractor == nil {
		extractor = fetch.NewExtractor(
			fetch.WithTimeout(cfg.Extraction.TimeoutDuration()),
			fetch.WithUserAgent(cfg.Fetch.UserAgent),
			fetch.WithMinLength(cfg.Extraction.MinContentChars),
		)
	}
	tracker := extraction.NewTracker(extractor, extraction.Options{
		Mode:            mode,
		Timeout:         cfg.Extraction.TimeoutDuration(),
		MaxConcurrency:  cfg.Extraction.MaxConcurrency,
		MinSnippetChars: cfg.Extraction.MinSnippetChars,
		MinContentChars: cfg.Extraction.MinContentChars,
	})

	primary := b.primary
	if primary == nil {
		primary, err = b.buildBackend(ctx)
		if err != nil {
			return nil, err
		}
	}
	orchestrator := synthesis.NewOrchestrator(primary, cfg.Synthesis.TimeoutDuration())

	renderer := b.renderer
	if renderer == nil {
		renderer = render.NewRenderer(cfg.App.OutputDir)
	}

	notifier := b.notifier
	if notifier == nil && !b.skipNotify {
		notifier = NotifiersFromConfig(cfg.Notify)
	}

	opts := DefaultOptions()
	opts.Sources = cfg.EnabledSources()
	opts.FetchTimeout = cfg.Fetch.TimeoutDuration()
	if cfg.Fetch.MaxConcurrency > 0 {
		opts.FetchConcurrency = cfg.Fetch.MaxConcurrency
	}
	opts.SiteURL = cfg.App.SiteURL
	if cfg.Notify.TopPerGroup > 0 {
		opts.HighlightsPerGroup = cfg.Notify.TopPerGroup
	}
	opts.NotifyTimeout = cfg.Notify.TimeoutDuration()
	opts.DryRun = b.dryRun
	opts.SkipNotify = b.skipNotify
	if b.output != nil {
		opts.Output = b.output
	}

	return NewCoordinator(Deps{
		Fetcher:     fetcher,
		Curator:     curator,
		Tracker:     tracker,
		Synthesizer: orchestrator,
		Renderer:    renderer,
		Notifier:    notifier,
		Store:       b.store,
	}, opts), nil
}

func (b *Builder) buildBackend(ctx context.Context) (synthesis.Backend, error) {
	cfg := b.cfg.Synthesis
	name := cfg.Backend
	if b.backend != "" {
		name = b.backend
	}
	kind, err := synthesis.ParseKind(name)
	if err != nil {
		return nil, err
	}

	return synthesis.NewBackend(ctx, kind, synthesis.Deps{
		CLICommand: cfg.CLI.Command,
		CLIArgs:    cfg.CLI.Args,
		Gemini: llm.Config{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			MaxTokens:   cfg.Gemini.MaxTokens,
			Temperature: cfg.Gemini.Temperature,
		},
	})
}

// NotifiersFromConfig returns the configured destinations, or nil when
// notifications are disabled or none is configured.
func NotifiersFromConfig(cfg config.Notify) messaging.Notifier {
	if !cfg.Enabled {
		return nil
	}

	var multi messaging.Multi
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tg, err := messaging.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.TimeoutDuration())
		if err != nil {
			logger.Warn("Telegram notifications disabled", "error", err.Error())
		} else {
			multi = append(multi, tg)
		}
	}
	if cfg.Slack.WebhookURL != "" {
		slack := messaging.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.TimeoutDuration())
		if cfg.Slack.Username != "" {
			slack.Username = cfg.Slack.Username
		}
		if cfg.Slack.IconEmoji != "" {
			slack.IconEmoji = cfg.Slack.IconEmoji
		}
		multi = append(multi, slack)
	}

	if len(multi) == 0 {
		logger.Info("Notifications enabled but no destination configured")
		return nil
	}
	return multi
}
