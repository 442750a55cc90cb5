package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailyintel/internal/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once per
// invocation by Load and passed explicitly to whatever needs it.
type Config struct {
	App         App        `mapstructure:"app"`
	Logging     Logging    `mapstructure:"logging"`
	SourcesFile string     `mapstructure:"sources_file"`
	Curation    Curation   `mapstructure:"curation"`
	Fetch       Fetch      `mapstructure:"fetch"`
	Extraction  Extraction `mapstructure:"extraction"`
	Synthesis   Synthesis  `mapstructure:"synthesis"`
	Notify      Notify     `mapstructure:"notify"`
	Server      Server     `mapstructure:"server"`

	// Populated from SourcesFile, not from viper.
	Sources []core.Source `mapstructure:"-"`
	// Group names in the order they appear in the sources file.
	SourceGroups []string `mapstructure:"-"`
	// Path of the config file that was read, empty when none was found.
	ConfigFileUsed string `mapstructure:"-"`
}

// App holds general application configuration
type App struct {
	DataDir   string `mapstructure:"data_dir"`
	OutputDir string `mapstructure:"output_dir"`
	SiteURL   string `mapstructure:"site_url"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Curation holds the filtering, grouping and capping rules
type Curation struct {
	Allowlist      []string `mapstructure:"allowlist"`
	Denylist       []string `mapstructure:"denylist"`
	TopPerGroup    int      `mapstructure:"top_per_group"`
	Groups         []string `mapstructure:"groups"`
	MinTitleLength int      `mapstructure:"min_title_length"`
	MaxAgeDays     int      `mapstructure:"max_age_days"`
}

// Registry returns the group registry: the configured list, or the groups
// declared in the sources file when none is configured.
func (c *Config) Registry() []string {
	if len(c.Curation.Groups) > 0 {
		return c.Curation.Groups
	}
	return c.SourceGroups
}

// Fetch holds source fetch configuration
type Fetch struct {
	Timeout           string `mapstructure:"timeout"`
	MaxConcurrency    int    `mapstructure:"max_concurrency"`
	RateInterval      string `mapstructure:"rate_interval"`
	UserAgent         string `mapstructure:"user_agent"`
	MaxItemsPerSource int    `mapstructure:"max_items_per_source"`
}

// Extraction holds full-text extraction configuration
type Extraction struct {
	Mode            string `mapstructure:"mode"`
	Timeout         string `mapstructure:"timeout"`
	MaxConcurrency  int    `mapstructure:"max_concurrency"`
	MinSnippetChars int    `mapstructure:"min_snippet_chars"`
	MinContentChars int    `mapstructure:"min_content_chars"`
}

// Synthesis holds backend selection and backend settings
type Synthesis struct {
	Backend string       `mapstructure:"backend"`
	Timeout string       `mapstructure:"timeout"`
	CLI     CLIConfig    `mapstructure:"cli"`
	Gemini  GeminiConfig `mapstructure:"gemini"`
}

// CLIConfig holds the external generation command
type CLIConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// Notify holds notification configuration
type Notify struct {
	Enabled     bool           `mapstructure:"enabled"`
	Timeout     string         `mapstructure:"timeout"`
	TopPerGroup int            `mapstructure:"top_per_group"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Slack       SlackConfig    `mapstructure:"slack"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// SlackConfig holds Slack configuration
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
	IconEmoji  string `mapstructure:"icon_emoji"`
}

// Server holds HTTP server configuration
type Server struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     string `mapstructure:"read_timeout"`
	WriteTimeout    string `mapstructure:"write_timeout"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
	CORS            CORS   `mapstructure:"cors"`
}

// CORS holds CORS configuration
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from the given file (or .dailyintel.yaml in the
// working or home directory), the environment and .env, then loads the
// sources file and validates the result. Any validation problem is returned
// as ValidationErrors and nothing else should run.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".dailyintel")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ConfigFileUsed = v.ConfigFileUsed()

	postProcessConfig(cfg)
	if cfg.ConfigFileUsed != "" && cfg.SourcesFile != "" && !filepath.IsAbs(cfg.SourcesFile) {
		cfg.SourcesFile = filepath.Join(filepath.Dir(cfg.ConfigFileUsed), cfg.SourcesFile)
	}

	if cfg.SourcesFile != "" {
		sf, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, ValidationErrors{{Field: "sources_file", Message: err.Error()}}
		}
		cfg.Sources = sf.Sources
		cfg.SourceGroups = sf.Groups
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.data_dir", ".dailyintel")
	v.SetDefault("app.output_dir", "site")
	v.SetDefault("app.site_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sources_file", "sources.yaml")

	v.SetDefault("curation.top_per_group", 5)
	v.SetDefault("curation.min_title_length", 10)
	v.SetDefault("curation.max_age_days", 7)

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_concurrency", 5)
	v.SetDefault("fetch.rate_interval", "750ms")
	v.SetDefault("fetch.user_agent", "dailyintel/1.0 (+https://github.com/dailyintel)")
	v.SetDefault("fetch.max_items_per_source", 50)

	v.SetDefault("extraction.mode", "best_effort")
	v.SetDefault("extraction.timeout", "30s")
	v.SetDefault("extraction.max_concurrency", 4)
	v.SetDefault("extraction.min_snippet_chars", 280)
	v.SetDefault("extraction.min_content_chars", 100)

	v.SetDefault("synthesis.backend", "deterministic")
	v.SetDefault("synthesis.timeout", "300s")
	v.SetDefault("synthesis.cli.command", "gemini")
	v.SetDefault("synthesis.gemini.model", "gemini-2.0-flash")
	v.SetDefault("synthesis.gemini.max_tokens", 8192)
	v.SetDefault("synthesis.gemini.temperature", 0.3)

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.top_per_group", 3)
	v.SetDefault("notify.slack.username", "dailyintel")
	v.SetDefault("notify.slack.icon_emoji", ":newspaper:")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.enabled", false)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "synthesis.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
	})

	bindEnvKeys(v, "synthesis.cli.command", []string{
		"LLM_CLI_COMMAND",
	})

	bindEnvKeys(v, "synthesis.backend", []string{
		"DAILYINTEL_BACKEND",
	})

	bindEnvKeys(v, "notify.telegram.bot_token", []string{
		"TELEGRAM_BOT_TOKEN",
	})

	bindEnvKeys(v, "notify.telegram.chat_id", []string{
		"TELEGRAM_CHAT_ID",
	})

	bindEnvKeys(v, "notify.slack.webhook_url", []string{
		"SLACK_WEBHOOK_URL",
		"SLACK_WEBHOOK",
	})

	bindEnvKeys(v, "app.site_url", []string{
		"SITE_URL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig normalizes paths and keyword lists
func postProcessConfig(cfg *Config) {
	cfg.App.DataDir = expandPath(cfg.App.DataDir)
	cfg.App.OutputDir = expandPath(cfg.App.OutputDir)
	cfg.SourcesFile = expandPath(cfg.SourcesFile)

	cfg.Curation.Allowlist = normalizeKeywords(cfg.Curation.Allowlist)
	cfg.Curation.Denylist = normalizeKeywords(cfg.Curation.Denylist)
	cfg.Synthesis.Backend = strings.ToLower(strings.TrimSpace(cfg.Synthesis.Backend))
	cfg.Extraction.Mode = strings.ToLower(strings.TrimSpace(cfg.Extraction.Mode))
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func normalizeKeywords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// duration parses a validated duration string, falling back when empty.
func duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (f Fetch) TimeoutDuration() time.Duration      { return duration(f.Timeout, 30*time.Second) }
func (f Fetch) RateIntervalDuration() time.Duration { return duration(f.RateInterval, 0) }
func (e Extraction) TimeoutDuration() time.Duration { return duration(e.Timeout, 30*time.Second) }
func (s Synthesis) TimeoutDuration() time.Duration  { return duration(s.Timeout, 300*time.Second) }
func (n Notify) TimeoutDuration() time.Duration     { return duration(n.Timeout, 10*time.Second) }

// MaxAge converts MaxAgeDays into a duration; zero disables the age filter.
func (c Curation) MaxAge() time.Duration {
	if c.MaxAgeDays <= 0 {
		return 0
	}
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

func (s Server) ReadTimeoutDuration() time.Duration     { return duration(s.ReadTimeout, 15*time.Second) }
func (s Server) WriteTimeoutDuration() time.Duration    { return duration(s.WriteTimeout, 15*time.Second) }
func (s Server) ShutdownTimeoutDuration() time.Duration { return duration(s.ShutdownTimeout, 10*time.Second) }
