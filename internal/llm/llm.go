// Package llm wraps the Gemini API client used by the external synthesis
// backend.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.0-flash"
	// DefaultMaxTokens bounds a single structured response.
	DefaultMaxTokens = int32(8192)
)

// ErrMissingAPIKey is returned by NewClient without an API key.
var ErrMissingAPIKey = errors.New("gemini API key is required. Set GEMINI_API_KEY or synthesis.gemini.api_key in the config file")

// Config holds the settings for a Client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// Client talks to Gemini through the genai SDK.
type Client struct {
	modelName string
	cfg       Config
	gClient   *genai.Client
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	ResponseSchema *genai.Schema // Optional: forces a JSON response of this shape
}

// NewClient creates a Gemini client from explicit configuration.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{modelName: cfg.Model, cfg: cfg, gClient: gClient}, nil
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.modelName
}

// GenerateText generates text using the LLM with specified options
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, c.buildConfig(options))
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from LLM")
	}
	return text, nil
}

// GenerateJSON asks for a response matching schema.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	return c.GenerateText(ctx, prompt, TextGenerationOptions{ResponseSchema: schema})
}

func (c *Client) buildConfig(options TextGenerationOptions) *genai.GenerateContentConfig {
	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := options.Temperature
	if temperature <= 0 {
		temperature = c.cfg.Temperature
	}

	config := &genai.GenerateContentConfig{MaxOutputTokens: maxTokens}
	if temperature > 0 {
		config.Temperature = &temperature
	}
	if options.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = options.ResponseSchema
	}
	return config
}
