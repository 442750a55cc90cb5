package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"google.golang.org/genai"

	"dailyintel/internal/core"
	"dailyintel/internal/llm"
)

// Shape names the structured response a prompt expects.
type Shape string

const (
	ShapeDigest   Shape = "digest"
	ShapeDeepPost Shape = "deep_post"
)

// Generator sends a prompt to an external text-generation process.
type Generator interface {
	Generate(ctx context.Context, prompt string, shape Shape) (string, error)
}

// ExternalBackend serializes the grounding context into a prompt, hands it
// to a Generator and parses the structured reply.
type ExternalBackend struct {
	name string
	gen  Generator
}

// NewExternalBackend wraps gen as a Backend named name.
func NewExternalBackend(name string, gen Generator) *ExternalBackend {
	return &ExternalBackend{name: name, gen: gen}
}

func (b *ExternalBackend) Name() string { return b.name }

func (b *ExternalBackend) ProduceDigest(ctx context.Context, in core.SynthesisInput) ([]core.Bullet, error) {
	raw, err := b.gen.Generate(ctx, DigestPrompt(in), ShapeDigest)
	if err != nil {
		return nil, err
	}
	return ParseDigest(raw)
}

func (b *ExternalBackend) ProduceDeepPost(ctx context.Context, in core.SynthesisInput) (core.DeepPost, error) {
	raw, err := b.gen.Generate(ctx, DeepPostPrompt(in), ShapeDeepPost)
	if err != nil {
		return core.DeepPost{}, err
	}
	return ParseDeepPost(raw)
}

type digestResponse struct {
	Bullets *[]struct {
		Text string `json:"text"`
		ID   string `json:"id"`
	} `json:"bullets"`
}

type deepPostResponse struct {
	Trends *[]struct {
		Title       string   `json:"title"`
		Explanation string   `json:"explanation"`
		IDs         []string `json:"ids"`
	} `json:"trends"`
	Analysis    *string  `json:"analysis"`
	ActionItems []string `json:"action_items"`
}

// ParseDigest decodes a digest reply. Citations are not checked here.
func ParseDigest(raw string) ([]core.Bullet, error) {
	var resp digestResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Bullets == nil {
		return nil, fmt.Errorf("%w: missing bullets", ErrMalformedOutput)
	}

	bullets := make([]core.Bullet, 0, len(*resp.Bullets))
	for _, b := range *resp.Bullets {
		bullets = append(bullets, core.Bullet{Text: strings.TrimSpace(b.Text), Fingerprint: strings.TrimSpace(b.ID)})
	}
	return bullets, nil
}

// ParseDeepPost decodes a deep-post reply.
func ParseDeepPost(raw string) (core.DeepPost, error) {
	var resp deepPostResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return core.DeepPost{}, err
	}
	if resp.Trends == nil || resp.Analysis == nil {
		return core.DeepPost{}, fmt.Errorf("%w: missing trends or analysis", ErrMalformedOutput)
	}

	post := core.DeepPost{Analysis: strings.TrimSpace(*resp.Analysis), ActionItems: []string{}}
	for _, t := range *resp.Trends {
		post.Trends = append(post.Trends, core.Trend{
			Title:        strings.TrimSpace(t.Title),
			Explanation:  strings.TrimSpace(t.Explanation),
			Fingerprints: t.IDs,
		})
	}
	for _, item := range resp.ActionItems {
		if item = strings.TrimSpace(item); item != "" {
			post.ActionItems = append(post.ActionItems, item)
		}
	}
	return post, nil
}

// decodeJSON accepts a bare JSON object, one wrapped in a markdown code
// fence, or one surrounded by prose.
func decodeJSON(raw string, v any) error {
	text := stripFences(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in response", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

const cliWaitDelay = 2 * time.Second

// CLIGenerator runs an external command as [Command, Args..., prompt] and
// returns its stdout.
type CLIGenerator struct {
	Command string
	Args    []string
}

// Generate runs the command; the context bounds its lifetime.
func (g *CLIGenerator) Generate(ctx context.Context, prompt string, _ Shape) (string, error) {
	args := append(append([]string(nil), g.Args...), prompt)
	cmd := exec.CommandContext(ctx, g.Command, args...)
	// Children that inherit stdout must not hold Wait open past cancellation.
	cmd.WaitDelay = cliWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", g.Command, ctx.Err())
		}
		return "", fmt.Errorf("%s failed: %w: %s", g.Command, err, tail(stderr.String(), 500))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%w: %s produced no output", ErrMalformedOutput, g.Command)
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// GeminiGenerator requests JSON output constrained by a response schema.
type GeminiGenerator struct {
	Client *llm.Client
}

// Generate calls Gemini with the schema matching shape.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, shape Shape) (string, error) {
	var schema *genai.Schema
	switch shape {
	case ShapeDigest:
		schema = llm.DigestSchema()
	case ShapeDeepPost:
		schema = llm.DeepPostSchema()
	default:
		return "", fmt.Errorf("unknown response shape %q", shape)
	}
	return g.Client.GenerateJSON(ctx, prompt, schema)
}
