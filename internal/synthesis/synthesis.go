// Package synthesis turns a curation result into a grounded digest and deep
// post, falling back to a deterministic backend whenever the configured
// external backend fails.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/llm"
	"dailyintel/internal/logger"
)

// ErrMalformedOutput is returned when backend output cannot be parsed into
// the required shape.
var ErrMalformedOutput = errors.New("malformed backend output")

// Kind identifies a backend variant.
type Kind string

const (
	KindDeterministic Kind = "deterministic"
	KindCLI           Kind = "cli"
	KindGemini        Kind = "gemini"
)

// ParseKind maps a config value to a Kind. "nollm" is accepted as an alias
// for the deterministic backend.
func ParseKind(s string) (Kind, error) {
	switch k := strings.ToLower(strings.TrimSpace(s)); k {
	case "", string(KindDeterministic), "nollm":
		return KindDeterministic, nil
	case string(KindCLI):
		return KindCLI, nil
	case string(KindGemini):
		return KindGemini, nil
	default:
		return "", fmt.Errorf("unknown synthesis backend %q", s)
	}
}

// Backend produces the two synthesis sections from one grounding snapshot.
type Backend interface {
	Name() string
	ProduceDigest(ctx context.Context, in core.SynthesisInput) ([]core.Bullet, error)
	ProduceDeepPost(ctx context.Context, in core.SynthesisInput) (core.DeepPost, error)
}

// Deps carries what the external variants need.
type Deps struct {
	CLICommand string
	CLIArgs    []string
	Gemini     llm.Config
}

// NewBackend constructs the variant for kind. It is the only place that
// switches on Kind.
func NewBackend(ctx context.Context, kind Kind, deps Deps) (Backend, error) {
	switch kind {
	case KindDeterministic:
		return NewDeterministicBackend(), nil
	case KindCLI:
		if deps.CLICommand == "" {
			return nil, fmt.Errorf("cli backend requires a command")
		}
		gen := &CLIGenerator{Command: deps.CLICommand, Args: deps.CLIArgs}
		return NewExternalBackend("cli:"+deps.CLICommand, gen), nil
	case KindGemini:
		client, err := llm.NewClient(ctx, deps.Gemini)
		if err != nil {
			return nil, err
		}
		return NewExternalBackend("gemini:"+client.ModelName(), &GeminiGenerator{Client: client}), nil
	default:
		return nil, fmt.Errorf("unknown synthesis backend %q", kind)
	}
}

// BuildInput derives the grounding context from a curation result. Entries
// keep group and rank order; articles with neither extracted text nor a
// snippet contribute nothing.
func BuildInput(result core.CurationResult) core.SynthesisInput {
	in := core.SynthesisInput{RunDate: result.RunDate}
	for _, g := range result.Groups {
		ig := core.InputGroup{Name: g.Name}
		for _, a := range g.Articles {
			text := strings.TrimSpace(a.BestText())
			if text == "" {
				continue
			}
			ig.Entries = append(ig.Entries, core.InputEntry{
				Fingerprint: a.Fingerprint,
				Title:       a.Title,
				Source:      a.Source,
				URL:         a.URL,
				Text:        text,
				Extracted:   a.ExtractionStatus == core.ExtractionSuccess && strings.TrimSpace(a.ExtractedText) != "",
			})
		}
		if len(ig.Entries) > 0 {
			in.Groups = append(in.Groups, ig)
		}
	}
	return in
}

// Orchestrator runs the primary backend under a timeout and falls back to
// the deterministic backend on any failure.
type Orchestrator struct {
	primary  Backend
	fallback Backend
	timeout  time.Duration
}

// NewOrchestrator creates an orchestrator. A nil primary means the
// deterministic backend.
func NewOrchestrator(primary Backend, timeout time.Duration) *Orchestrator {
	fallback := NewDeterministicBackend()
	if primary == nil {
		primary = fallback
	}
	return &Orchestrator{primary: primary, fallback: fallback, timeout: timeout}
}

// Primary returns the configured backend.
func (o *Orchestrator) Primary() Backend {
	return o.primary
}

// Synthesize produces the run's SynthesisOutput. It never fails: an empty
// curation result yields an empty output and a failing primary backend
// yields the deterministic output marked degraded.
func (o *Orchestrator) Synthesize(ctx context.Context, result core.CurationResult, runDate time.Time) core.SynthesisOutput {
	if result.RunDate == "" && !runDate.IsZero() {
		result.RunDate = runDate.Format("2006-01-02")
	}
	in := BuildInput(result)

	if in.Len() == 0 {
		logger.Info("Nothing to synthesize", "run_date", in.RunDate, "backend", o.primary.Name())
		return emptyOutput(o.primary.Name())
	}

	out, err := o.run(ctx, o.primary, in)
	if err == nil {
		grounded, report := Ground(in, out)
		report.log(o.primary.Name())
		if len(grounded.Digest) > 0 {
			return grounded
		}
		err = fmt.Errorf("%w: no digest bullet cites a supplied article", ErrMalformedOutput)
	}

	logger.Warn("Synthesis backend failed, using deterministic fallback", "backend", o.primary.Name(), "error", err.Error())

	out, _ = o.run(context.WithoutCancel(ctx), o.fallback, in)
	out, _ = Ground(in, out)
	out.Degraded = true
	out.FailureReason = err.Error()
	return out
}

// run makes the serial digest then deep-post calls under the timeout.
func (o *Orchestrator) run(ctx context.Context, b Backend, in core.SynthesisInput) (out core.SynthesisOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", b.Name(), r)
		}
	}()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	digest, err := b.ProduceDigest(ctx, in)
	if err != nil {
		return out, fmt.Errorf("digest: %w", err)
	}
	deep, err := b.ProduceDeepPost(ctx, in)
	if err != nil {
		return out, fmt.Errorf("deep post: %w", err)
	}
	// A backend that ignores ctx can still return after the deadline.
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("deep post: %w", err)
	}

	logger.Debug("Backend finished", "backend", b.Name(), "bullets", len(digest), "trends", len(deep.Trends), "duration", time.Since(start).String())
	return core.SynthesisOutput{Digest: digest, DeepPost: deep, BackendUsed: b.Name()}, nil
}

func emptyOutput(backend string) core.SynthesisOutput {
	return core.SynthesisOutput{
		Digest:      []core.Bullet{},
		DeepPost:    core.DeepPost{Trends: []core.Trend{}, ActionItems: []string{}},
		BackendUsed: backend,
	}
}
