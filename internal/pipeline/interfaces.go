package pipeline

import (
	"context"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/extraction"
	"dailyintel/internal/render"
)

// SourceFetcher retrieves the raw item list of one source
type SourceFetcher interface {
	// Fetch returns the source's current items; an error means the source
	// contributed nothing to this run
	Fetch(ctx context.Context, source core.Source) ([]core.RawItem, error)
}

// ArticleExtractor fetches the main text of an article URL
type ArticleExtractor = extraction.Extractor

// Synthesizer turns a curation result into the run's synthesis output
type Synthesizer interface {
	// Synthesize never fails; backend problems surface as a degraded output
	Synthesize(ctx context.Context, result core.CurationResult, runDate time.Time) core.SynthesisOutput
}

// Renderer publishes a finished run
type Renderer interface {
	Render(result core.CurationResult, output core.SynthesisOutput, record core.RunRecord) (render.Artifacts, error)
}

// RunStore persists run history and the URLs already published
type RunStore interface {
	SaveRun(ctx context.Context, record core.RunRecord) error
	MarkSeen(ctx context.Context, runDate string, urls []string) error
	SeenBefore(ctx context.Context, runDate string, urls []string) (map[string]bool, error)
}
