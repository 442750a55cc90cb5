// Package pipeline sequences one daily run: fetch, normalize, curate,
// extract, synthesize, then hand the result to rendering, notification and
// history.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dailyintel/internal/core"
	"dailyintel/internal/curation"
	"dailyintel/internal/extraction"
	"dailyintel/internal/logger"
	"dailyintel/internal/messaging"
	"dailyintel/internal/normalize"
	"dailyintel/internal/render"
)

const dateLayout = "2006-01-02"

// Options holds run-level settings
type Options struct {
	Sources            []core.Source // in configuration order
	FetchConcurrency   int
	FetchTimeout       time.Duration
	SiteURL            string
	HighlightsPerGroup int
	NotifyTimeout      time.Duration

	// DryRun stops after synthesis: nothing is rendered, sent or stored.
	DryRun     bool
	SkipNotify bool

	// Output receives the step-by-step progress lines. Defaults to stdout.
	Output io.Writer
}

// DefaultOptions returns sensible default options
func DefaultOptions() Options {
	return Options{
		FetchConcurrency:   4,
		FetchTimeout:       30 * time.Second,
		HighlightsPerGroup: messaging.DefaultHighlights,
		NotifyTimeout:      10 * time.Second,
		Output:             os.Stdout,
	}
}

// Deps are the collaborators a Coordinator drives. Fetcher, Curator and
// Synthesizer are required.
type Deps struct {
	Fetcher     SourceFetcher
	Normalizer  *normalize.Normalizer
	Curator     *curation.Engine
	Tracker     *extraction.Tracker
	Synthesizer Synthesizer
	Renderer    Renderer
	Notifier    messaging.Notifier
	Store       RunStore
}

// Coordinator runs the pipeline for a date
type Coordinator struct {
	deps    Deps
	opts    Options
	pending sync.WaitGroup
}

// NewCoordinator creates a coordinator. Missing optional collaborators
// disable their stage.
func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New()
	}
	if deps.Tracker == nil {
		deps.Tracker = extraction.NewTracker(nil, extraction.Options{Mode: extraction.ModeOff})
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Coordinator{deps: deps, opts: opts}
}

// Result is everything a run produced
type Result struct {
	Record     core.RunRecord
	Curation   core.CurationResult
	Output     core.SynthesisOutput
	Extraction extraction.Report
	Dropped    []normalize.DroppedItem
	Artifacts  render.Artifacts

	// RenderErr is set when publishing failed; the run is then not persisted.
	RenderErr error
	// Persisted reports whether the run record and seen URLs were stored.
	Persisted bool
}

// Run executes the pipeline for runDate. Source, extraction, backend,
// notification and storage failures are absorbed into the result; only
// missing collaborators and cancellation are returned as errors, and a
// cancelled run persists nothing.
func (c *Coordinator) Run(ctx context.Context, runDate time.Time) (*Result, error) {
	if c.deps.Fetcher == nil || c.deps.Curator == nil || c.deps.Synthesizer == nil {
		return nil, fmt.Errorf("pipeline requires a fetcher, a curator and a synthesizer")
	}

	date := runDate.Format(dateLayout)
	out := c.opts.Output
	record := core.RunRecord{ID: uuid.NewString(), RunDate: date, StartedAt: time.Now().UTC()}
	res := &Result{}

	logger.Info("Starting run", "run_id", record.ID, "run_date", date, "sources", len(c.opts.Sources))

	// Step 1: Fetch every source
	fmt.Fprintf(out, "📥 Step 1/6: Fetching %d sources...\n", len(c.opts.Sources))
	batches, failures := c.fetchAll(ctx, c.opts.Sources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record.SourceFailures = failures
	for _, b := range batches {
		record.Discovered += len(b.Items)
	}
	fmt.Fprintf(out, "   ✓ %d items from %d sources (%d failed)\n\n", record.Discovered, len(c.opts.Sources)-len(failures), len(failures))

	// Step 2: Normalize and drop what earlier runs already published
	fmt.Fprintf(out, "🧹 Step 2/6: Normalizing and deduplicating...\n")
	norm := c.deps.Normalizer.Normalize(batches)
	res.Dropped = norm.Dropped
	record.DroppedItems = len(norm.Dropped)
	record.Canonical = len(norm.Articles)

	articles, previously := c.dropPreviouslySeen(ctx, date, norm.Articles)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record.PreviouslySeen = previously
	fmt.Fprintf(out, "   ✓ %d unique articles (%d duplicates merged, %d seen on earlier days)\n\n", record.Canonical, norm.Merged, previously)

	// Step 3: Curate
	fmt.Fprintf(out, "🗂️  Step 3/6: Curating...\n")
	curated := c.deps.Curator.Curate(runDate, articles)
	record.Selected = curated.Len()
	record.Rejected = len(curated.Rejected)
	fmt.Fprintf(out, "   ✓ %d selected in %d groups, %d rejected\n\n", record.Selected, len(curated.Groups), record.Rejected)

	// Step 4: Extract full text
	fmt.Fprintf(out, "📄 Step 4/6: Extracting article text...\n")
	curated, report := c.deps.Tracker.Apply(ctx, curated)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Extraction = report
	record.Extracted, record.ExtractFailed, record.ExtractSkipped = report.Success, report.Failed, report.Skipped
	fmt.Fprintf(out, "   ✓ %d extracted, %d failed, %d skipped\n\n", report.Success, report.Failed, report.Skipped)

	// Step 5: Synthesize
	fmt.Fprintf(out, "🧠 Step 5/6: Synthesizing...\n")
	output := c.deps.Synthesizer.Synthesize(ctx, curated, runDate)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record.Backend = output.BackendUsed
	record.Degraded = output.Degraded
	if output.Degraded {
		fmt.Fprintf(out, "   ⚠️  Backend failed, used %s fallback: %s\n", output.BackendUsed, output.FailureReason)
	}
	fmt.Fprintf(out, "   ✓ %d digest bullets, %d trends\n\n", len(output.Digest), len(output.DeepPost.Trends))

	res.Curation = curated
	res.Output = output

	if c.opts.DryRun {
		record.FinishedAt = time.Now().UTC()
		res.Record = record
		fmt.Fprintf(out, "⏭️  Step 6/6: Dry run, skipping publish\n\n")
		return res, nil
	}

	// Step 6: Publish
	fmt.Fprintf(out, "✍️  Step 6/6: Publishing...\n")
	record.FinishedAt = time.Now().UTC()
	res.Record = record

	if c.deps.Renderer != nil {
		art, err := c.deps.Renderer.Render(curated, output, record)
		if err != nil {
			logger.Error("Rendering failed", err, "run_date", date)
			fmt.Fprintf(out, "   ⚠️  Rendering failed: %v\n\n", err)
			res.RenderErr = err
			return res, nil
		}
		res.Artifacts = art
		fmt.Fprintf(out, "   ✓ Saved to %s\n", art.DailyPage)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.notify(ctx, curated, output)

	res.Persisted = c.persist(ctx, record, curated)
	fmt.Fprintln(out)

	logger.Info("Run complete",
		"run_id", record.ID,
		"run_date", date,
		"selected", record.Selected,
		"backend", record.Backend,
		"degraded", record.Degraded,
		"source_failures", len(record.SourceFailures))
	return res, nil
}

// Wait blocks until notifications started by Run have finished.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// fetchAll queries sources concurrently. Batches keep configuration order
// whatever order the fetches finish in.
func (c *Coordinator) fetchAll(ctx context.Context, sources []core.Source) ([]normalize.SourceBatch, []core.SourceFailure) {
	batches := make([]normalize.SourceBatch, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(c.opts.FetchConcurrency)

	for i, src := range sources {
		batches[i].Source = src
		g.Go(func() error {
			items, err := c.fetchOne(ctx, src)
			if err != nil {
				errs[i] = err
				logger.Warn("Source fetch failed", "source", src.Name, "error", err.Error())
				return nil
			}
			batches[i].Items = items
			logger.Debug("Fetched source", "source", src.Name, "items", len(items))
			return nil
		})
	}
	_ = g.Wait()

	var failures []core.SourceFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, core.SourceFailure{Source: sources[i].Name, Error: err.Error()})
		}
	}
	return batches, failures
}

func (c *Coordinator) fetchOne(ctx context.Context, src core.Source) (items []core.RawItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panicked: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}
	return c.deps.Fetcher.Fetch(ctx, src)
}

// dropPreviouslySeen removes articles whose URL was first published on an
// earlier date. Store errors disable the filter for this run.
func (c *Coordinator) dropPreviouslySeen(ctx context.Context, date string, articles []core.CanonicalArticle) ([]core.CanonicalArticle, int) {
	if c.deps.Store == nil || len(articles) == 0 {
		return articles, 0
	}

	urls := make([]string, 0, len(articles))
	for _, a := range articles {
		if key := seenKey(a); key != "" {
			urls = append(urls, key)
		}
	}

	seen, err := c.deps.Store.SeenBefore(ctx, date, urls)
	if err != nil {
		logger.Warn("Seen URL lookup failed, keeping all articles", "run_date", date, "error", err.Error())
		return articles, 0
	}

	kept := make([]core.CanonicalArticle, 0, len(articles))
	for _, a := range articles {
		if seen[seenKey(a)] {
			logger.Debug("Skipping previously published article", "fingerprint", a.Fingerprint, "url", a.URL)
			continue
		}
		kept = append(kept, a)
	}
	return kept, len(articles) - len(kept)
}

// notify sends the summary in the background; its outcome never affects
// the run.
func (c *Coordinator) notify(ctx context.Context, result core.CurationResult, output core.SynthesisOutput) {
	if c.deps.Notifier == nil || c.opts.SkipNotify {
		return
	}

	summary := messaging.BuildSummary(result, output, c.opts.SiteURL, c.opts.HighlightsPerGroup)
	nctx := context.WithoutCancel(ctx)
	timeout := c.opts.NotifyTimeout

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("Notifier panicked", "notifier", c.deps.Notifier.Name(), "panic", fmt.Sprint(r))
			}
		}()

		if timeout > 0 {
			var cancel context.CancelFunc
			nctx, cancel = context.WithTimeout(nctx, timeout)
			defer cancel()
		}
		if err := c.deps.Notifier.Notify(nctx, summary); err != nil {
			logger.Warn("Notification failed", "notifier", c.deps.Notifier.Name(), "run_date", summary.RunDate, "error", err.Error())
		}
	}()
}

// persist stores the record and marks the published URLs as seen.
func (c *Coordinator) persist(ctx context.Context, record core.RunRecord, result core.CurationResult) bool {
	if c.deps.Store == nil {
		return false
	}

	if err := c.deps.Store.SaveRun(ctx, record); err != nil {
		logger.Error("Failed to save run", err, "run_date", record.RunDate)
		return false
	}

	var urls []string
	for _, a := range result.Selected() {
		if key := seenKey(a); key != "" {
			urls = append(urls, key)
		}
	}
	if err := c.deps.Store.MarkSeen(ctx, record.RunDate, urls); err != nil {
		logger.Error("Failed to mark URLs seen", err, "run_date", record.RunDate)
		return false
	}
	fmt.Fprintf(c.opts.Output, "   ✓ Run %s recorded (%d urls)\n", record.ID, len(urls))
	return true
}

func seenKey(a core.CanonicalArticle) string {
	if a.NormalizedURL != "" {
		return a.NormalizedURL
	}
	return a.URL
}
