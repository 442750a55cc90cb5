package pipeline

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/curation"
	"dailyintel/internal/extraction"
	"dailyintel/internal/messaging"
	"dailyintel/internal/render"
	"dailyintel/internal/synthesis"
)

var runDate = time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)

func ptime(t time.Time) *time.Time { return &t }

type stubFetcher struct {
	items map[string][]core.RawItem
	errs  map[string]error
	block map[string]bool
}

func (f *stubFetcher) Fetch(ctx context.Context, src core.Source) ([]core.RawItem, error) {
	if f.block[src.Name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[src.Name]; err != nil {
		return nil, err
	}
	return f.items[src.Name], nil
}

type memStore struct {
	mu    sync.Mutex
	runs  map[string]core.RunRecord
	seen  map[string]string
	saves int
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]core.RunRecord{}, seen: map[string]string{}}
}

func (s *memStore) SaveRun(_ context.Context, rec core.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.RunDate] = rec
	s.saves++
	return nil
}

func (s *memStore) MarkSeen(_ context.Context, date string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		if d, ok := s.seen[u]; !ok || date < d {
			s.seen[u] = date
		}
	}
	return nil
}

func (s *memStore) SeenBefore(_ context.Context, date string, urls []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for _, u := range urls {
		if d, ok := s.seen[u]; ok && d < date {
			out[u] = true
		}
	}
	return out, nil
}

type stubRenderer struct {
	calls int
	err   error
}

func (r *stubRenderer) Render(core.CurationResult, core.SynthesisOutput, core.RunRecord) (render.Artifacts, error) {
	r.calls++
	return render.Artifacts{DailyPage: "daily/2024-05-10.md"}, r.err
}

type stubNotifier struct {
	mu  sync.Mutex
	got []messaging.Summary
	err error
}

func (n *stubNotifier) Name() string { return "stub" }

func (n *stubNotifier) Notify(_ context.Context, s messaging.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, s)
	return n.err
}

type failingBackend struct{}

func (failingBackend) Name() string { return "cli:broken" }
func (failingBackend) ProduceDigest(context.Context, core.SynthesisInput) ([]core.Bullet, error) {
	return nil, errors.New("exit status 1")
}
func (failingBackend) ProduceDeepPost(context.Context, core.SynthesisInput) (core.DeepPost, error) {
	return core.DeepPost{}, errors.New("exit status 1")
}

func testSources() []core.Source {
	return []core.Source{
		{Name: "s1", Kind: core.SourceKindRSS, Tags: []string{"data_platform"}, Priority: 1, Enabled: true},
		{Name: "s2", Kind: core.SourceKindRSS, Tags: []string{"data_platform"}, Priority: 2, Enabled: true},
		{Name: "s3", Kind: core.SourceKindAPI, Tags: []string{"ai_agents"}, Priority: 1, Enabled: true},
		{Name: "s4", Kind: core.SourceKindScrape, Tags: []string{"misc"}, Priority: 3, Enabled: true},
	}
}

func testFetcher() *stubFetcher {
	return &stubFetcher{
		items: map[string][]core.RawItem{
			"s1": {
				{Title: "Iceberg 1.6 adds REST catalogs", URL: "https://a.dev/iceberg?utm_source=rss", PublishedAt: ptime(runDate.Add(-2 * time.Hour)), Snippet: "Iceberg release notes."},
				{Title: "Spark 4 preview available", URL: "https://b.dev/spark", PublishedAt: ptime(runDate.Add(-3 * time.Hour)), Snippet: "Spark 4 preview."},
			},
			"s2": {
				{Title: "Iceberg 1.6 adds REST catalogs", URL: "https://a.dev/iceberg", Snippet: "Duplicate."},
			},
			"s4": {
				{Title: "Sponsored webinar on data", URL: "https://ads.dev/x"},
				{Title: "Kernel scheduling deep dive", URL: "https://lwn.dev/eevdf"},
			},
		},
		errs: map[string]error{"s3": errors.New("connection refused")},
	}
}

func testCurator() *curation.Engine {
	return curation.NewEngine(curation.Rules{
		Denylist:    []string{"sponsored"},
		TopPerGroup: 5,
		Groups:      []string{"data_platform", "ai_agents"},
	})
}

func newTestCoordinator(deps Deps, opts Options) *Coordinator {
	if deps.Fetcher == nil {
		deps.Fetcher = testFetcher()
	}
	if deps.Curator == nil {
		deps.Curator = testCurator()
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = synthesis.NewOrchestrator(nil, time.Second)
	}
	if opts.Sources == nil {
		opts.Sources = testSources()
	}
	opts.Output = io.Discard
	if opts.FetchConcurrency == 0 {
		opts.FetchConcurrency = 2
	}
	return NewCoordinator(deps, opts)
}

func TestRun(t *testing.T) {
	store := newMemStore()
	renderer := &stubRenderer{}
	c := newTestCoordinator(Deps{Store: store, Renderer: renderer}, Options{})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := res.Record
	if rec.Discovered != 5 || rec.Canonical != 4 {
		t.Errorf("discovered=%d canonical=%d, want 5 and 4", rec.Discovered, rec.Canonical)
	}
	if len(rec.SourceFailures) != 1 || rec.SourceFailures[0].Source != "s3" {
		t.Errorf("source failures = %+v", rec.SourceFailures)
	}
	if rec.Selected != 3 || rec.Rejected != 1 {
		t.Errorf("selected=%d rejected=%d, want 3 and 1", rec.Selected, rec.Rejected)
	}
	if rec.ExtractSkipped != 3 {
		t.Errorf("extraction without an extractor should skip, got %+v", res.Extraction)
	}

	g, ok := res.Curation.Group("data_platform")
	if !ok || len(g.Articles) != 2 {
		t.Fatalf("data_platform group = %+v", g)
	}
	if got := g.Articles[0].SeenVia; len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("duplicate should be merged across sources, SeenVia = %v", got)
	}
	last := res.Curation.Groups[len(res.Curation.Groups)-1]
	if last.Name != core.UnclassifiedGroup {
		t.Errorf("unclassified should be last, got %q", last.Name)
	}

	if res.Output.Degraded || len(res.Output.Digest) != 3 {
		t.Errorf("unexpected output: %+v", res.Output)
	}
	if renderer.calls != 1 || !res.Persisted || store.saves != 1 {
		t.Errorf("expected render and persist once: renders=%d persisted=%v saves=%d", renderer.calls, res.Persisted, store.saves)
	}
	if len(store.seen) != 3 {
		t.Errorf("selected urls should be marked seen, got %v", store.seen)
	}
	if _, ok := store.seen["https://a.dev/iceberg"]; !ok {
		t.Error("seen urls should use the normalized form")
	}
}

func TestRunIsIdempotentForSameDate(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(Deps{Store: store, Renderer: &stubRenderer{}}, Options{})

	first, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if fingerprints(first.Curation) != fingerprints(second.Curation) {
		t.Errorf("re-run changed the selection:\n%s\n%s", fingerprints(first.Curation), fingerprints(second.Curation))
	}
	if second.Record.PreviouslySeen != 0 {
		t.Errorf("same-date re-run should not treat its own urls as seen, got %d", second.Record.PreviouslySeen)
	}
	if len(store.runs) != 1 {
		t.Errorf("expected one stored run, got %d", len(store.runs))
	}

	next, err := c.Run(context.Background(), runDate.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if next.Record.PreviouslySeen != 3 || next.Record.Selected != 0 {
		t.Errorf("next day should drop published urls: seen=%d selected=%d", next.Record.PreviouslySeen, next.Record.Selected)
	}
}

func fingerprints(r core.CurationResult) string {
	var fps []string
	for _, a := range r.Selected() {
		fps = append(fps, a.TopicGroup+":"+a.Fingerprint)
	}
	sort.Strings(fps)
	out := ""
	for _, fp := range fps {
		out += fp + "\n"
	}
	return out
}

func TestRunAllSourcesFail(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{
		"s1": errors.New("down"), "s2": errors.New("down"), "s3": errors.New("down"), "s4": errors.New("down"),
	}}
	store := newMemStore()
	c := newTestCoordinator(Deps{Fetcher: fetcher, Store: store, Renderer: &stubRenderer{}}, Options{})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("total exhaustion is not an error: %v", err)
	}
	if len(res.Record.SourceFailures) != 4 {
		t.Errorf("expected 4 failures, got %d", len(res.Record.SourceFailures))
	}
	if !res.Output.IsEmpty() || res.Output.Degraded {
		t.Errorf("expected empty, non-degraded output: %+v", res.Output)
	}
	if !res.Persisted {
		t.Error("an empty day is still recorded")
	}
}

func TestRunDegradedBackend(t *testing.T) {
	c := newTestCoordinator(Deps{
		Synthesizer: synthesis.NewOrchestrator(failingBackend{}, time.Second),
		Renderer:    &stubRenderer{},
	}, Options{})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("backend failure must not fail the run: %v", err)
	}
	if !res.Output.Degraded || !res.Record.Degraded || res.Record.Backend != "deterministic" {
		t.Errorf("expected degraded deterministic output, got %+v", res.Record)
	}
	if len(res.Output.Digest) == 0 {
		t.Error("fallback digest should not be empty")
	}
}

func TestRunCancelledPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := testFetcher()
	fetcher.block = map[string]bool{"s1": true}

	store := newMemStore()
	renderer := &stubRenderer{}
	c := newTestCoordinator(Deps{Fetcher: fetcher, Store: store, Renderer: renderer}, Options{FetchTimeout: time.Minute})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := c.Run(ctx, runDate)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Error("cancelled run should return no result")
	}
	if store.saves != 0 || renderer.calls != 0 {
		t.Errorf("cancelled run must not publish: saves=%d renders=%d", store.saves, renderer.calls)
	}
}

func TestRunSourceTimeout(t *testing.T) {
	fetcher := testFetcher()
	fetcher.block = map[string]bool{"s2": true}

	c := newTestCoordinator(Deps{Fetcher: fetcher}, Options{FetchTimeout: 20 * time.Millisecond})
	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var names []string
	for _, f := range res.Record.SourceFailures {
		names = append(names, f.Source)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "s2" || names[1] != "s3" {
		t.Errorf("failures = %v, want [s2 s3]", names)
	}
}

func TestRunDryRun(t *testing.T) {
	store := newMemStore()
	renderer := &stubRenderer{}
	notifier := &stubNotifier{}
	c := newTestCoordinator(Deps{Store: store, Renderer: renderer, Notifier: notifier}, Options{DryRun: true})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	c.Wait()

	if len(res.Output.Digest) == 0 {
		t.Error("dry run should still synthesize")
	}
	if renderer.calls != 0 || store.saves != 0 || len(notifier.got) != 0 || res.Persisted {
		t.Error("dry run must not render, notify or persist")
	}
}

func TestRunNotifies(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("telegram down")}
	c := newTestCoordinator(Deps{Renderer: &stubRenderer{}, Notifier: notifier}, Options{SiteURL: "https://intel.example.com"})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("notification failure must not fail the run: %v", err)
	}
	c.Wait()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.got) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.got))
	}
	s := notifier.got[0]
	if s.Total != res.Record.Selected || s.Link != "https://intel.example.com/daily/2024-05-10.html" {
		t.Errorf("summary = %+v", s)
	}
}

func TestRunSkipNotify(t *testing.T) {
	notifier := &stubNotifier{}
	c := newTestCoordinator(Deps{Notifier: notifier}, Options{SkipNotify: true})
	if _, err := c.Run(context.Background(), runDate); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	c.Wait()
	if len(notifier.got) != 0 {
		t.Error("notifications should be skipped")
	}
}

func TestRunRenderFailureSkipsPersist(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(Deps{Store: store, Renderer: &stubRenderer{err: errors.New("disk full")}}, Options{})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.RenderErr == nil || res.Persisted || store.saves != 0 {
		t.Errorf("render failure should skip persistence: %+v", res)
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	c := NewCoordinator(Deps{}, Options{})
	if _, err := c.Run(context.Background(), runDate); err == nil {
		t.Error("expected error without collaborators")
	}
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, url string) (string, error) {
	if url == "https://b.dev/spark" {
		return "", errors.New("403 forbidden")
	}
	return "Full article text for " + url + ". It is long enough to count as real content for the tracker.", nil
}

func TestRunExtraction(t *testing.T) {
	tracker := extraction.NewTracker(stubExtractor{}, extraction.Options{
		Mode:            extraction.ModeAlways,
		Timeout:         time.Second,
		MaxConcurrency:  2,
		MinContentChars: 20,
	})
	c := newTestCoordinator(Deps{Tracker: tracker}, Options{})

	res, err := c.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Record.Extracted != 2 || res.Record.ExtractFailed != 1 {
		t.Errorf("extracted=%d failed=%d, want 2 and 1", res.Record.Extracted, res.Record.ExtractFailed)
	}
	for _, a := range res.Curation.Selected() {
		if a.ExtractionStatus == core.ExtractionPending {
			t.Errorf("article %s left pending", a.Fingerprint)
		}
	}
}
