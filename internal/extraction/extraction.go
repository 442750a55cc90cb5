// Package extraction records, per curated article, whether full text was
// obtained from the extraction collaborator.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

// Mode controls when extraction is attempted.
type Mode string

const (
	ModeAlways     Mode = "always"
	ModeBestEffort Mode = "best_effort"
	ModeOff        Mode = "off"
)

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAlways, ModeBestEffort, ModeOff:
		return m, nil
	case "":
		return ModeBestEffort, nil
	default:
		return "", fmt.Errorf("unknown extraction mode %q", s)
	}
}

// Extractor returns the main text of the page at url.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// ErrContentTooShort marks text that came back but is too short to use.
var ErrContentTooShort = errors.New("extracted content too short")

// Options configures a Tracker.
type Options struct {
	Mode            Mode
	Timeout         time.Duration
	MaxConcurrency  int
	MinSnippetChars int
	MinContentChars int
}

// Outcome is the result of tracking one article.
type Outcome struct {
	Fingerprint string
	Status      core.ExtractionStatus
	Text        string
	Err         error
}

// Report summarizes a pass over a curation result.
type Report struct {
	Success  int
	Failed   int
	Skipped  int
	Outcomes []Outcome
}

// Tracker calls the extractor for curated articles and records the outcome
// as an explicit status instead of letting failures propagate.
type Tracker struct {
	extractor Extractor
	opts      Options
}

// NewTracker creates a tracker. A nil extractor forces every article to
// skipped.
func NewTracker(extractor Extractor, opts Options) *Tracker {
	if opts.Mode == "" {
		opts.Mode = ModeBestEffort
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	return &Tracker{extractor: extractor, opts: opts}
}

// Track decides whether to extract article and, if so, calls the extractor
// under the per-call timeout. It never returns an error.
func (t *Tracker) Track(ctx context.Context, article core.CanonicalArticle) Outcome {
	out := Outcome{Fingerprint: article.Fingerprint}

	if reason := t.skipReason(article); reason != "" {
		out.Status = core.ExtractionSkipped
		logger.Debug("Extraction skipped", "fingerprint", article.Fingerprint, "reason", reason)
		return out
	}

	callCtx := ctx
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	text, err := t.extract(callCtx, article.URL)
	if err == nil {
		text = strings.TrimSpace(text)
		if n := utf8.RuneCountInString(text); n == 0 || n < t.opts.MinContentChars {
			err = fmt.Errorf("%w: %d chars", ErrContentTooShort, n)
		}
	}
	if err != nil {
		out.Status = core.ExtractionFailed
		out.Err = err
		logger.Warn("Extraction failed, keeping snippet", "fingerprint", article.Fingerprint, "url", article.URL, "error", err.Error())
		return out
	}

	out.Status = core.ExtractionSuccess
	out.Text = text
	return out
}

// extract shields the tracker from a misbehaving extractor.
func (t *Tracker) extract(ctx context.Context, url string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return t.extractor.Extract(ctx, url)
}

func (t *Tracker) skipReason(article core.CanonicalArticle) string {
	switch {
	case t.opts.Mode == ModeOff:
		return "extraction disabled"
	case t.extractor == nil:
		return "no extractor configured"
	case strings.TrimSpace(article.URL) == "":
		return "no url"
	case t.opts.Mode == ModeBestEffort && t.opts.MinSnippetChars > 0 && utf8.RuneCountInString(strings.TrimSpace(article.Snippet)) >= t.opts.MinSnippetChars:
		return "snippet sufficient"
	}
	return ""
}

// Apply tracks every selected article in result with bounded concurrency
// and returns a new result carrying the statuses. result is not modified.
func (t *Tracker) Apply(ctx context.Context, result core.CurationResult) (core.CurationResult, Report) {
	updated := result.Clone()

	type slot struct{ group, index int }
	var slots []slot
	for gi, g := range updated.Groups {
		for ai := range g.Articles {
			slots = append(slots, slot{gi, ai})
		}
	}

	outcomes := make([]Outcome, len(slots))

	var g errgroup.Group
	g.SetLimit(t.opts.MaxConcurrency)
	for i, s := range slots {
		article := updated.Groups[s.group].Articles[s.index]
		g.Go(func() error {
			var o Outcome
			if ctx.Err() != nil {
				o = Outcome{Fingerprint: article.Fingerprint, Status: core.ExtractionFailed, Err: ctx.Err()}
			} else {
				o = t.Track(ctx, article)
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	for i, s := range slots {
		o := outcomes[i]
		a := &updated.Groups[s.group].Articles[s.index]
		a.ExtractionStatus = o.Status
		a.ExtractedText = o.Text

		switch o.Status {
		case core.ExtractionSuccess:
			report.Success++
		case core.ExtractionFailed:
			report.Failed++
		case core.ExtractionSkipped:
			report.Skipped++
		}
	}
	report.Outcomes = outcomes

	logger.Info("Extraction complete",
		"success", report.Success,
		"failed", report.Failed,
		"skipped", report.Skipped)

	return updated, report
}
