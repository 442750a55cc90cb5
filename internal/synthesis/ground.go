package synthesis

import (
	"strings"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

// GroundingReport counts what Ground removed.
type GroundingReport struct {
	DroppedBullets   int
	DroppedTrends    int
	DroppedCitations int
}

func (r GroundingReport) log(backend string) {
	if r.DroppedBullets == 0 && r.DroppedTrends == 0 && r.DroppedCitations == 0 {
		return
	}
	logger.Warn("Removed ungrounded synthesis output",
		"backend", backend,
		"dropped_bullets", r.DroppedBullets,
		"dropped_trends", r.DroppedTrends,
		"dropped_citations", r.DroppedCitations)
}

// Ground removes every bullet and trend that does not cite an article in
// in. Trend citations are filtered individually and a trend left with no
// valid citation is dropped. Bullet sources are taken from the input, not
// from the backend.
func Ground(in core.SynthesisInput, out core.SynthesisOutput) (core.SynthesisOutput, GroundingReport) {
	var report GroundingReport

	digest := make([]core.Bullet, 0, len(out.Digest))
	for _, b := range out.Digest {
		entry, ok := in.Entry(strings.TrimSpace(b.Fingerprint))
		if !ok || strings.TrimSpace(b.Text) == "" {
			report.DroppedBullets++
			continue
		}
		digest = append(digest, core.Bullet{
			Text:        strings.TrimSpace(b.Text),
			Fingerprint: entry.Fingerprint,
			Source:      entry.Source,
		})
	}

	trends := make([]core.Trend, 0, len(out.DeepPost.Trends))
	for _, t := range out.DeepPost.Trends {
		seen := make(map[string]bool)
		var cites []string
		for _, fp := range t.Fingerprints {
			fp = strings.TrimSpace(fp)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			if !in.Has(fp) {
				report.DroppedCitations++
				continue
			}
			cites = append(cites, fp)
		}
		if len(cites) == 0 || strings.TrimSpace(t.Title) == "" {
			report.DroppedTrends++
			continue
		}
		t.Fingerprints = cites
		trends = append(trends, t)
	}

	actions := out.DeepPost.ActionItems
	if actions == nil {
		actions = []string{}
	}

	out.Digest = digest
	out.DeepPost.Trends = trends
	out.DeepPost.ActionItems = actions
	return out, report
}
