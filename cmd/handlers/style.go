package handlers

import (
	"fmt"
	"strings"

	"dailyintel/internal/core"
	"dailyintel/internal/pipeline"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16)

	valueStyle = lipgloss.NewStyle().Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func row(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

// renderRunSummary formats the outcome of one run for the terminal.
func renderRunSummary(res *pipeline.Result) string {
	rec := res.Record

	lines := []string{
		headerStyle.Render("dailyintel " + rec.RunDate),
		"",
		row("Discovered", rec.Discovered),
		row("Canonical", rec.Canonical),
	}
	if rec.PreviouslySeen > 0 {
		lines = append(lines, row("Seen earlier", rec.PreviouslySeen))
	}
	lines = append(lines,
		row("Selected", rec.Selected),
		row("Rejected", rec.Rejected),
		row("Full text", fmt.Sprintf("%d ok, %d failed, %d skipped", rec.Extracted, rec.ExtractFailed, rec.ExtractSkipped)),
		row("Digest", fmt.Sprintf("%d bullets, %d trends", len(res.Output.Digest), len(res.Output.DeepPost.Trends))),
		row("Backend", rec.Backend),
	)

	for _, g := range res.Curation.Groups {
		lines = append(lines, row("  "+core.DisplayName(g.Name), len(g.Articles)))
	}

	if rec.Degraded {
		lines = append(lines, "", warnStyle.Render("Degraded: "+res.Output.FailureReason))
	}
	for _, f := range rec.SourceFailures {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Source %s failed: %s", f.Source, f.Error)))
	}
	if res.RenderErr != nil {
		lines = append(lines, warnStyle.Render("Publishing failed: "+res.RenderErr.Error()))
	}
	if res.Artifacts.DailyPage != "" {
		lines = append(lines, "", row("Page", res.Artifacts.DailyPage))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}
