package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/store"

	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command for browsing past runs
func NewHistoryCmd() *cobra.Command {
	var (
		limit  int
		date   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `History lists past runs newest first, or shows one run in detail.

Examples:
  dailyintel history --limit 7
  dailyintel history --date 2024-05-10
  dailyintel history --date 2024-05-10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewStore(cfg.App.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer func() { _ = st.Close() }()

			if date != "" {
				return showRun(cmd.Context(), os.Stdout, st, date, asJSON)
			}
			return listRuns(cmd.Context(), os.Stdout, st, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to list")
	cmd.Flags().StringVar(&date, "date", "", "Show the run for this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full run record as JSON")

	return cmd
}

func listRuns(ctx context.Context, w io.Writer, st *store.Store, limit int) error {
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	fmt.Fprintf(w, "%-12s %8s %8s %-14s %s\n", "DATE", "SELECTED", "REJECTED", "BACKEND", "NOTES")
	for _, rec := range runs {
		fmt.Fprintf(w, "%-12s %8d %8d %-14s %s\n", rec.RunDate, rec.Selected, rec.Rejected, rec.Backend, runNotes(rec))
	}
	return nil
}

func runNotes(rec core.RunRecord) string {
	note := ""
	if rec.Degraded {
		note = "degraded"
	}
	if n := len(rec.SourceFailures); n > 0 {
		if note != "" {
			note += ", "
		}
		note += fmt.Sprintf("%d source failure(s)", n)
	}
	return note
}

func showRun(ctx context.Context, w io.Writer, st *store.Store, date string, asJSON bool) error {
	rec, err := st.GetRun(ctx, date)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(w, "📅 Run %s (%s)\n", rec.RunDate, rec.ID)
	fmt.Fprintf(w, "   Started:   %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "   Duration:  %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	fmt.Fprintf(w, "   Items:     %d discovered, %d canonical, %d seen earlier, %d malformed\n",
		rec.Discovered, rec.Canonical, rec.PreviouslySeen, rec.DroppedItems)
	fmt.Fprintf(w, "   Curation:  %d selected, %d rejected\n", rec.Selected, rec.Rejected)
	fmt.Fprintf(w, "   Full text: %d ok, %d failed, %d skipped\n", rec.Extracted, rec.ExtractFailed, rec.ExtractSkipped)
	fmt.Fprintf(w, "   Backend:   %s\n", rec.Backend)
	if rec.Degraded {
		fmt.Fprintln(w, "   ⚠️  Degraded: template synthesis was used")
	}
	for _, f := range rec.SourceFailures {
		fmt.Fprintf(w, "   ⚠️  %s: %s\n", f.Source, f.Error)
	}
	return nil
}
