package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dailyintel/internal/config"
	"dailyintel/internal/logger"
	"dailyintel/internal/pipeline"
	"dailyintel/internal/store"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command, which executes one daily run
func NewRunCmd() *cobra.Command {
	var (
		date       string
		backend    string
		skipNotify bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, curate, synthesize and publish one day's digest",
		Long: `Run executes the daily pipeline once:

  1. Fetch every enabled source (failures are recorded, not fatal)
  2. Deduplicate by fingerprint and drop URLs published on earlier days
  3. Filter, group, rank and cap per topic group
  4. Fetch full article text where configured
  5. Produce the digest and trends post (falls back to the template
     backend when the configured backend fails)
  6. Publish the daily page, notify, and record the run

Re-running the same date replaces that day's output.

Examples:
  # Today's run with the configured backend
  dailyintel run

  # Rebuild a past day without an LLM and without notifications
  dailyintel run --date 2024-05-10 --backend deterministic --skip-notify

  # Preview selection and synthesis without writing anything
  dailyintel run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaily(cmd.Context(), date, backend, skipNotify, dryRun)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Run date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&backend, "backend", "", "Synthesis backend: deterministic, cli or gemini (default from config)")
	cmd.Flags().BoolVar(&skipNotify, "skip-notify", false, "Do not send notifications")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Stop after synthesis; write, send and record nothing")

	return cmd
}

func parseRunDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	d, err := time.ParseInLocation("2006-01-02", value, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}

func runDaily(ctx context.Context, date, backend string, skipNotify, dryRun bool) error {
	runDate, err := parseRunDate(date, time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if backend != "" {
		cfg.Synthesis.Backend = backend
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := pipeline.NewBuilder(cfg).
		WithOutput(os.Stdout).
		WithDryRun(dryRun)
	if skipNotify {
		builder = builder.WithoutNotify()
	}

	// Run history is optional: without it the cross-day filter is off.
	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		logger.Warn("Run history unavailable; continuing without it", "data_dir", cfg.App.DataDir, "error", err.Error())
	} else {
		defer func() { _ = st.Close() }()
		builder = builder.WithStore(st)
	}

	coordinator, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up pipeline: %w", err)
	}

	fmt.Printf("🚀 dailyintel run for %s (%d sources)\n\n", runDate.Format("2006-01-02"), len(cfg.EnabledSources()))

	res, err := coordinator.Run(ctx, runDate)
	coordinator.Wait()
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}

	fmt.Println()
	fmt.Println(renderRunSummary(res))
	return nil
}
