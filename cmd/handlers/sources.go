package handlers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"dailyintel/internal/config"
	"dailyintel/internal/core"
	"dailyintel/internal/curation"

	"github.com/spf13/cobra"
)

// NewSourcesCmd creates the sources command group
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect the configured news sources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sources by topic group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printSources(os.Stdout, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate configuration and sources without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("✅ Configuration valid: %d sources (%d enabled), %d groups, backend %s\n",
				len(cfg.Sources), len(cfg.EnabledSources()), len(cfg.Registry()), cfg.Synthesis.Backend)
			return nil
		},
	})

	return cmd
}

// printSources lists every source under the group curation will assign its
// articles to, so tag mistakes show up before a run.
func printSources(w io.Writer, cfg *config.Config) {
	engine := curation.NewEngine(curation.Rules{Groups: cfg.Registry()})

	byGroup := make(map[string][]core.Source)
	for _, src := range cfg.Sources {
		g := engine.AssignGroup(src.Tags)
		byGroup[g] = append(byGroup[g], src)
	}

	order := append(append([]string(nil), engine.Rules().Groups...), core.UnclassifiedGroup)
	for _, g := range order {
		sources := byGroup[g]
		if len(sources) == 0 {
			continue
		}
		fmt.Fprintf(w, "📂 %s (%d)\n", core.DisplayName(g), len(sources))
		for _, src := range sources {
			state := "✓"
			if !src.Enabled {
				state = "✗"
			}
			fmt.Fprintf(w, "   %s %-28s %-6s p%d  %s\n", state, src.Name, src.Kind, src.Priority, src.Endpoint)
			if len(src.Tags) > 0 {
				fmt.Fprintf(w, "      tags: %s\n", strings.Join(src.Tags, ", "))
			}
		}
		fmt.Fprintln(w)
	}
}
