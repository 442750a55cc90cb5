/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"errors"
	"fmt"
	"io"
	"os"

	"dailyintel/internal/config"
	"dailyintel/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dailyintel",
		Short: "Daily engineering news digest",
		Long: `dailyintel collects engineering news from configured RSS, API and
scrape sources, deduplicates and curates it into topic groups, and publishes
a grounded daily digest with a deeper trends post.

Typical usage:
  • Run once a day from cron or CI: dailyintel run
  • Re-run a day (replaces that day's page): dailyintel run --date 2024-05-10
  • Offline run without an LLM: dailyintel run --backend deterministic
  • Browse the archive: dailyintel serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .dailyintel.yaml in . or $HOME)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewHistoryCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration for a command and applies the logging
// settings. Validation problems come back as config.ValidationErrors.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.ConfigFileUsed != "" {
		logger.Debug("Using config file", "path", cfg.ConfigFileUsed)
	}
	return cfg, nil
}

func printError(w io.Writer, err error) {
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprintf(w, "❌ %s\n", verrs.Error())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
