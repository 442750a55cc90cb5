package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dailyintel/internal/logger"
	"dailyintel/internal/server"
	"dailyintel/internal/store"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for browsing published runs
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the published daily pages and run history",
		Long: `Start an HTTP server over the output directory and the run store.

The server provides:
  • The daily pages and archive under /daily/
  • Per-run JSON data files under /data/
  • Run history at /api/runs and /api/runs/{date}
  • A health check at /health

It only reads; run 'dailyintel run' (e.g. from cron) to publish new days.

Examples:
  dailyintel serve
  dailyintel serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(port int, host string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() { _ = st.Close() }()

	srv := server.New(st, cfg.App.OutputDir, serverCfg)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		logger.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		logger.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeoutDuration())
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", err)
			return err
		}
		logger.Info("Server stopped successfully")
	}

	return nil
}
