package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/frontdesk/internal/config"
	"github.com/haasonsaas/frontdesk/internal/gateway"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

// buildServeCmd creates the "serve" command that runs the voice gateway.
func buildServeCmd(configPath func() string) *cobra.Command {
	var (
		debug bool
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the voice gateway",
		Long: `Start the voice gateway.

The gateway serves the incoming-call webhook, the conversation relay
websocket, /metrics and /healthz. It shuts down gracefully on SIGINT or
SIGTERM. With --watch, greeting, voice and log level changes in the
configuration file apply without a restart.`,
		Example: `  # Start with configuration from the environment
  frontdesk serve

  # Start with a config file and reload it on change
  frontdesk serve --config frontdesk.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath(), debug, watch)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the configuration file when it changes")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug, watch bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	gw, err := gateway.New(cfg, gateway.WithLogger(logger), gateway.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "frontdesk gateway started", "version", version, "commit", commit, "config", configPath)

	if watch && configPath != "" {
		go watchConfig(ctx, configPath, gw, logger, debug)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received, initiating graceful shutdown")
	case serveErr = <-gw.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if serveErr != nil {
		return serveErr
	}
	logger.Info(shutdownCtx, "frontdesk gateway stopped gracefully")
	return nil
}

func watchConfig(ctx context.Context, path string, gw *gateway.Gateway, logger *observability.Logger, debug bool) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		if debug {
			cfg.Logging.Level = "debug"
		}
		gw.ApplyConfig(cfg)
	}, func(err error) {
		logger.Warn(ctx, "config reload failed", "path", path, "error", err)
	})
	if err != nil {
		logger.Warn(ctx, "config watcher stopped", "path", path, "error", err)
	}
}
