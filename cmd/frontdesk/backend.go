package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/frontdesk/internal/backend"
	"github.com/haasonsaas/frontdesk/internal/config"
	"github.com/haasonsaas/frontdesk/internal/datetime"
	"github.com/haasonsaas/frontdesk/internal/gateway"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

// buildBackendCmd creates the "backend" command that serves the lookup API.
func buildBackendCmd(configPath func() string) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Start the insurance and appointment lookup backend",
		Long: `Start the lookup backend.

It answers /get_insurance_status and /check_appt_slots from the configured
database and serves filler audio under /static/.`,
		Example: `  # Serve from a local SQLite file, creating the schema first
  DATABASE_URL=frontdesk.db frontdesk backend --migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackend(cmd.Context(), configPath(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func runBackend(ctx context.Context, configPath string, migrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	loc, err := datetime.LoadLocation(cfg.Assistant.Timezone)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		m, err := backend.NewMigrator(db, cfg.Database.Driver)
		if err != nil {
			return err
		}
		applied, err := m.Up(ctx)
		if err != nil {
			return err
		}
		logger.Info(ctx, "migrations applied", "count", len(applied))
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName + "-backend",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	store, err := backend.NewSQLStore(db, cfg.Database.Driver,
		backend.WithStoreMetrics(metrics), backend.WithStoreTracer(tracer))
	if err != nil {
		return err
	}

	handler := backend.NewHandler(backend.HandlerConfig{
		Store:       store,
		StaticDir:   cfg.Backend.StaticDir,
		CORSOrigins: cfg.Backend.CORSOrigins,
		Location:    loc,
		Logger:      logger,
		Metrics:     metrics,
	})
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", handler)

	addr := net.JoinHostPort(cfg.Backend.Host, strconv.Itoa(cfg.Backend.Port))
	server := gateway.NewHTTPServer("backend", addr, mux, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := server.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-server.Wait():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
	}
	return serveErr
}
