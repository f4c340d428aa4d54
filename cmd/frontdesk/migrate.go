package main

import (
	"context"
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/frontdesk/internal/backend"
	"github.com/haasonsaas/frontdesk/internal/config"
)

// buildMigrateCmd creates the "migrate" command group for the backend schema.
func buildMigrateCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the lookup backend database schema",
		Long: `Apply or roll back the embedded migrations for the configured database
driver (postgres or sqlite). The second migration seeds sample insurance
providers and appointment slots.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), configPath(), func(ctx context.Context, m *backend.Migrator) error {
					applied, err := m.Up(ctx)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations")
						return nil
					}
					for _, v := range applied {
						fmt.Fprintf(cmd.OutOrStdout(), "Applied migration %d\n", v)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), configPath(), func(ctx context.Context, m *backend.Migrator) error {
					version, err := m.Down(ctx)
					if err != nil {
						return err
					}
					if version == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No migrations to roll back")
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d\n", version)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), configPath(), func(ctx context.Context, m *backend.Migrator) error {
					statuses, err := m.Status(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "VERSION\tSTATE\tSOURCE")
					for _, s := range statuses {
						state := "pending"
						if s.Applied {
							state = "applied"
						}
						fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Source)
					}
					return w.Flush()
				})
			},
		},
	)
	return cmd
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *backend.Migrator) error) error {
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
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := backend.NewMigrator(db, cfg.Database.Driver)
	if err != nil {
		return err
	}
	return fn(ctx, m)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return backend.OpenDB(ctx, backend.DBConfig{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingTimeout:     cfg.Database.PingTimeout,
	})
}
