package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zhima-Mochi/paylink/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/paylink/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/pkg/logging"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(postgres.RunMigrations)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return runMigration(func(url string, log observability.Logger) error {
				return postgres.RollbackMigrations(url, steps, log)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func runMigration(apply func(databaseURL string, log observability.Logger) error) error {
	cfg, base, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = base.Sync() }()

	if !cfg.UseDatabase() {
		return errors.New("DATABASE_URL is required to run migrations")
	}
	log := zaplogger.Wrap(logging.WithTrace(base, logging.SystemTraceID, logging.SystemSpanID),
		observability.F("component", "migrate"))
	return apply(cfg.DatabaseURL, log)
}
