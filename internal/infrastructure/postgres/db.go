// Package postgres implements the repositories on PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zhima-Mochi/paylink/internal/observability"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// RunMigrations applies all pending up migrations.
func RunMigrations(databaseURL string, logger observability.Logger) error {
	return migrateWith(databaseURL, logger, func(m *migrate.Migrate) error { return m.Up() })
}

// RollbackMigrations reverts steps migrations.
func RollbackMigrations(databaseURL string, steps int, logger observability.Logger) error {
	return migrateWith(databaseURL, logger, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func migrateWith(databaseURL string, logger observability.Logger, apply func(*migrate.Migrate) error) error {
	if logger == nil {
		logger = observability.NopLogger()
	}
	d, err := iofs.New(Migrations(), ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations_applied",
		observability.F("version", version),
		observability.F("dirty", dirty),
	)
	return nil
}
