// Package migrate applies the embedded schema of the submission journal.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Apply runs all migrations up.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	return withMigrator(ctx, pool, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("migrate up: %w (every version needs both .up.sql and .down.sql)", err)
			}
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// Rollback reverts the given number of migrations.
func Rollback(ctx context.Context, pool *pgxpool.Pool, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback: steps must be positive, got %d", steps)
	}
	return withMigrator(ctx, pool, func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// Version reports the applied schema version. A database without migrations reports 0.
func Version(ctx context.Context, pool *pgxpool.Pool) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := withMigrator(ctx, pool, func(m *migrate.Migrate) error {
		v, d, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		version, dirty = v, d
		return err
	})
	return version, dirty, err
}

func withMigrator(ctx context.Context, pool *pgxpool.Pool, fn func(*migrate.Migrate) error) error {
	srcDriver, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return fmt.Errorf("init iofs: %w", err)
	}

	sqlDB, err := sql.Open("pgx", pool.Config().ConnString())
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sql db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: "onboarding_schema_migrations"})
	if err != nil {
		return fmt.Errorf("init db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "pgx", dbDriver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	return fn(m)
}
