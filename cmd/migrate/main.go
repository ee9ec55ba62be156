package main

import (
	"context"
	"flag"
	"os"

	"onboarding-reconciler/internal/config"
	"onboarding-reconciler/internal/db"
	"onboarding-reconciler/internal/logging"
	"onboarding-reconciler/internal/migrate"
)

func main() {
	var (
		down  bool
		steps int
	)
	flag.BoolVar(&down, "down", false, "Roll back instead of applying")
	flag.IntVar(&steps, "steps", 1, "Number of migrations to roll back with -down")
	flag.Parse()

	cfg := config.FromEnv()
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}).With().Str("component", "migrate").Logger()

	if cfg.DBConnString == "" {
		logger.Error().Msg("DB_DSN is required")
		os.Exit(2)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect db")
	}
	defer pool.Close()

	if down {
		err = migrate.Rollback(ctx, pool, steps)
	} else {
		err = migrate.Apply(ctx, pool)
	}
	if err != nil {
		logger.Fatal().Err(err).Bool("down", down).Msg("migration failed")
	}

	version, dirty, err := migrate.Version(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("read schema version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
}
