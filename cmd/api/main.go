package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"onboarding-reconciler/internal/app"
	"onboarding-reconciler/internal/config"
	"onboarding-reconciler/internal/httpserver"
	"onboarding-reconciler/internal/logging"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}).With().Str("component", "api").Logger()

	ctx := context.Background()
	dbpool, store, err := app.OpenJournal(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open submission journal")
	}
	if dbpool != nil {
		defer dbpool.Close()
	} else {
		logger.Info().Msg("DB_DSN not set, submission journal disabled")
	}

	services, err := app.New(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init services")
	}

	deps := httpserver.Deps{
		Wizard:     services.Wizard,
		Catalog:    services.Catalog,
		References: services.References,
		Files:      services.Client,
		Journal:    services.Journal,
	}
	extractor, err := app.NewExtractor(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init text extraction")
	}
	if extractor != nil {
		deps.Extractor = extractor
	} else {
		logger.Info().Msg("GEMINI_API_KEY not set, text extraction disabled")
	}

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, deps, httpserver.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ExposeDebug:        cfg.ExposeDebug,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init server")
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("erp", services.Client.Endpoint()).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		logger.Info().Msg("server stopped")
	}
}
