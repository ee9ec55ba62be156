package main

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"onboarding-reconciler/internal/app"
	"onboarding-reconciler/internal/config"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/logging"
)

// builder wires the services for one command run. The returned func releases them.
type builder func(ctx context.Context, logger zerolog.Logger, withJournal bool) (*app.Services, func(), error)

func defaultBuilder(ctx context.Context, logger zerolog.Logger, withJournal bool) (*app.Services, func(), error) {
	cfg := config.FromEnv()
	var (
		pool  *pgxpool.Pool
		store journal.Store
	)
	if withJournal {
		var err error
		pool, store, err = app.OpenJournal(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
	}
	release := func() {
		if pool != nil {
			pool.Close()
		}
	}
	services, err := app.New(cfg, store, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return services, release, nil
}

type globalFlags struct {
	output   string
	logLevel string
}

func newRootCommand(build builder, out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Inspect leads, catalogs and references in the remote store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", formatTable, "Output format: table or json")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level")

	env := &commandEnv{build: build, flags: flags}
	root.AddCommand(
		newResolveCommand(env),
		newServicesCommand(env),
		newCompanyTypesCommand(env),
		newLeadCommand(env),
		newJournalCommand(env),
		newImportCommand(env),
	)
	return root
}

// commandEnv is shared by every subcommand.
type commandEnv struct {
	build builder
	flags *globalFlags
}

func (e *commandEnv) logger(cmd *cobra.Command) zerolog.Logger {
	return logging.New(logging.Options{Level: e.flags.logLevel, Writer: cmd.ErrOrStderr()})
}

func (e *commandEnv) services(cmd *cobra.Command, withJournal bool) (*app.Services, func(), error) {
	return e.build(cmd.Context(), e.logger(cmd), withJournal)
}

func (e *commandEnv) printer(cmd *cobra.Command) (*printer, error) {
	return newPrinter(cmd.OutOrStdout(), e.flags.output)
}
