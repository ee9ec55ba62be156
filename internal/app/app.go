// Package app assembles the reconciliation services from configuration. Every binary builds
// the same graph; only the journal and the extractor are optional.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/config"
	"onboarding-reconciler/internal/db"
	"onboarding-reconciler/internal/discovery"
	"onboarding-reconciler/internal/extract"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/migrate"
	"onboarding-reconciler/internal/normalize"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/resolver"
	"onboarding-reconciler/internal/service/catalog"
	"onboarding-reconciler/internal/service/lead"
	"onboarding-reconciler/internal/service/selection"
	"onboarding-reconciler/internal/service/subresource"
	"onboarding-reconciler/internal/service/wizard"
)

// Services is the wired service graph.
type Services struct {
	Client     *remote.Client
	Candidates discovery.Candidates
	Wizard     *wizard.Service
	Catalog    *catalog.Service
	References *resolver.Resolver
	Journal    journal.Store
}

// New validates cfg and wires the services against the remote store. A nil journal discards
// entries.
func New(cfg config.Config, store journal.Store, logger zerolog.Logger, opts ...remote.Option) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = journal.Noop{}
	}

	client, err := remote.New(cfg.Remote(), append([]remote.Option{remote.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	candidates, err := discovery.Load(cfg.DiscoveryFile)
	if err != nil {
		return nil, err
	}

	countries := normalize.NewCountryNormalizer()
	subject := resolver.SalesPerson()
	if len(candidates.ReferenceSubjects) > 0 {
		subject.ResourceType = candidates.ReferenceSubjects[0]
		subject.Candidates = candidates.ReferenceSubjects
	}

	return &Services{
		Client:     client,
		Candidates: candidates,
		Wizard: wizard.New(wizard.Deps{
			Remote:    client,
			Leads:     lead.New(client, logger),
			Sync:      subresource.New(client, countries, logger),
			Selection: selection.New(client, candidates.Services, logger),
			Countries: countries,
			Journal:   store,
		}, logger),
		Catalog:    catalog.New(client, candidates, cfg.CatalogCacheTTL, logger),
		References: resolver.New(client, subject, logger),
		Journal:    store,
	}, nil
}

// OpenJournal connects to DB_DSN, applies the schema and returns the Postgres journal. Without
// a DSN it returns a nil pool and the discarding journal.
func OpenJournal(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*pgxpool.Pool, journal.Store, error) {
	if cfg.DBConnString == "" {
		return nil, journal.Noop{}, nil
	}
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, journal.NewPostgres(pool, logger), nil
}

// NewExtractor returns the text extractor, or nil when no Gemini key is configured.
func NewExtractor(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*extract.Extractor, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	gen, err := extract.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GenAIModel)
	if err != nil {
		return nil, err
	}
	return extract.New(gen, logger), nil
}
