package httpserver

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/extract"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/logging"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/resolver"
	"onboarding-reconciler/internal/service/wizard"
)

// WizardService runs and reads back onboarding submissions.
type WizardService interface {
	Submit(ctx context.Context, sub wizard.Submission) (*wizard.SubmitResult, error)
	Load(ctx context.Context, email string) (*wizard.State, error)
}

// CatalogService lists the read-only catalogs.
type CatalogService interface {
	ListServices(ctx context.Context) ([]domain.ServiceCatalogEntry, error)
	ListCompanyTypes(ctx context.Context) ([]domain.CompanyType, error)
}

// ReferenceResolver resolves a free-form reference to a record.
type ReferenceResolver interface {
	Resolve(ctx context.Context, raw string) (*resolver.Resolution, error)
}

// FileFetcher streams stored files.
type FileFetcher interface {
	Download(ctx context.Context, fileURL string) (*remote.Download, error)
}

// Extractor parses free text into wizard fields.
type Extractor interface {
	ParseAddress(ctx context.Context, text string) (*extract.Address, error)
	ParseCompanyDocument(ctx context.Context, text, companyTypeID string) (*extract.CompanyDocument, error)
}

// Deps are the services behind the routes. Extractor and Journal are optional.
type Deps struct {
	Wizard     WizardService
	Catalog    CatalogService
	References ReferenceResolver
	Files      FileFetcher
	Extractor  Extractor
	Journal    journal.Store
}

// Options tune the router.
type Options struct {
	CORSAllowedOrigins []string
	// ExposeDebug adds resolution trails to not-found answers.
	ExposeDebug    bool
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 32 << 20

// buildRouter wires routes for the API.
func buildRouter(logger zerolog.Logger, db *pgxpool.Pool, deps Deps, opts Options) (*gin.Engine, error) {
	if deps.Wizard == nil || deps.Catalog == nil || deps.References == nil || deps.Files == nil {
		return nil, errors.New("httpserver: wizard, catalog, reference and file services are required")
	}
	if deps.Journal == nil {
		deps.Journal = journal.Noop{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = opts.MaxUploadBytes
	router.Use(requestID(), gin.LoggerWithWriter(logging.Writer(logger, zerolog.InfoLevel)), gin.Recovery())
	if len(opts.CORSAllowedOrigins) > 0 {
		router.Use(corsMiddleware(opts.CORSAllowedOrigins))
	}

	h := &handlers{deps: deps, opts: opts, logger: logger}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	erp := router.Group("/api/erp")
	erp.POST("/update-lead", h.updateLead)
	erp.POST("/get-lead", h.getLead)
	erp.GET("/get-services", h.getServices)
	erp.GET("/get-company-types", h.getCompanyTypes)
	erp.GET("/proxy-image", h.proxyImage)

	router.POST("/api/reference/validate", h.validateReference)
	router.POST("/api/extract/address", h.extractAddress)
	router.POST("/api/extract/company-document", h.extractCompanyDocument)
	router.GET("/api/journal", h.listJournal)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

type handlers struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}
