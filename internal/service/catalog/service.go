// Package catalog lists the read-only service and company type catalogs offered by the
// wizard. Listings are cached briefly; discovery of the resource type is not.
package catalog

import (
	"context"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/discovery"
	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/normalize"
	"onboarding-reconciler/internal/remote"
)

// ProxyPath is the route that streams stored files to the browser.
const ProxyPath = "/api/erp/proxy-image"

const (
	listingLimit = 500

	keyServices     = "services"
	keyCompanyTypes = "company-types"
)

// Store is the subset of the remote client the catalog needs.
type Store interface {
	Fetch(ctx context.Context, resourceType string, q remote.Query) ([]remote.Record, error)
}

// Service lists catalogs.
type Service struct {
	store      Store
	candidates discovery.Candidates
	cache      *gocache.Cache
	logger     zerolog.Logger
}

// New builds a Service. A non-positive ttl disables caching.
func New(store Store, candidates discovery.Candidates, ttl time.Duration, logger zerolog.Logger) *Service {
	s := &Service{store: store, candidates: candidates, logger: logger}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

// Flush drops cached listings.
func (s *Service) Flush() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

// ListServices returns the active services of the discovered service catalog.
func (s *Service) ListServices(ctx context.Context) ([]domain.ServiceCatalogEntry, error) {
	if v, ok := s.cached(keyServices); ok {
		return v.([]domain.ServiceCatalogEntry), nil
	}
	rows, err := s.list(ctx, "services", s.candidates.Services)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ServiceCatalogEntry, 0, len(rows))
	for _, rec := range rows {
		if !normalize.Active(rec) {
			continue
		}
		id := normalize.String(rec, "name", "id")
		if id == "" {
			s.logger.Debug().Interface("row", rec).Msg("service row without id dropped")
			continue
		}
		name := normalize.String(rec, "service_name", "title", "name")
		if name == "" {
			name = id
		}
		out = append(out, domain.ServiceCatalogEntry{
			ID:          id,
			Name:        name,
			Description: normalize.String(rec, "description", "desc"),
			Image:       ProxyURL(normalize.String(rec, "service_image", "image", "attachment", "service_image_url")),
			IsActive:    true,
			Contracts:   contracts(rec),
		})
	}
	s.remember(keyServices, out)
	return out, nil
}

// ListCompanyTypes returns the active legal forms of the discovered company type catalog.
func (s *Service) ListCompanyTypes(ctx context.Context) ([]domain.CompanyType, error) {
	if v, ok := s.cached(keyCompanyTypes); ok {
		return v.([]domain.CompanyType), nil
	}
	rows, err := s.list(ctx, "company types", s.candidates.CompanyTypes)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CompanyType, 0, len(rows))
	for _, rec := range rows {
		if !normalize.Active(rec) {
			continue
		}
		id := normalize.String(rec, "name", "id")
		if id == "" {
			continue
		}
		out = append(out, domain.CompanyType{
			ID:          id,
			Name:        normalize.String(rec, "company_type_name", "title", "name"),
			Description: normalize.String(rec, "description"),
			IsActive:    true,
		})
	}
	s.remember(keyCompanyTypes, out)
	return out, nil
}

func (s *Service) list(ctx context.Context, what string, candidates []string) ([]remote.Record, error) {
	res, err := discovery.Discover(ctx, candidates, func(ctx context.Context, name string) ([]remote.Record, error) {
		return s.store.Fetch(ctx, name, remote.Query{Fields: []string{"*"}, Limit: listingLimit})
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("catalog", what).Strs("tried", res.Tried()).Msg("catalog resource type not found")
		return nil, err
	}
	s.logger.Debug().Str("catalog", what).Str("resource", res.Name).Int("rows", len(res.Value)).Msg("catalog listed")
	return res.Value, nil
}

func (s *Service) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) remember(key string, v any) {
	if s.cache != nil {
		s.cache.Set(key, v, gocache.DefaultExpiration)
	}
}

// ProxyURL rewrites a stored file reference to the proxy route. Absolute URLs are reduced to
// their path. An empty reference stays empty.
func ProxyURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	p := ref
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if u, err := url.Parse(ref); err == nil {
			p = u.Path
		}
	}
	return ProxyPath + "?url=" + url.QueryEscape(p)
}

func contracts(rec remote.Record) any {
	for _, k := range []string{"service_contracts", "contracts", "contract"} {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return []any{}
}
