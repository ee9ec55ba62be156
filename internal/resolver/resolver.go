// Package resolver turns a free-text reference typed by a user into a remote record by
// trying progressively looser lookups until one matches.
package resolver

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/discovery"
	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/remote"
)

// Strategy names, in the order they are tried.
const (
	StrategyPrimaryKey   = "primary-key"
	StrategyKeyField     = "key-field"
	StrategyDisplayField = "display-field"
	StrategyLinkField    = "link-field"
	StrategyListing      = "listing"
)

// Store is the subset of the remote client the resolver needs.
type Store interface {
	Get(ctx context.Context, resourceType, key string) (remote.Record, error)
	Fetch(ctx context.Context, resourceType string, q remote.Query) ([]remote.Record, error)
}

// Options describe the subject being resolved. With more than one Candidates name, each
// resolution first finds which of them the store serves and resolves against that one.
type Options struct {
	ResourceType string
	Candidates   []string
	KeyField     string
	DisplayField string
	LinkField    string
	ListLimit    int
}

// SalesPerson is the reference subject of the wizard.
func SalesPerson() Options {
	return Options{
		ResourceType: "Sales Person",
		KeyField:     "name",
		DisplayField: "sales_person_name",
		LinkField:    "employee",
		ListLimit:    1000,
	}
}

// Attempt is one strategy tried during a resolution.
type Attempt struct {
	Strategy string `json:"strategy"`
	Matched  bool   `json:"matched"`
	Error    string `json:"error,omitempty"`
}

// Resolution is a matched record and how it was found.
type Resolution struct {
	Record   remote.Record
	Strategy string
	Attempts []Attempt
}

// Resolver resolves references against one resource type.
type Resolver struct {
	store  Store
	opts   Options
	logger zerolog.Logger
}

// New builds a Resolver. Empty options fall back to the Sales Person subject.
func New(store Store, opts Options, logger zerolog.Logger) *Resolver {
	def := SalesPerson()
	if opts.ResourceType == "" {
		opts = def
	}
	if opts.KeyField == "" {
		opts.KeyField = "name"
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = def.ListLimit
	}
	return &Resolver{store: store, opts: opts, logger: logger}
}

// ResourceType is the subject resolved against.
func (r *Resolver) ResourceType() string {
	return r.opts.ResourceType
}

type strategy struct {
	name string
	run  func(ctx context.Context, ref string) (remote.Record, error)
}

// Resolve trims raw and applies each strategy until one matches. A strategy that errors is
// recorded and the cascade continues. When nothing matches the error is a NotFoundError
// naming every strategy tried.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return nil, domain.NewValidationError("reference", "reference is required")
	}
	if len(r.opts.Candidates) < 2 {
		return r.resolve(ctx, ref)
	}

	found, err := discovery.Discover(ctx, r.opts.Candidates, func(ctx context.Context, name string) (struct{}, error) {
		_, err := r.store.Fetch(ctx, name, remote.Query{Fields: []string{"name"}, Limit: 1})
		return struct{}{}, err
	})
	if err != nil {
		r.logger.Warn().Err(err).Strs("tried", found.Tried()).Msg("no reference subject served")
		return nil, err
	}
	rr := *r
	rr.opts.ResourceType = found.Name
	return rr.resolve(ctx, ref)
}

func (r *Resolver) resolve(ctx context.Context, ref string) (*Resolution, error) {
	strategies := []strategy{
		{StrategyPrimaryKey, r.byPrimaryKey},
		{StrategyKeyField, r.byField(r.opts.KeyField)},
		{StrategyDisplayField, r.byField(r.opts.DisplayField)},
		{StrategyLinkField, r.byField(r.opts.LinkField)},
		{StrategyListing, r.byListing},
	}

	attempts := make([]Attempt, 0, len(strategies))
	for _, s := range strategies {
		rec, err := s.run(ctx, ref)
		attempt := Attempt{Strategy: s.name, Matched: err == nil && rec != nil}
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			attempt.Error = err.Error()
			r.logger.Debug().Err(err).Str("resource", r.opts.ResourceType).Str("strategy", s.name).Str("reference", ref).Msg("resolver strategy failed")
		}
		attempts = append(attempts, attempt)
		if attempt.Matched {
			r.logger.Debug().Str("resource", r.opts.ResourceType).Str("strategy", s.name).Str("reference", ref).Msg("reference resolved")
			return &Resolution{Record: rec, Strategy: s.name, Attempts: attempts}, nil
		}
	}

	tried := make([]string, 0, len(attempts))
	for _, a := range attempts {
		tried = append(tried, a.Strategy)
	}
	r.logger.Info().Str("resource", r.opts.ResourceType).Str("reference", ref).Strs("tried", tried).Msg("reference not found")
	return nil, domain.NewNotFoundError(r.opts.ResourceType, ref, tried...)
}

func (r *Resolver) byPrimaryKey(ctx context.Context, ref string) (remote.Record, error) {
	rec, err := r.store.Get(ctx, r.opts.ResourceType, ref)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	return rec, err
}

func (r *Resolver) byField(field string) func(context.Context, string) (remote.Record, error) {
	return func(ctx context.Context, ref string) (remote.Record, error) {
		if field == "" {
			return nil, nil
		}
		rows, err := r.store.Fetch(ctx, r.opts.ResourceType, remote.Query{
			Filters: []remote.Filter{remote.Eq(field, ref)},
			Fields:  []string{"*"},
			Limit:   1,
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}
}

func (r *Resolver) byListing(ctx context.Context, ref string) (remote.Record, error) {
	fields := r.listingFields()
	rows, err := r.store.Fetch(ctx, r.opts.ResourceType, remote.Query{Fields: fields, Limit: r.opts.ListLimit})
	if err != nil {
		return nil, err
	}
	hit := match(rows, fields, ref)
	if hit == nil {
		return nil, nil
	}
	key, _ := hit["name"].(string)
	if key == "" {
		return hit, nil
	}
	full, err := r.store.Get(ctx, r.opts.ResourceType, key)
	if err != nil || full == nil {
		r.logger.Debug().Err(err).Str("resource", r.opts.ResourceType).Str("key", key).Msg("detail re-read failed, using listing row")
		return hit, nil
	}
	return full, nil
}

func (r *Resolver) listingFields() []string {
	fields := []string{"name"}
	for _, f := range []string{r.opts.KeyField, r.opts.DisplayField, r.opts.LinkField} {
		if f == "" || contains(fields, f) {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// match prefers a case-insensitive exact match on any field over a substring match.
func match(rows []remote.Record, fields []string, ref string) remote.Record {
	needle := strings.ToLower(ref)
	for _, row := range rows {
		for _, f := range fields {
			if v, _ := row[f].(string); v != "" && strings.ToLower(strings.TrimSpace(v)) == needle {
				return row
			}
		}
	}
	for _, row := range rows {
		for _, f := range fields {
			if v, _ := row[f].(string); v != "" && strings.Contains(strings.ToLower(v), needle) {
				return row
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
