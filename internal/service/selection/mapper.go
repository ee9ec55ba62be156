// Package selection translates service identifiers chosen in the wizard to the display names
// stored on the lead, and back.
package selection

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/discovery"
	"onboarding-reconciler/internal/normalize"
	"onboarding-reconciler/internal/remote"
)

// listingLimit bounds the reverse lookup, which has to read the whole catalog.
const listingLimit = 500

// Store is the subset of the remote client the mapper needs.
type Store interface {
	Fetch(ctx context.Context, resourceType string, q remote.Query) ([]remote.Record, error)
}

// Mapper resolves service identifiers against the discovered service catalog.
type Mapper struct {
	store      Store
	candidates []string
	logger     zerolog.Logger
}

// New builds a Mapper probing the given catalog resource type names in order.
func New(store Store, candidates []string, logger zerolog.Logger) *Mapper {
	return &Mapper{store: store, candidates: candidates, logger: logger}
}

// ResolveNames maps each id to its display name, preserving order and duplicates. Ids the
// catalog does not know keep their id; any catalog failure returns the ids unchanged.
func (m *Mapper) ResolveNames(ctx context.Context, ids []string) []string {
	out := append([]string{}, ids...)
	wanted := distinct(ids)
	if len(wanted) == 0 {
		return out
	}

	res, err := discovery.Discover(ctx, m.candidates, func(ctx context.Context, name string) ([]remote.Record, error) {
		return m.store.Fetch(ctx, name, remote.Query{
			Filters: []remote.Filter{remote.In("name", wanted)},
			Fields:  []string{"*"},
			Limit:   len(wanted),
		})
	})
	if err != nil {
		m.logger.Warn().Err(err).Strs("tried", res.Tried()).Msg("service catalog unavailable, keeping ids")
		return out
	}

	names := make(map[string]string, len(res.Value))
	for _, rec := range res.Value {
		id := normalize.String(rec, "name")
		if id == "" {
			continue
		}
		names[id] = normalize.DisplayName(rec, id)
	}
	for i, id := range out {
		if name, ok := names[strings.TrimSpace(id)]; ok {
			out[i] = name
		}
	}
	m.logger.Debug().Str("catalog", res.Name).Strs("ids", ids).Strs("names", out).Msg("service names resolved")
	return out
}

// ResolveIDs is the reverse translation used when reading a lead back: display names become
// ids again. Values that already are ids, or that the catalog does not know, are kept.
func (m *Mapper) ResolveIDs(ctx context.Context, names []string) []string {
	out := append([]string{}, names...)
	if len(distinct(names)) == 0 {
		return out
	}

	res, err := discovery.Discover(ctx, m.candidates, func(ctx context.Context, name string) ([]remote.Record, error) {
		return m.store.Fetch(ctx, name, remote.Query{Fields: []string{"*"}, Limit: listingLimit})
	})
	if err != nil {
		m.logger.Warn().Err(err).Strs("tried", res.Tried()).Msg("service catalog unavailable, keeping names")
		return out
	}

	ids := make(map[string]string, len(res.Value))
	for _, rec := range res.Value {
		id := normalize.String(rec, "name")
		if id == "" {
			continue
		}
		ids[strings.ToLower(id)] = id
		if _, taken := ids[strings.ToLower(normalize.DisplayName(rec, id))]; !taken {
			ids[strings.ToLower(normalize.DisplayName(rec, id))] = id
		}
	}
	for i, name := range out {
		if id, ok := ids[strings.ToLower(strings.TrimSpace(name))]; ok {
			out[i] = id
		}
	}
	return out
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
