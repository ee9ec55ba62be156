// Package lead creates or updates the single lead record keyed by the applicant's email.
package lead

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/service/selection"
)

// Doctype and the lead fields the engine itself reads or writes.
const (
	Doctype = "Lead"

	FieldName            = "name"
	FieldEmail           = "email_id"
	FieldLeadName        = "lead_name"
	FieldCompanyName     = "company_name"
	FieldStatus          = "status"
	FieldLeadType        = "lead_type"
	FieldSelectionString = "custom_selected_services"
	FieldSelectionList   = "custom_service_selections"
)

// Store is the subset of the remote client the engine needs.
type Store interface {
	Fetch(ctx context.Context, resourceType string, q remote.Query) ([]remote.Record, error)
	Create(ctx context.Context, resourceType string, payload remote.Record) (remote.Record, error)
	Update(ctx context.Context, resourceType, key string, payload remote.Record) (remote.Record, error)
}

// Patch holds only the lead fields the caller explicitly provided.
type Patch map[string]any

// Set stores value under field when it is a non-blank string.
func (p Patch) Set(field, value string) {
	if v := strings.TrimSpace(value); v != "" {
		p[field] = v
	}
}

// Result is the outcome of an upsert.
type Result struct {
	Record    remote.Record
	Name      string
	Created   bool
	Converted bool
	Degraded  []string
}

// Engine performs lead upserts.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

// New builds an Engine.
func New(store Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// UpsertOption tunes a single upsert.
type UpsertOption func(*upsertOptions)

type upsertOptions struct {
	leadName string
}

// WithLeadName provides a display name used when a new lead has no company name. It is
// never written on update.
func WithLeadName(name string) UpsertOption {
	return func(o *upsertOptions) {
		o.leadName = strings.TrimSpace(name)
	}
}

// Find looks up the lead by email. No match is (nil, nil).
func (e *Engine) Find(ctx context.Context, email string) (remote.Record, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	rows, err := e.store.Fetch(ctx, Doctype, remote.Query{
		Filters: []remote.Filter{remote.Eq(FieldEmail, email)},
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

// Upsert writes patch to the lead identified by email, creating it when missing. When
// selections are given, both the flattened string field and the structured list are written;
// an empty selection clears both. The structured list is cleared if the store rejects it.
func (e *Engine) Upsert(ctx context.Context, email string, patch Patch, selections []domain.ServiceSelection, opts ...UpsertOption) (*Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	var o upsertOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload := remote.Record{}
	for k, v := range patch {
		if k == FieldName {
			continue
		}
		payload[k] = v
	}
	payload[FieldEmail] = email
	if selections != nil {
		payload[FieldSelectionString] = selection.Flatten(selection.Names(selections))
		payload[FieldSelectionList] = selection.Rows(selections)
	}

	existing, err := e.Find(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return e.update(ctx, existing, payload, false)
	}

	createPayload := withDefaults(payload, email, o.leadName)
	rec, degraded, err := e.write(ctx, createPayload, func(p remote.Record) (remote.Record, error) {
		return e.store.Create(ctx, Doctype, p)
	})
	if err == nil {
		res := result(rec, "", degraded)
		res.Created = true
		e.logger.Info().Str("lead", res.Name).Str("email", email).Msg("lead created")
		return res, nil
	}
	if !domain.IsConflict(err) {
		return nil, err
	}

	conflict := &domain.ConflictError{Resource: Doctype, Field: FieldEmail, Value: email, Err: err}
	e.logger.Warn().Err(conflict).Msg("lead create raced an existing record, converting to update")
	existing, findErr := e.Find(ctx, email)
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}
	return e.update(ctx, existing, payload, true)
}

func (e *Engine) update(ctx context.Context, existing remote.Record, payload remote.Record, converted bool) (*Result, error) {
	key, _ := existing[FieldName].(string)
	rec, degraded, err := e.write(ctx, payload, func(p remote.Record) (remote.Record, error) {
		return e.store.Update(ctx, Doctype, key, p)
	})
	if err != nil {
		return nil, err
	}
	res := result(rec, key, degraded)
	res.Converted = converted
	e.logger.Info().Str("lead", res.Name).Bool("converted", converted).Msg("lead updated")
	return res, nil
}

// write runs op once and, when the store rejects a payload carrying the structured selection
// list for a reason other than uniqueness, again with the list cleared so no stale rows survive
// next to the new selection string. A store that refuses the cleared list too gets the payload
// without the field.
func (e *Engine) write(ctx context.Context, payload remote.Record, op func(remote.Record) (remote.Record, error)) (remote.Record, []string, error) {
	rec, err := op(payload)
	if err == nil {
		return rec, nil, nil
	}
	if _, ok := payload[FieldSelectionList]; !ok {
		return nil, nil, err
	}
	if !degradable(ctx, err) {
		return nil, nil, err
	}

	degraded := &domain.DegradedWriteError{Resource: Doctype, Representation: FieldSelectionList, Err: err}
	e.logger.Warn().Err(degraded).Msg("retrying lead write with cleared structured selections")

	retry := make(remote.Record, len(payload))
	for k, v := range payload {
		retry[k] = v
	}
	retry[FieldSelectionList] = []any{}
	rec, err = op(retry)
	if err != nil && degradable(ctx, err) {
		e.logger.Warn().Err(err).Msg("retrying lead write without structured selections")
		delete(retry, FieldSelectionList)
		rec, err = op(retry)
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, []string{FieldSelectionList}, nil
}

func degradable(ctx context.Context, err error) bool {
	remoteErr, ok := domain.AsRemote(err)
	if !ok || !remoteErr.Client() || remoteErr.Duplicate() {
		return false
	}
	return ctx.Err() == nil
}

func withDefaults(payload remote.Record, email, leadName string) remote.Record {
	out := make(remote.Record, len(payload)+3)
	for k, v := range payload {
		out[k] = v
	}
	if _, ok := out[FieldStatus]; !ok {
		out[FieldStatus] = "Open"
	}
	if _, ok := out[FieldLeadType]; !ok {
		out[FieldLeadType] = "Client"
	}
	if _, ok := out[FieldLeadName]; !ok {
		name, _ := out[FieldCompanyName].(string)
		if name == "" {
			name = leadName
		}
		if name == "" {
			name = email
		}
		out[FieldLeadName] = name
	}
	return out
}

func result(rec remote.Record, fallbackName string, degraded []string) *Result {
	if rec == nil {
		rec = remote.Record{}
	}
	name, _ := rec[FieldName].(string)
	if name == "" {
		name = fallbackName
	}
	return &Result{Record: rec, Name: name, Degraded: degraded}
}
