package lead

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/remote/remotetest"
)

func newStore(t *testing.T) *remotetest.Store {
	t.Helper()
	store := remotetest.New(t, Doctype)
	store.Unique(Doctype, FieldEmail)
	return store
}

func TestUpsertCreatesThenUpdatesSameRecord(t *testing.T) {
	store := newStore(t)
	engine := New(store.Client(t), zerolog.Nop())
	ctx := context.Background()

	first, err := engine.Upsert(ctx, " a@x.com ", Patch{"company_name": "Acme", "city": "Berlin"}, nil)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.Name)
	assert.Equal(t, "Open", first.Record[FieldStatus])
	assert.Equal(t, "Client", first.Record[FieldLeadType])
	assert.Equal(t, "Acme", first.Record[FieldLeadName])

	second, err := engine.Upsert(ctx, "a@x.com", Patch{"city": "Munich"}, nil)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Name, second.Name)

	leads := store.Records(Doctype)
	require.Len(t, leads, 1)
	assert.Equal(t, "Munich", leads[0]["city"])
	assert.Equal(t, "Acme", leads[0]["company_name"])

	var put remotetest.Call
	for _, c := range store.Calls() {
		if c.Method == http.MethodPut {
			put = c
		}
	}
	require.NotNil(t, put.Body)
	assert.Equal(t, "a@x.com", put.Body[FieldEmail])
	assert.NotContains(t, put.Body, FieldStatus)
	assert.NotContains(t, put.Body, FieldLeadType)
	assert.NotContains(t, put.Body, FieldLeadName)
	assert.NotContains(t, put.Body, "company_name")
}

func TestUpsertLeadNameFallbacks(t *testing.T) {
	store := newStore(t)
	engine := New(store.Client(t), zerolog.Nop())

	res, err := engine.Upsert(context.Background(), "b@x.com", Patch{}, nil, WithLeadName("Jane"))
	require.NoError(t, err)
	assert.Equal(t, "Jane", res.Record[FieldLeadName])

	res, err = engine.Upsert(context.Background(), "c@x.com", Patch{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "c@x.com", res.Record[FieldLeadName])
}

func TestUpsertRequiresEmail(t *testing.T) {
	store := newStore(t)
	_, err := New(store.Client(t), zerolog.Nop()).Upsert(context.Background(), "  ", Patch{"city": "Berlin"}, nil)
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, store.CallCount("", ""))
}

// racingStore lets a concurrent submission create the lead between lookup and create.
type racingStore struct {
	*remote.Client
	store *remotetest.Store
	raced bool
}

func (r *racingStore) Create(ctx context.Context, resourceType string, payload remote.Record) (remote.Record, error) {
	if !r.raced {
		r.raced = true
		r.store.Seed(Doctype, remote.Record{"name": "LEAD-RACE", FieldEmail: payload[FieldEmail], "city": "Hamburg"})
	}
	return r.Client.Create(ctx, resourceType, payload)
}

func TestUpsertConvertsConflictToUpdate(t *testing.T) {
	store := newStore(t)
	engine := New(&racingStore{Client: store.Client(t), store: store}, zerolog.Nop())

	res, err := engine.Upsert(context.Background(), "a@x.com", Patch{"city": "Berlin"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Converted)
	assert.Equal(t, "LEAD-RACE", res.Name)

	leads := store.Records(Doctype)
	require.Len(t, leads, 1)
	assert.Equal(t, "Berlin", leads[0]["city"])
}

func TestUpsertDegradesRejectedSelectionList(t *testing.T) {
	store := newStore(t)
	store.Reject(remotetest.Rule{Field: FieldSelectionList, Message: "Field custom_service_selections is not a table", ExcType: "ValidationError"})
	engine := New(store.Client(t), zerolog.Nop())

	selections := []domain.ServiceSelection{{ID: "svc-1", Name: "Premium"}, {ID: "svc-9", Name: "svc-9"}}
	res, err := engine.Upsert(context.Background(), "a@x.com", Patch{"company_name": "Acme"}, selections)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, []string{FieldSelectionList}, res.Degraded)

	leads := store.Records(Doctype)
	require.Len(t, leads, 1)
	assert.Equal(t, "Premium, svc-9", leads[0][FieldSelectionString])
	assert.Empty(t, leads[0][FieldSelectionList])
	assert.Equal(t, 2, store.CallCount(http.MethodPost, Doctype))
}

func TestUpsertDegradedUpdateClearsStaleRows(t *testing.T) {
	store := newStore(t)
	engine := New(store.Client(t), zerolog.Nop())
	ctx := context.Background()

	_, err := engine.Upsert(ctx, "a@x.com", Patch{}, []domain.ServiceSelection{{ID: "svc-1", Name: "Premium"}})
	require.NoError(t, err)

	store.Reject(remotetest.Rule{Method: http.MethodPut, Field: FieldSelectionList, Times: 1, Message: "Field custom_service_selections is not a table"})
	res, err := engine.Upsert(ctx, "a@x.com", Patch{}, []domain.ServiceSelection{{ID: "svc-1", Name: "Premium"}, {ID: "svc-9", Name: "svc-9"}})
	require.NoError(t, err)
	assert.Equal(t, []string{FieldSelectionList}, res.Degraded)

	lead := store.Records(Doctype)[0]
	assert.Equal(t, "Premium, svc-9", lead[FieldSelectionString])
	assert.Empty(t, lead[FieldSelectionList])
}

func TestUpsertOmitsListWhenClearingIsRejected(t *testing.T) {
	store := newStore(t)
	store.Reject(remotetest.Rule{Method: http.MethodPost, Doctype: Doctype, Times: 2, Message: "Field custom_service_selections is not a table", ExcType: "ValidationError"})
	engine := New(store.Client(t), zerolog.Nop())

	res, err := engine.Upsert(context.Background(), "a@x.com", Patch{}, []domain.ServiceSelection{{ID: "svc-1", Name: "Premium"}})
	require.NoError(t, err)
	assert.Equal(t, []string{FieldSelectionList}, res.Degraded)
	assert.NotContains(t, store.Records(Doctype)[0], FieldSelectionList)
	assert.Equal(t, 3, store.CallCount(http.MethodPost, Doctype))
}

func TestUpsertWritesBothSelectionRepresentations(t *testing.T) {
	store := newStore(t)
	engine := New(store.Client(t), zerolog.Nop())

	selections := []domain.ServiceSelection{{ID: "svc-1", Name: "Premium"}}
	res, err := engine.Upsert(context.Background(), "a@x.com", Patch{}, selections)
	require.NoError(t, err)
	assert.Empty(t, res.Degraded)

	lead := store.Records(Doctype)[0]
	assert.Equal(t, "Premium", lead[FieldSelectionString])
	rows, ok := lead[FieldSelectionList].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "svc-1", rows[0].(map[string]any)["service"])
}

func TestUpsertSurfacesOtherRejections(t *testing.T) {
	store := newStore(t)
	store.Reject(remotetest.Rule{Method: http.MethodPost, Doctype: Doctype, Status: http.StatusInternalServerError, Message: "database is down"})

	_, err := New(store.Client(t), zerolog.Nop()).Upsert(context.Background(), "a@x.com", Patch{"city": "Berlin"}, []domain.ServiceSelection{{ID: "svc-1", Name: "svc-1"}})
	remoteErr, ok := domain.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
	assert.Equal(t, 1, store.CallCount(http.MethodPost, Doctype))
}
