package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-reconciler/internal/app"
	"onboarding-reconciler/internal/config"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/remote/remotetest"
)

func run(t *testing.T, store *remotetest.Store, j journal.Store, args ...string) (string, error) {
	t.Helper()
	build := func(_ context.Context, logger zerolog.Logger, _ bool) (*app.Services, func(), error) {
		svc, err := app.New(config.Config{
			ShutdownTimeout: time.Second,
			ERPBaseURL:      store.URL(),
			ERPAPIToken:     remotetest.Credential,
		}, j, logger)
		return svc, func() {}, err
	}
	var out bytes.Buffer
	root := newRootCommand(build, &out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolvePrintsTable(t *testing.T) {
	store := remotetest.New(t, "Sales Person")
	store.Seed("Sales Person", remote.Record{"name": "SP-7", "sales_person_name": "Max Muster"})

	out, err := run(t, store, nil, "resolve", "SP-7")
	require.NoError(t, err)
	assert.Contains(t, out, "SP-7")
	assert.Contains(t, out, "Max Muster")
	assert.Contains(t, out, "primary-key")
}

func TestResolveNotFoundNamesStrategies(t *testing.T) {
	store := remotetest.New(t, "Sales Person")
	_, err := run(t, store, nil, "resolve", "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing")
}

func TestServicesAsJSON(t *testing.T) {
	store := remotetest.New(t)
	store.Seed("Services", remote.Record{"name": "svc-1", "service_name": "Premium"})

	out, err := run(t, store, nil, "services", "-o", "json")
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Premium", got[0]["name"])
}

func TestUnknownOutputFormat(t *testing.T) {
	store := remotetest.New(t)
	_, err := run(t, store, nil, "company-types", "-o", "yaml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestJournalRequiresDatabase(t *testing.T) {
	store := remotetest.New(t)
	_, err := run(t, store, nil, "journal", "a@x.com")
	assert.ErrorContains(t, err, "DB_DSN")
}

func TestJournalListsEntries(t *testing.T) {
	store := remotetest.New(t)
	mem := journal.NewMemory()
	_, err := mem.Append(context.Background(), journal.Entry{Email: "a@x.com", LeadName: "LEAD-00001", Created: true})
	require.NoError(t, err)

	out, err := run(t, store, mem, "journal", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "LEAD-00001")
	assert.Contains(t, out, "created")
}

func TestImportSubmitsEachApplicant(t *testing.T) {
	store := remotetest.New(t, "Lead", "Address", "Contact", "User", "Custom User Register")
	store.Unique("Lead", "email_id")
	path := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(path, []byte("email,companyName,city\na@x.com,Acme,Berlin\nb@x.com,Beta,Bonn\n"), 0o600))

	mem := journal.NewMemory()
	out, err := run(t, store, mem, "import", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 submissions (2 new leads")
	assert.Len(t, store.Records("Lead"), 2)
}

func TestImportRequiresFile(t *testing.T) {
	store := remotetest.New(t)
	_, err := run(t, store, nil, "import")
	assert.Error(t, err)
}
