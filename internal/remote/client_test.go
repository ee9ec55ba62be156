package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/remote/remotetest"
)

func TestNewRequiresEndpointAndCredential(t *testing.T) {
	_, err := remote.New(remote.Config{Credential: "k:s"})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = remote.New(remote.Config{Endpoint: "http://erp.local"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "credential")

	c, err := remote.New(remote.Config{Endpoint: "http://erp.local/", Credential: "k:s"})
	require.NoError(t, err)
	assert.Equal(t, "http://erp.local", c.Endpoint())
}

func TestFormatCredential(t *testing.T) {
	cases := map[string]string{
		"token abc:def":  "token abc:def",
		"Bearer abc:def": "token abc:def",
		"abc:def":        "token abc:def",
		"opaque-value":   "opaque-value",
		"  abc:def  ":    "token abc:def",
	}
	for in, want := range cases {
		assert.Equal(t, want, remote.FormatCredential(in), "input %q", in)
	}
}

func TestUnwrapEnvelopes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"data list", `{"data":[{"name":"a"},{"name":"b"}]}`, 2},
		{"bare list", `[{"name":"a"}]`, 1},
		{"message list", `{"message":[{"name":"a"}]}`, 1},
		{"empty data falls through to message", `{"data":[],"message":[{"name":"a"}]}`, 1},
		{"empty body", ``, 0},
		{"no list at all", `{"data":{"name":"a"}}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := remote.Unwrap([]byte(tc.body))
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}

	_, err := remote.Unwrap([]byte(`{not json`))
	assert.Error(t, err)
}

func TestUnwrapOne(t *testing.T) {
	rec, err := remote.UnwrapOne([]byte(`{"data":{"name":"LEAD-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "LEAD-1", rec["name"])

	rec, err = remote.UnwrapOne([]byte(`{"message":{"file_url":"/files/a.pdf"}}`))
	require.NoError(t, err)
	assert.Equal(t, "/files/a.pdf", rec["file_url"])

	rec, err = remote.UnwrapOne([]byte(`{"name":"X"}`))
	require.NoError(t, err)
	assert.Equal(t, "X", rec["name"])
}

func TestFetchEncodesQueryAndUnwraps(t *testing.T) {
	store := remotetest.New(t, "Lead")
	store.Seed("Lead",
		remote.Record{"name": "LEAD-1", "email_id": "a@x.com", "company_name": "Acme"},
		remote.Record{"name": "LEAD-2", "email_id": "b@x.com", "company_name": "Beta"},
	)
	client := store.Client(t)

	for _, env := range []remotetest.Envelope{remotetest.EnvelopeData, remotetest.EnvelopeBare, remotetest.EnvelopeMessage} {
		store.SetEnvelope(env)
		got, err := client.Fetch(context.Background(), "Lead", remote.Query{
			Filters: []remote.Filter{remote.Eq("email_id", "b@x.com")},
			Fields:  []string{"name", "company_name"},
			Limit:   1,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "LEAD-2", got[0]["name"])
		assert.Equal(t, "Beta", got[0]["company_name"])
		assert.NotContains(t, got[0], "email_id")
	}

	calls := store.Calls()
	require.NotEmpty(t, calls)
	q := calls[0].Query
	assert.JSONEq(t, `[["email_id","=","b@x.com"]]`, q.Get("filters"))
	assert.JSONEq(t, `["name","company_name"]`, q.Get("fields"))
	assert.Equal(t, "1", q.Get("limit_page_length"))
}

func TestFetchUnknownDoctypeIsNotFound(t *testing.T) {
	store := remotetest.New(t)
	_, err := store.Client(t).Fetch(context.Background(), "Services", remote.Query{})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestGetMissingRecordIsNotFound(t *testing.T) {
	store := remotetest.New(t, "Sales Person")
	_, err := store.Client(t).Get(context.Background(), "Sales Person", "SP-404")
	require.Error(t, err)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "SP-404", nf.Query)
}

func TestCreateDuplicateCarriesUniquenessSignal(t *testing.T) {
	store := remotetest.New(t, "Lead")
	store.Unique("Lead", "email_id")
	store.Seed("Lead", remote.Record{"email_id": "a@x.com"})

	_, err := store.Client(t).Create(context.Background(), "Lead", remote.Record{"email_id": "a@x.com"})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	remoteErr, ok := domain.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, remoteErr.Status)
	assert.Equal(t, "DuplicateEntryError", remoteErr.ExcType)
	assert.Contains(t, remoteErr.Message, "must be unique")
}

func TestWriteErrorsAreNotSoftened(t *testing.T) {
	store := remotetest.New(t, "Lead")
	store.Reject(remotetest.Rule{Method: http.MethodPut, Doctype: "Lead", Status: http.StatusNotFound, Message: "gone"})
	store.Seed("Lead", remote.Record{"name": "LEAD-1"})

	_, err := store.Client(t).Update(context.Background(), "Lead", "LEAD-1", remote.Record{"city": "Berlin"})
	require.Error(t, err)
	remoteErr, ok := domain.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, remoteErr.Status)
	assert.Equal(t, "gone", remoteErr.Message)
}

func TestServerMessagesAreParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusExpectationFailed)
		_, _ = w.Write([]byte(`{"exception":"frappe.exceptions.ValidationError: bad","_server_messages":"[\"{\\\"message\\\": \\\"Field <b>custom_x</b> is invalid\\\"}\"]"}`))
	}))
	defer srv.Close()

	c, err := remote.New(remote.Config{Endpoint: srv.URL, Credential: "k:s"})
	require.NoError(t, err)
	_, err = c.Create(context.Background(), "Lead", remote.Record{"email_id": "a@x.com"})
	remoteErr, ok := domain.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, "ValidationError", remoteErr.ExcType)
	assert.Equal(t, "Field custom_x is invalid", remoteErr.Message)
	assert.True(t, remoteErr.Client())
	assert.False(t, remoteErr.Duplicate())
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := remote.New(remote.Config{Endpoint: srv.URL, Credential: "k:s", RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Get(context.Background(), "Lead", "LEAD-1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	remoteErr, ok := domain.AsRemote(err)
	require.True(t, ok)
	assert.Zero(t, remoteErr.Status)
	assert.True(t, errors.Is(err, domain.ErrRemote))
}

func TestUploadAndDownload(t *testing.T) {
	store := remotetest.New(t)
	client := store.Client(t)

	ref, err := client.Upload(context.Background(), remote.FileUpload{
		FileName: "../register.pdf",
		Content:  strings.NewReader("%PDF-1.4 test"),
		Private:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/private/files/register.pdf", ref.URL)
	assert.Equal(t, "register.pdf", ref.FileName)

	dl, err := client.Download(context.Background(), store.URL()+ref.URL)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(dl.Body))
}

func TestDownloadRetriesPublicPath(t *testing.T) {
	store := remotetest.New(t)
	store.SeedFile("/files/logo.png", []byte("png-bytes"))

	dl, err := store.Client(t).Download(context.Background(), "/private/files/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(dl.Body))
	assert.Equal(t, 2, store.CallCount(http.MethodGet, "File"))
}

func TestDownloadRejectsForeignHosts(t *testing.T) {
	store := remotetest.New(t)
	client := store.Client(t)

	_, err := client.Download(context.Background(), "http://evil.example/files/x.png")
	assert.True(t, domain.IsValidation(err))

	_, err = client.Download(context.Background(), "/api/resource/User")
	assert.True(t, domain.IsValidation(err))

	_, err = client.Download(context.Background(), "/files/../api/resource/User")
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, store.CallCount("", ""))
}
