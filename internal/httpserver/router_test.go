package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/extract"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/resolver"
	"onboarding-reconciler/internal/service/wizard"
)

type stubWizard struct {
	got     wizard.Submission
	content map[string]string
	result  *wizard.SubmitResult
	state   *wizard.State
	err     error
	loadErr error
	submits int
}

func (s *stubWizard) Submit(_ context.Context, sub wizard.Submission) (*wizard.SubmitResult, error) {
	s.submits++
	s.got = sub
	s.content = map[string]string{}
	for _, up := range sub.Uploads {
		b, _ := io.ReadAll(up.Content)
		s.content[up.Category+"/"+up.FileName] = string(b)
	}
	return s.result, s.err
}

func (s *stubWizard) Load(_ context.Context, _ string) (*wizard.State, error) {
	return s.state, s.loadErr
}

type stubCatalog struct {
	services []domain.ServiceCatalogEntry
	err      error
}

func (s *stubCatalog) ListServices(context.Context) ([]domain.ServiceCatalogEntry, error) {
	return s.services, s.err
}

func (s *stubCatalog) ListCompanyTypes(context.Context) ([]domain.CompanyType, error) {
	return []domain.CompanyType{{ID: "GmbH", Name: "GmbH", IsActive: true}}, s.err
}

type stubResolver struct {
	res *resolver.Resolution
	err error
}

func (s *stubResolver) Resolve(context.Context, string) (*resolver.Resolution, error) {
	return s.res, s.err
}

type stubFiles struct {
	file *remote.Download
	err  error
	url  string
}

func (s *stubFiles) Download(_ context.Context, fileURL string) (*remote.Download, error) {
	s.url = fileURL
	return s.file, s.err
}

type stubExtractor struct{}

func (stubExtractor) ParseAddress(_ context.Context, text string) (*extract.Address, error) {
	return &extract.Address{Street: text}, nil
}

func (stubExtractor) ParseCompanyDocument(_ context.Context, _, companyTypeID string) (*extract.CompanyDocument, error) {
	return &extract.CompanyDocument{CompanyName: companyTypeID}, nil
}

func newTestRouter(t *testing.T, deps Deps, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Wizard == nil {
		deps.Wizard = &stubWizard{}
	}
	if deps.Catalog == nil {
		deps.Catalog = &stubCatalog{}
	}
	if deps.References == nil {
		deps.References = &stubResolver{}
	}
	if deps.Files == nil {
		deps.Files = &stubFiles{}
	}
	router, err := buildRouter(zerolog.Nop(), nil, deps, opts)
	require.NoError(t, err)
	return router
}

func do(router http.Handler, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestBuildRouterRequiresServices(t *testing.T) {
	_, err := buildRouter(zerolog.Nop(), nil, Deps{}, Options{})
	assert.Error(t, err)
}

func TestHealthAndReadiness(t *testing.T) {
	router := newTestRouter(t, Deps{}, Options{})
	rec := do(router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = do(router, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", decode(t, rec)["journal"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := newTestRouter(t, Deps{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestUpdateLeadRequiresEmail(t *testing.T) {
	wiz := &stubWizard{}
	router := newTestRouter(t, Deps{Wizard: wiz}, Options{})

	rec := do(router, http.MethodPost, "/api/erp/update-lead", "application/json", strings.NewReader(`{"companyInfo":{"city":"Berlin"}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, wiz.submits)

	rec = do(router, http.MethodPost, "/api/erp/update-lead", "application/json", strings.NewReader(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateLeadJSON(t *testing.T) {
	wiz := &stubWizard{result: &wizard.SubmitResult{
		Lead:     remote.Record{"name": "LEAD-1"},
		Name:     "LEAD-1",
		Created:  true,
		Message:  "Lead created successfully",
		Degraded: []string{"custom_service_selections"},
		Report: domain.SyncReport{Businesses: []domain.EntryStatus{
			{Index: 0, Title: "Roma", Address: domain.StepStatus{Action: domain.ActionFailed, Error: "City is mandatory"}},
		}},
	}}
	router := newTestRouter(t, Deps{Wizard: wiz}, Options{})

	body := `{"email":"a@x.com","companyInfo":{"companyName":"Acme"},"services":["svc-1"],"documents":{"idFiles":["/files/a.pdf"]}}`
	rec := do(router, http.MethodPost, "/api/erp/update-lead", "application/json", strings.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Lead created successfully", out["message"])
	assert.Equal(t, []any{"custom_service_selections"}, out["degraded"])
	sync := out["sync"].(map[string]any)
	assert.Len(t, sync["businesses"], 1)

	assert.Equal(t, "Acme", wiz.got.CompanyInfo.CompanyName)
	assert.Equal(t, []string{"svc-1"}, wiz.got.Services)
	require.Len(t, wiz.got.Documents.IDFiles, 1)
	assert.Equal(t, "/files/a.pdf", wiz.got.Documents.IDFiles[0].URL)
}

func TestUpdateLeadMultipart(t *testing.T) {
	wiz := &stubWizard{result: &wizard.SubmitResult{Name: "LEAD-1", Message: "Lead updated successfully"}}
	router := newTestRouter(t, Deps{Wizard: wiz}, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("payload", `{"email":"a@x.com","documents":{"typeOfCompany":"GmbH"}}`))
	part, err := mw.CreateFormFile("files.id", "passport.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	other, err := mw.CreateFormFile("attachment", "ignored.txt")
	require.NoError(t, err)
	_, err = other.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := do(router, http.MethodPost, "/api/erp/update-lead", mw.FormDataContentType(), &buf)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a@x.com", wiz.got.Email)
	assert.Equal(t, "GmbH", wiz.got.Documents.TypeOfCompany)
	require.Len(t, wiz.got.Uploads, 1)
	assert.Equal(t, "%PDF-1.4", wiz.content["id/passport.pdf"])
}

func TestUpdateLeadMapsErrors(t *testing.T) {
	wiz := &stubWizard{err: &domain.RemoteError{Method: "POST", Resource: "Lead", Status: 417, Message: "Mandatory field missing"}}
	router := newTestRouter(t, Deps{Wizard: wiz}, Options{})

	rec := do(router, http.MethodPost, "/api/erp/update-lead", "application/json", strings.NewReader(`{"email":"a@x.com"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Mandatory field missing", decode(t, rec)["error"])

	wiz.err = domain.NewValidationError("files.selfie", "unknown document category")
	rec = do(router, http.MethodPost, "/api/erp/update-lead", "application/json", strings.NewReader(`{"email":"a@x.com"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLead(t *testing.T) {
	wiz := &stubWizard{loadErr: domain.NewNotFoundError("lead", "a@x.com", "email_id")}
	router := newTestRouter(t, Deps{Wizard: wiz}, Options{})

	rec := do(router, http.MethodPost, "/api/erp/get-lead", "application/json", strings.NewReader(`{"email":"a@x.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Nil(t, out["lead"])
	assert.Equal(t, "No lead found for this user", out["message"])

	wiz.loadErr = nil
	wiz.state = &wizard.State{Name: "LEAD-1", Email: "a@x.com", Services: []string{"svc-1"}}
	rec = do(router, http.MethodPost, "/api/erp/get-lead", "application/json", strings.NewReader(`{"email":"a@x.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	lead := decode(t, rec)["lead"].(map[string]any)
	assert.Equal(t, "LEAD-1", lead["name"])

	rec = do(router, http.MethodPost, "/api/erp/get-lead", "application/json", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	cat := &stubCatalog{err: domain.NewNotFoundError("resource type", "", "Services", "Service")}
	router := newTestRouter(t, Deps{Catalog: cat}, Options{})

	rec := do(router, http.MethodGet, "/api/erp/get-services", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []any{"Services", "Service"}, decode(t, rec)["tried"])

	cat.err = nil
	cat.services = []domain.ServiceCatalogEntry{{ID: "svc-1", Name: "Premium", IsActive: true, Contracts: []any{}}}
	rec = do(router, http.MethodGet, "/api/erp/get-services", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["services"], 1)

	rec = do(router, http.MethodGet, "/api/erp/get-company-types", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["companyTypes"], 1)
}

func TestProxyImage(t *testing.T) {
	files := &stubFiles{file: &remote.Download{ContentType: "image/png", Body: []byte("png")}}
	router := newTestRouter(t, Deps{Files: files}, Options{})

	rec := do(router, http.MethodGet, "/api/erp/proxy-image", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/api/erp/proxy-image?url=%2Fprivate%2Ffiles%2Fa.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/private/files/a.png", files.url)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "png", rec.Body.String())

	files.err = &domain.RemoteError{Status: http.StatusForbidden, Message: "not permitted"}
	rec = do(router, http.MethodGet, "/api/erp/proxy-image?url=/private/files/a.png", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidateReference(t *testing.T) {
	res := &stubResolver{err: domain.NewNotFoundError("Sales Person", "SP-9", "primary-key", "key-field")}
	router := newTestRouter(t, Deps{References: res}, Options{ExposeDebug: true})

	rec := do(router, http.MethodPost, "/api/reference/validate", "application/json", strings.NewReader(`{"reference":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/api/reference/validate", "application/json", strings.NewReader(`{"reference":" SP-9 "}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["valid"])
	assert.Equal(t, "SP-9", out["searchedValue"])
	assert.Equal(t, "Sales Person not found", out["message"])
	assert.Equal(t, []any{"primary-key", "key-field"}, out["debug"])

	res.err = nil
	res.res = &resolver.Resolution{Record: remote.Record{"name": "SP-9"}, Strategy: resolver.StrategyPrimaryKey}
	rec = do(router, http.MethodPost, "/api/reference/validate", "application/json", strings.NewReader(`{"reference":"SP-9"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	out = decode(t, rec)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, "SP-9", out["sales_person"].(map[string]any)["name"])
}

func TestValidateReferenceHidesDebugByDefault(t *testing.T) {
	res := &stubResolver{err: domain.NewNotFoundError("Sales Person", "SP-9", "primary-key")}
	router := newTestRouter(t, Deps{References: res}, Options{})
	rec := do(router, http.MethodPost, "/api/reference/validate", "application/json", strings.NewReader(`{"reference":"SP-9"}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, decode(t, rec), "debug")
}

func TestExtractRoutes(t *testing.T) {
	router := newTestRouter(t, Deps{}, Options{})
	rec := do(router, http.MethodPost, "/api/extract/address", "application/json", strings.NewReader(`{"addressText":"Main St 1"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router = newTestRouter(t, Deps{Extractor: stubExtractor{}}, Options{})
	rec = do(router, http.MethodPost, "/api/extract/address", "application/json", strings.NewReader(`{"addressText":"Main St 1"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Main St 1", decode(t, rec)["address"].(map[string]any)["street"])

	rec = do(router, http.MethodPost, "/api/extract/company-document", "application/json", strings.NewReader(`{"text":"...","companyTypeId":"GmbH"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GmbH", decode(t, rec)["companyInfo"].(map[string]any)["companyName"])
}

func TestJournalRoute(t *testing.T) {
	mem := journal.NewMemory()
	_, err := mem.Append(context.Background(), journal.Entry{Email: "a@x.com", LeadName: "LEAD-1"})
	require.NoError(t, err)
	router := newTestRouter(t, Deps{Journal: mem}, Options{})

	rec := do(router, http.MethodGet, "/api/journal", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/api/journal?limit=x&email=a@x.com", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/api/journal?email=A@x.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "LEAD-1", entries[0].(map[string]any)["leadName"])
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, Deps{}, Options{CORSAllowedOrigins: []string{"https://wizard.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/erp/update-lead", nil)
	req.Header.Set("Origin", "https://wizard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://wizard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerExposesRouter(t *testing.T) {
	srv, err := New(":0", zerolog.Nop(), nil, Deps{
		Wizard:     &stubWizard{},
		Catalog:    &stubCatalog{},
		References: &stubResolver{},
		Files:      &stubFiles{},
	}, Options{})
	require.NoError(t, err)

	rec := do(srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, srv.Shutdown(context.Background()))
}
