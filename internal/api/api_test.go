package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	callbackApp "github.com/ahrav/docflow/internal/application/callback"
	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/application/jobs"
	"github.com/ahrav/docflow/internal/application/progress"
	"github.com/ahrav/docflow/internal/domain/campaign"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/pipeline"
	"github.com/ahrav/docflow/internal/domain/tenant"
	wf "github.com/ahrav/docflow/internal/domain/workflow"
	"github.com/ahrav/docflow/internal/infra/objectstore"
	"github.com/ahrav/docflow/internal/infra/storage/memory"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

type fakeEngine struct {
	mu        sync.Mutex
	launched  []string
	cancelled []string
}

func (e *fakeEngine) Launch(_ context.Context, j *job.Job) (*wf.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launched = append(e.launched, j.ID)
	return wf.New(j.ID), nil
}

func (e *fakeEngine) Cancel(_ context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, jobID)
	return nil
}

type fakeSignaler struct {
	mu    sync.Mutex
	names []string
}

func (s *fakeSignaler) Signal(_ context.Context, _, name string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return nil
}

type nullPublisher struct{}

func (nullPublisher) Publish(*event.Event) {}

type apiEnv struct {
	router    http.Handler
	tenant    *tenant.Tenant
	tenants   *memory.TenantStore
	tenantCtx context.Context
	engine    *fakeEngine
	signaler  *fakeSignaler
	callbacks *callbackApp.Service
	jobs      *jobs.Manager
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	log := logger.Noop()
	tracer := noop.NewTracerProvider().Tracer("test")

	tenants := memory.NewTenantStore()
	tn, err := tenant.New("acme", "Acme Corp")
	require.NoError(t, err)
	require.NoError(t, tenants.Create(context.Background(), tn))

	manager := tenantctx.NewManager("postgres://localhost:5432/%s?sslmode=disable")
	ctx, err := manager.Bind(context.Background(), tn)
	require.NoError(t, err)

	campaigns := memory.NewCampaignStore()
	c, err := campaign.New("kyc-onboarding", "KYC Onboarding", pipeline.Pipeline{Processors: []pipeline.Step{
		{Slug: "ocr", Category: "ocr"},
	}})
	require.NoError(t, err)
	require.NoError(t, c.Publish())
	require.NoError(t, campaigns.Create(ctx, c))

	tracker := progress.NewTracker(memory.NewProgressStore(), nullPublisher{}, log, tracer)
	jobManager := jobs.NewManager(campaigns, memory.NewDocumentStore(), memory.NewJobStore(),
		objectstore.NewMemory(), tracker, memory.NewUsageStore(), memory.NewAuditStore(),
		nullPublisher{}, log, tracer)
	engine := &fakeEngine{}
	jobManager.SetEngine(engine)

	sig := &fakeSignaler{}
	callbacks := callbackApp.NewService(memory.NewCallbackStore(), tenants, manager, sig,
		nullPublisher{}, log, tracer)

	srv := NewServer(tenants, manager, jobManager, callbacks, log, tracer)
	return &apiEnv{
		router:    srv.Router(),
		tenant:    tn,
		tenants:   tenants,
		tenantCtx: ctx,
		engine:    engine,
		signaler:  sig,
		callbacks: callbacks,
		jobs:      jobManager,
	}
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeJSON[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestUploadAcceptsDocument(t *testing.T) {
	env := newAPIEnv(t)

	body, contentType := multipartBody(t, "passport.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/kyc-onboarding/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant", "acme")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeJSON[map[string]string](t, rec.Body)
	assert.NotEmpty(t, resp["document_id"])
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, string(job.StatePending), resp["state"])
	assert.Len(t, env.engine.launched, 1)
}

func TestUploadRequiresTenantHeader(t *testing.T) {
	env := newAPIEnv(t)

	body, contentType := multipartBody(t, "f.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/kyc-onboarding/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadUnknownTenant(t *testing.T) {
	env := newAPIEnv(t)

	body, contentType := multipartBody(t, "f.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/kyc-onboarding/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant", "ghost")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadSuspendedTenant(t *testing.T) {
	env := newAPIEnv(t)
	env.tenant.Suspend()
	require.NoError(t, env.tenants.Update(context.Background(), env.tenant))

	body, contentType := multipartBody(t, "f.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/kyc-onboarding/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant", "acme")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadMissingFileField(t *testing.T) {
	env := newAPIEnv(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("user_id", "u-1"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/kyc-onboarding/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Tenant", "acme")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeJSON[map[string]string](t, rec.Body)
	assert.Equal(t, "missing file field", resp["error"])
}

func TestUploadUnknownCampaign(t *testing.T) {
	env := newAPIEnv(t)

	body, contentType := multipartBody(t, "f.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/ghost/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant", "acme")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobAndProgress(t *testing.T) {
	env := newAPIEnv(t)

	_, j, err := env.jobs.Ingest(env.tenantCtx, "kyc-onboarding",
		jobs.Upload{Filename: "f.pdf", MimeType: "application/pdf", Data: []byte("x")})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+j.PublicID, nil)
	req.Header.Set("X-Tenant", "acme")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[map[string]any](t, rec.Body)
	assert.Equal(t, j.PublicID, resp["id"])
	assert.Equal(t, string(job.StatePending), resp["state"])
	assert.Equal(t, float64(1), resp["total_steps"])

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/"+j.PublicID+"/progress", nil)
	req.Header.Set("X-Tenant", "acme")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	prog := decodeJSON[map[string]any](t, rec.Body)
	assert.Equal(t, float64(1), prog["total_stages"])
	assert.Equal(t, float64(0), prog["completed_stages"])
}

func TestGetJobNotFound(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
	req.Header.Set("X-Tenant", "acme")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	env := newAPIEnv(t)

	_, j, err := env.jobs.Ingest(env.tenantCtx, "kyc-onboarding",
		jobs.Upload{Filename: "f.pdf", MimeType: "application/pdf", Data: []byte("x")})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+j.PublicID+"/cancel", nil)
	req.Header.Set("X-Tenant", "acme")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{j.ID}, env.engine.cancelled)
}

func TestKYCCallbackQueryParamWins(t *testing.T) {
	env := newAPIEnv(t)
	require.NoError(t, env.callbacks.Register(env.tenantCtx, "txn_real", env.tenant.ID, "d", "e", "wf-1", nil))

	req := httptest.NewRequest(http.MethodGet,
		"/kyc/callback/txn_path?transactionId=txn_real&status=approved", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[map[string]string](t, rec.Body)
	assert.Equal(t, "txn_real", resp["transaction_id"])
	assert.Equal(t, "auto_approved", resp["status"])
	assert.Equal(t, []string{"txn_real"}, env.signaler.names)
}

func TestKYCCallbackDefaultsStatus(t *testing.T) {
	env := newAPIEnv(t)
	require.NoError(t, env.callbacks.Register(env.tenantCtx, "txn_1", env.tenant.ID, "d", "e", "wf-1", nil))

	req := httptest.NewRequest(http.MethodGet, "/kyc/callback/txn_1", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[map[string]string](t, rec.Body)
	assert.Equal(t, "auto_approved", resp["status"])
}

func TestKYCCallbackUnknownStatusIsBadRequest(t *testing.T) {
	env := newAPIEnv(t)
	require.NoError(t, env.callbacks.Register(env.tenantCtx, "txn_1", env.tenant.ID, "d", "e", "wf-1", nil))

	req := httptest.NewRequest(http.MethodGet, "/kyc/callback/txn_1?status=maybe", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKYCCallbackUnknownTransactionIsNotFound(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/kyc/callback/txn_ghost", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
