package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpserver "github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/adapter/httpserver"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/admission"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain/mocks"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/eventbus"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/usecase"
)

type fixture struct {
	jobs    *mocks.JobStore
	tenants *mocks.TenantStore
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jobs := &mocks.JobStore{}
	tenants := &mocks.TenantStore{}
	bus := eventbus.New(16)
	adm := admission.NewController(admission.NewLocalRateLimiter(), jobs)
	svc := usecase.NewJobService(jobs, adm, bus, 3)
	srv := httpserver.NewServer(config.Config{}, svc, tenants, bus, nil)

	r := chi.NewRouter()
	r.Group(func(tr chi.Router) {
		tr.Use(httpserver.RequireTenant(tenants))
		tr.Post("/v1/jobs", srv.SubmitJobHandler())
		tr.Get("/v1/jobs", srv.ListJobsHandler())
		tr.Get("/v1/jobs/{id}", srv.GetJobHandler())
		tr.Get("/v1/dlq", srv.ListDLQHandler())
		tr.Get("/v1/metrics", srv.MetricsHandler())
	})
	r.Get("/readyz", srv.ReadyzHandler())
	return &fixture{jobs: jobs, tenants: tenants, router: r}
}

func (f *fixture) allow(t domain.Tenant) {
	f.tenants.On("GetByAPIKey", mock.Anything, t.APIKey).Return(t, nil)
}

func acme() domain.Tenant {
	return domain.Tenant{ID: "acme", Name: "acme", APIKey: "secret", RateLimitPerMinute: 60, MaxConcurrentJobs: 5}
}

func doJSON(f *fixture, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestSubmitJob_Created(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)
	f.jobs.On("CountRunningForTenant", mock.Anything, tn.ID).Return(0, nil)
	f.jobs.On("CreateJob", mock.Anything, mock.Anything).
		Return(domain.Job{ID: "j1", TenantID: tn.ID, Status: domain.JobPending, TraceID: "tr"}, true, nil)

	rec := doJSON(f, http.MethodPost, "/v1/jobs", tn.APIKey, `{"payload":{"n":1}}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "j1", got.ID)
	assert.Equal(t, "pending", got.Status)
}

func TestSubmitJob_IdempotentReplayReturns200(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)
	f.jobs.On("CountRunningForTenant", mock.Anything, tn.ID).Return(0, nil)
	f.jobs.On("CreateJob", mock.Anything, mock.MatchedBy(func(j domain.Job) bool {
		return j.IdempotencyKey != nil && *j.IdempotencyKey == "k1"
	})).Return(domain.Job{ID: "orig", TenantID: tn.ID, Status: domain.JobCompleted}, false, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"payload":{}}`))
	req.Header.Set("Authorization", "Bearer "+tn.APIKey)
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"orig"`)
}

func TestSubmitJob_Validation(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)

	cases := map[string]string{
		"missing payload": `{"max_retries":2}`,
		"malformed json":  `{"payload":`,
		"retries too big": `{"payload":{},"max_retries":99}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(f, http.MethodPost, "/v1/jobs", tn.APIKey, body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, rec))
		})
	}
	f.jobs.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestSubmitJob_RateLimitedMapsTo429(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	tn.RateLimitPerMinute = 0 // bucket is empty from the start
	f.allow(tn)

	rec := doJSON(f, http.MethodPost, "/v1/jobs", tn.APIKey, `{"payload":{}}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
}

func TestSubmitJob_ConcurrencyMapsTo429(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	tn.MaxConcurrentJobs = 2
	f.allow(tn)
	f.jobs.On("CountRunningForTenant", mock.Anything, tn.ID).Return(2, nil)

	rec := doJSON(f, http.MethodPost, "/v1/jobs", tn.APIKey, `{"payload":{}}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "CONCURRENCY_EXCEEDED", errorCode(t, rec))
	f.jobs.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestGetJob_StatusMapping(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)

	f.jobs.On("GetJob", mock.Anything, "missing", tn.ID).Return(domain.Job{}, domain.ErrNotFound)
	f.jobs.On("GetJob", mock.Anything, "foreign", tn.ID).Return(domain.Job{}, domain.ErrForbidden)
	f.jobs.On("GetJob", mock.Anything, "mine", tn.ID).
		Return(domain.Job{ID: "mine", TenantID: tn.ID, Status: domain.JobRunning}, nil)

	rec := doJSON(f, http.MethodGet, "/v1/jobs/missing", tn.APIKey, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = doJSON(f, http.MethodGet, "/v1/jobs/foreign", tn.APIKey, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(f, http.MethodGet, "/v1/jobs/mine", tn.APIKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running"`)
}

func TestListJobs_FilterAndShape(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)

	f.jobs.On("ListJobs", mock.Anything, tn.ID, domain.JobFilter{Status: domain.JobPending, Limit: 2}).
		Return([]domain.Job{{ID: "a"}, {ID: "b"}}, nil)

	rec := doJSON(f, http.MethodGet, "/v1/jobs?status=pending&limit=2", tn.APIKey, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Count int               `json:"count"`
		Jobs  []json.RawMessage `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count)

	rec = doJSON(f, http.MethodGet, "/v1/jobs?status=bogus", tn.APIKey, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDLQ(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)

	f.jobs.On("ListDLQ", mock.Anything, tn.ID, 0, 0).
		Return([]domain.DLQEntry{{ID: "d1", OriginalJobID: "j1", TenantID: tn.ID, ErrorMessage: "boom"}}, nil)

	rec := doJSON(f, http.MethodGet, "/v1/dlq", tn.APIKey, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"boom"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)

	f.jobs.On("Summarize", mock.Anything, tn.ID).
		Return(domain.JobCounts{Total: 7, Completed: 5, DLQ: 2}, nil)

	rec := doJSON(f, http.MethodGet, "/v1/metrics", tn.APIKey, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got domain.JobCounts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got.Total)
	assert.Equal(t, 5, got.Completed)
	assert.Equal(t, 2, got.DLQ)
}

func TestReadyz(t *testing.T) {
	f := newFixture(t)
	rec := doJSON(f, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
