package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpserver "github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/adapter/httpserver"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/admission"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/app"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain/mocks"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/eventbus"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/usecase"
)

func buildTestRouter(t *testing.T) (http.Handler, *mocks.TenantStore) {
	t.Helper()
	jobs := &mocks.JobStore{}
	tenants := &mocks.TenantStore{}
	bus := eventbus.New(16)
	adm := admission.NewController(admission.NewLocalRateLimiter(), jobs)
	svc := usecase.NewJobService(jobs, adm, bus, 3)
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 1000}
	srv := httpserver.NewServer(cfg, svc, tenants, bus, nil)
	return app.BuildRouter(cfg, srv), tenants
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, app.ParseOrigins(""))
	assert.Equal(t, []string{"*"}, app.ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		app.ParseOrigins(" https://a.example , https://b.example "))
}

func TestRouter_Healthz(t *testing.T) {
	r, _ := buildTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MetricsExposed(t *testing.T) {
	r, _ := buildTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_TenantRoutesRequireAuth(t *testing.T) {
	r, tenants := buildTestRouter(t)
	tenants.On("GetByAPIKey", mock.Anything, mock.Anything).
		Return(domain.Tenant{}, domain.ErrUnauthorized).Maybe()

	for _, path := range []string{"/v1/jobs", "/v1/dlq", "/v1/metrics", "/v1/events"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	r, _ := buildTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
