package httpserver_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

func TestAuth_MissingHeader(t *testing.T) {
	f := newFixture(t)
	rec := doJSON(f, http.MethodGet, "/v1/jobs", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
	f.tenants.AssertNotCalled(t, "GetByAPIKey", mock.Anything, mock.Anything)
}

func TestAuth_UnknownKey(t *testing.T) {
	f := newFixture(t)
	f.tenants.On("GetByAPIKey", mock.Anything, "wrong").
		Return(domain.Tenant{}, domain.ErrUnauthorized)

	rec := doJSON(f, http.MethodGet, "/v1/jobs", "wrong", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestAuth_ValidKeyReachesHandler(t *testing.T) {
	f := newFixture(t)
	tn := acme()
	f.allow(tn)
	f.jobs.On("ListJobs", mock.Anything, tn.ID, domain.JobFilter{}).Return(nil, nil)

	rec := doJSON(f, http.MethodGet, "/v1/jobs", tn.APIKey, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
