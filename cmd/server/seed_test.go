package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain/mocks"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeedTenants(t *testing.T) {
	store := &mocks.TenantStore{}
	store.On("Upsert", mock.Anything, domain.Tenant{
		ID: "acme", Name: "Acme Corp", APIKey: "dev-key",
		MaxConcurrentJobs: 5, RateLimitPerMinute: 10,
	}).Return(nil)

	path := writeSeed(t, `
tenants:
  - id: acme
    name: Acme Corp
    api_key: dev-key
    max_concurrent_jobs: 5
    rate_limit_per_minute: 10
`)
	require.NoError(t, seedTenants(context.Background(), store, path))
	store.AssertExpectations(t)
}

func TestSeedTenants_RejectsMissingKey(t *testing.T) {
	store := &mocks.TenantStore{}
	path := writeSeed(t, "tenants:\n  - id: acme\n")
	err := seedTenants(context.Background(), store, path)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSeedTenants_MissingFile(t *testing.T) {
	err := seedTenants(context.Background(), &mocks.TenantStore{}, "/nonexistent.yaml")
	require.Error(t, err)
}
