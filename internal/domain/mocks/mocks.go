// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

// JobStore is a mock of domain.JobStore.
type JobStore struct{ mock.Mock }

func (m *JobStore) CreateJob(ctx domain.Context, j domain.Job) (domain.Job, bool, error) {
	args := m.Called(ctx, j)
	return args.Get(0).(domain.Job), args.Bool(1), args.Error(2)
}

func (m *JobStore) ClaimNextPending(ctx domain.Context, workerID string, leaseTTL time.Duration) (domain.Job, bool, error) {
	args := m.Called(ctx, workerID, leaseTTL)
	return args.Get(0).(domain.Job), args.Bool(1), args.Error(2)
}

func (m *JobStore) RenewLease(ctx domain.Context, jobID, workerID string, leaseTTL time.Duration) (bool, error) {
	args := m.Called(ctx, jobID, workerID, leaseTTL)
	return args.Bool(0), args.Error(1)
}

func (m *JobStore) CompleteJob(ctx domain.Context, jobID, workerID string, result json.RawMessage) error {
	args := m.Called(ctx, jobID, workerID, result)
	return args.Error(0)
}

func (m *JobStore) FailAndRetry(ctx domain.Context, jobID, workerID, errMsg string, permanent bool) (domain.FailOutcome, error) {
	args := m.Called(ctx, jobID, workerID, errMsg, permanent)
	return args.Get(0).(domain.FailOutcome), args.Error(1)
}

func (m *JobStore) ReclaimExpiredLeases(ctx domain.Context, now time.Time) ([]domain.Job, error) {
	args := m.Called(ctx, now)
	if v := args.Get(0); v != nil {
		return v.([]domain.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *JobStore) GetJob(ctx domain.Context, id, tenantID string) (domain.Job, error) {
	args := m.Called(ctx, id, tenantID)
	return args.Get(0).(domain.Job), args.Error(1)
}

func (m *JobStore) ListJobs(ctx domain.Context, tenantID string, f domain.JobFilter) ([]domain.Job, error) {
	args := m.Called(ctx, tenantID, f)
	if v := args.Get(0); v != nil {
		return v.([]domain.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *JobStore) ListDLQ(ctx domain.Context, tenantID string, limit, offset int) ([]domain.DLQEntry, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if v := args.Get(0); v != nil {
		return v.([]domain.DLQEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *JobStore) Summarize(ctx domain.Context, tenantID string) (domain.JobCounts, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(domain.JobCounts), args.Error(1)
}

func (m *JobStore) CountRunningForTenant(ctx domain.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

func (m *JobStore) SnapshotMetrics(ctx domain.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// TenantStore is a mock of domain.TenantStore.
type TenantStore struct{ mock.Mock }

func (m *TenantStore) GetByAPIKey(ctx domain.Context, apiKey string) (domain.Tenant, error) {
	args := m.Called(ctx, apiKey)
	return args.Get(0).(domain.Tenant), args.Error(1)
}

func (m *TenantStore) GetByID(ctx domain.Context, id string) (domain.Tenant, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Tenant), args.Error(1)
}

func (m *TenantStore) Upsert(ctx domain.Context, t domain.Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// EventBus is a mock of domain.EventBus.
type EventBus struct{ mock.Mock }

func (m *EventBus) Publish(ev domain.Event) { m.Called(ev) }

func (m *EventBus) Subscribe() *domain.Subscription {
	args := m.Called()
	return args.Get(0).(*domain.Subscription)
}

func (m *EventBus) Unsubscribe(s *domain.Subscription) { m.Called(s) }
