// Package usecase contains the application services that sit between the
// transport adapters and the persistence ports.
package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/admission"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

// SubmitRequest carries the validated submission input.
type SubmitRequest struct {
	Payload        json.RawMessage
	IdempotencyKey *string
	MaxRetries     int
}

// JobService implements the tenant-facing job operations: admission-gated
// submission, status reads, listings and the metrics roll-up.
type JobService struct {
	jobs       domain.JobStore
	admission  *admission.Controller
	bus        domain.EventBus
	maxRetries int
}

// NewJobService wires a JobService. defaultMaxRetries is used when a
// submission does not set its own budget.
func NewJobService(jobs domain.JobStore, adm *admission.Controller, bus domain.EventBus, defaultMaxRetries int) *JobService {
	return &JobService{jobs: jobs, admission: adm, bus: bus, maxRetries: defaultMaxRetries}
}

// Submit runs the admission pipeline and enqueues a job for t.
//
// The rate gate consumes a token first; the concurrency gate then compares
// the tenant's live count of running jobs against its cap. Pending jobs do
// not count against the cap, so a tenant may queue ahead of its workers.
func (s *JobService) Submit(ctx domain.Context, t domain.Tenant, req SubmitRequest) (domain.Job, bool, error) {
	tracer := otel.Tracer("usecase.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Submit")
	defer span.End()

	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return domain.Job{}, false, fmt.Errorf("op=jobs.Submit: payload must be a JSON object: %w", domain.ErrInvalidArgument)
	}

	ok, err := s.admission.AllowRate(ctx, t)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=jobs.Submit: %w", err)
	}
	if !ok {
		return domain.Job{}, false, fmt.Errorf("op=jobs.Submit: tenant %s: %w", t.ID, domain.ErrRateLimited)
	}
	ok, err = s.admission.AllowConcurrency(ctx, t)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=jobs.Submit: %w", err)
	}
	if !ok {
		return domain.Job{}, false, fmt.Errorf("op=jobs.Submit: tenant %s: %w", t.ID, domain.ErrConcurrencyExceeded)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}
	j := domain.Job{
		ID:             uuid.NewString(),
		TenantID:       t.ID,
		Status:         domain.JobPending,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		TraceID:        traceIDFromContext(ctx),
		MaxRetries:     maxRetries,
	}

	created, isNew, err := s.jobs.CreateJob(ctx, j)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=jobs.Submit: %w", err)
	}
	if !isNew {
		// Idempotent replay: return the original row, emit nothing.
		slog.Default().InfoContext(ctx, "idempotent replay",
			slog.String("job_id", created.ID), slog.String("tenant_id", t.ID))
		return created, false, nil
	}

	observability.JobsSubmittedTotal.WithLabelValues(t.ID).Inc()
	s.bus.Publish(domain.NewEvent(domain.EventJobSubmitted, created, nil))
	slog.Default().InfoContext(ctx, "job submitted",
		slog.String("job_id", created.ID),
		slog.String("tenant_id", t.ID),
		slog.String("trace_id", created.TraceID))
	return created, true, nil
}

// Get returns one of the tenant's jobs.
func (s *JobService) Get(ctx domain.Context, t domain.Tenant, jobID string) (domain.Job, error) {
	j, err := s.jobs.GetJob(ctx, jobID, t.ID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=jobs.Get: %w", err)
	}
	return j, nil
}

// List returns the tenant's jobs, newest first, optionally filtered by status.
func (s *JobService) List(ctx domain.Context, t domain.Tenant, f domain.JobFilter) ([]domain.Job, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("op=jobs.List: unknown status %q: %w", f.Status, domain.ErrInvalidArgument)
	}
	out, err := s.jobs.ListJobs(ctx, t.ID, f)
	if err != nil {
		return nil, fmt.Errorf("op=jobs.List: %w", err)
	}
	return out, nil
}

// ListDLQ returns the tenant's dead-letter entries, newest first.
func (s *JobService) ListDLQ(ctx domain.Context, t domain.Tenant, limit, offset int) ([]domain.DLQEntry, error) {
	out, err := s.jobs.ListDLQ(ctx, t.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=jobs.ListDLQ: %w", err)
	}
	return out, nil
}

// Metrics rolls up the tenant's per-status job counts.
func (s *JobService) Metrics(ctx domain.Context, t domain.Tenant) (domain.JobCounts, error) {
	counts, err := s.jobs.Summarize(ctx, t.ID)
	if err != nil {
		return domain.JobCounts{}, fmt.Errorf("op=jobs.Metrics: %w", err)
	}
	return counts, nil
}

// traceIDFromContext prefers the live span's trace id so DB rows, logs and
// events correlate; falls back to a fresh uuid when tracing is off.
func traceIDFromContext(ctx domain.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}
