package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limited")
	ErrConcurrencyExceeded = errors.New("concurrency limit exceeded")
	ErrInternal            = errors.New("internal error")
)

// JobStatus is the persisted job state machine value.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobDLQ       JobStatus = "dlq"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobDLQ:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobDLQ:
		return true
	}
	return false
}

// Tenant is an isolated principal with its own credential and admission
// limits. Rows are provisioned out-of-band (tenantctl or seed file) and read
// by the submission path on every request.
//
// APIKey is a cleartext bearer token, preserved from the source system. A
// hardened deployment should store a salted hash instead.
type Tenant struct {
	ID                 string
	Name               string
	APIKey             string
	MaxConcurrentJobs  int
	RateLimitPerMinute int
	CreatedAt          time.Time
}

// Job is the primary entity. Payload and Result are opaque JSON; the core
// never inspects them.
//
// Invariants:
//   - pending    => worker_id and lease_expires_at cleared, completed_at unset
//   - running    => worker_id, lease_expires_at, started_at all set
//   - terminal   => completed_at set, lease fields cleared
//   - retry_count <= max_retries
type Job struct {
	ID             string
	TenantID       string
	Status         JobStatus
	Payload        json.RawMessage
	Result         json.RawMessage
	ErrorMessage   string
	IdempotencyKey *string
	TraceID        string
	RetryCount     int
	MaxRetries     int
	WorkerID       *string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// CanRetry reports whether the job has retry budget left.
func (j Job) CanRetry() bool { return j.RetryCount < j.MaxRetries }

// LeaseExpired reports whether the job's lease has lapsed at now.
func (j Job) LeaseExpired(now time.Time) bool {
	return j.LeaseExpiresAt != nil && now.After(*j.LeaseExpiresAt)
}

// DLQEntry is a copy-forward of a job that exhausted its retries. Immutable
// once written.
type DLQEntry struct {
	ID            string
	OriginalJobID string
	TenantID      string
	Payload       json.RawMessage
	ErrorMessage  string
	RetryCount    int
	TraceID       string
	JobCreatedAt  time.Time
	FailedAt      time.Time
}

// JobCounts is the per-tenant roll-up served by the metrics endpoint.
type JobCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	DLQ       int `json:"dlq"`
}

// JobFilter narrows ListJobs. Zero values mean "no constraint"; Limit is
// capped by the store.
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

// FailOutcome reports where FailAndRetry left the job.
type FailOutcome int

const (
	FailRetried FailOutcome = iota
	FailDLQ
)

// Context is an alias so ports stay decoupled from net/http plumbing.
type Context = context.Context

// JobStore is the transactional persistence port. All mutating operations
// are atomic; owner-guarded operations reject a stale worker with
// ErrConflict.
type JobStore interface {
	// CreateJob inserts a new pending job, or returns the existing job
	// unchanged (created=false) when (tenant_id, idempotency_key) already
	// exists.
	CreateJob(ctx Context, j Job) (Job, bool, error)
	// ClaimNextPending atomically leases the oldest pending job, skipping
	// rows locked by concurrent claimants. ok=false when the queue is empty.
	ClaimNextPending(ctx Context, workerID string, leaseTTL time.Duration) (Job, bool, error)
	// RenewLease extends the lease iff the job is still running and still
	// owned by workerID.
	RenewLease(ctx Context, jobID, workerID string, leaseTTL time.Duration) (bool, error)
	// CompleteJob marks the job completed with its result. Owner-guarded.
	CompleteJob(ctx Context, jobID, workerID string, result json.RawMessage) error
	// FailAndRetry either returns the job to pending (retry budget left and
	// the failure is not permanent) or promotes it to the DLQ. Owner-guarded.
	FailAndRetry(ctx Context, jobID, workerID, errMsg string, permanent bool) (FailOutcome, error)
	// ReclaimExpiredLeases returns running jobs whose lease lapsed before now
	// to pending and reports them. retry_count is not touched.
	ReclaimExpiredLeases(ctx Context, now time.Time) ([]Job, error)
	GetJob(ctx Context, id, tenantID string) (Job, error)
	ListJobs(ctx Context, tenantID string, f JobFilter) ([]Job, error)
	ListDLQ(ctx Context, tenantID string, limit, offset int) ([]DLQEntry, error)
	Summarize(ctx Context, tenantID string) (JobCounts, error)
	// CountRunningForTenant reports how many of the tenant's jobs are
	// running right now. The concurrency gate compares it against the
	// tenant's cap on every submission.
	CountRunningForTenant(ctx Context, tenantID string) (int, error)
	// SnapshotMetrics persists a global roll-up row.
	SnapshotMetrics(ctx Context) error
}

// TenantStore resolves and provisions tenants.
type TenantStore interface {
	GetByAPIKey(ctx Context, apiKey string) (Tenant, error)
	GetByID(ctx Context, id string) (Tenant, error)
	Upsert(ctx Context, t Tenant) error
}

// Handler executes the pluggable business logic for one job. The context
// carries a deadline derived from the lease and is cancelled when lease
// renewal fails; any result produced after cancellation is discarded.
type Handler interface {
	Handle(ctx Context, j Job) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx Context, j Job) (json.RawMessage, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx Context, j Job) (json.RawMessage, error) { return f(ctx, j) }

// PermanentError marks a handler failure that must bypass the retry ladder
// and go straight to the DLQ.
type PermanentError struct{ Msg string }

// Error implements error.
func (e *PermanentError) Error() string { return e.Msg }

// Permanent wraps msg as a PermanentError.
func Permanent(msg string) error { return &PermanentError{Msg: msg} }

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
