package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

// JobRepo persists and loads jobs from PostgreSQL using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, tenant_id, status, payload, result, COALESCE(error_message,''), idempotency_key, trace_id, retry_count, max_retries, worker_id, lease_expires_at, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.TenantID, &j.Status, &j.Payload, &j.Result, &j.ErrorMessage,
		&j.IdempotencyKey, &j.TraceID, &j.RetryCount, &j.MaxRetries,
		&j.WorkerID, &j.LeaseExpiresAt, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	return j, err
}

// CreateJob inserts a new pending job. When the tenant already has a job
// with the same idempotency key, the existing row is returned unchanged and
// created=false.
func (r *JobRepo) CreateJob(ctx domain.Context, j domain.Job) (domain.Job, bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CreateJob")
	defer span.End()

	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.TraceID == "" {
		j.TraceID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}

	q := `INSERT INTO jobs (id, tenant_id, status, payload, idempotency_key, trace_id, retry_count, max_retries, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`
	ct, err := r.Pool.Exec(ctx, q, j.ID, j.TenantID, j.Status, []byte(j.Payload), j.IdempotencyKey, j.TraceID, j.RetryCount, j.MaxRetries, j.CreatedAt)
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=job.create: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return j, true, nil
	}

	// Idempotency hit: hand back the prior job untouched.
	q = `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id=$1 AND idempotency_key=$2`
	existing, err := scanJob(r.Pool.QueryRow(ctx, q, j.TenantID, j.IdempotencyKey))
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=job.create_idem_lookup: %w", err)
	}
	return existing, false, nil
}

// ClaimNextPending atomically leases the oldest pending job for workerID.
// The locking read skips rows held by concurrent transactions, so claims
// from parallel workers never contend on the same row.
func (r *JobRepo) ClaimNextPending(ctx domain.Context, workerID string, leaseTTL time.Duration) (domain.Job, bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ClaimNextPending")
	defer span.End()

	now := time.Now().UTC()
	q := `WITH next AS (
	        SELECT id FROM jobs
	        WHERE status='pending'
	        ORDER BY created_at ASC, id ASC
	        LIMIT 1
	        FOR UPDATE SKIP LOCKED
	      )
	      UPDATE jobs j
	      SET status='running', worker_id=$1, started_at=$2, lease_expires_at=$3
	      FROM next
	      WHERE j.id = next.id
	      RETURNING j.id, j.tenant_id, j.status, j.payload, j.result, COALESCE(j.error_message,''), j.idempotency_key, j.trace_id, j.retry_count, j.max_retries, j.worker_id, j.lease_expires_at, j.created_at, j.started_at, j.completed_at`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, workerID, now, now.Add(leaseTTL)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("op=job.claim: %w", err)
	}
	return j, true, nil
}

// RenewLease extends the lease iff the job is still running and still owned
// by workerID.
func (r *JobRepo) RenewLease(ctx domain.Context, jobID, workerID string, leaseTTL time.Duration) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.RenewLease")
	defer span.End()

	q := `UPDATE jobs SET lease_expires_at=$3 WHERE id=$1 AND worker_id=$2 AND status='running'`
	ct, err := r.Pool.Exec(ctx, q, jobID, workerID, time.Now().UTC().Add(leaseTTL))
	if err != nil {
		return false, fmt.Errorf("op=job.renew_lease: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// CompleteJob marks the job completed and records its result. The owner
// guard rejects a stale worker whose lease was reclaimed mid-flight.
func (r *JobRepo) CompleteJob(ctx domain.Context, jobID, workerID string, result json.RawMessage) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CompleteJob")
	defer span.End()

	q := `UPDATE jobs
	      SET status='completed', result=$3, completed_at=$4, worker_id=NULL, lease_expires_at=NULL
	      WHERE id=$1 AND worker_id=$2 AND status='running'`
	ct, err := r.Pool.Exec(ctx, q, jobID, workerID, []byte(result), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("op=job.complete: stale owner %s for job %s: %w", workerID, jobID, domain.ErrConflict)
	}
	return nil
}

// FailAndRetry records a handler failure. With retry budget left (and a
// non-permanent error) the job returns to pending immediately; otherwise it
// is copied to the DLQ and terminally marked.
func (r *JobRepo) FailAndRetry(ctx domain.Context, jobID, workerID, errMsg string, permanent bool) (domain.FailOutcome, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FailAndRetry")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("op=job.fail_retry_begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		tenantID   string
		payload    []byte
		traceID    string
		retryCount int
		maxRetries int
		createdAt  time.Time
	)
	q := `SELECT tenant_id, payload, trace_id, retry_count, max_retries, created_at
	      FROM jobs WHERE id=$1 AND worker_id=$2 AND status='running' FOR UPDATE`
	if err := tx.QueryRow(ctx, q, jobID, workerID).Scan(&tenantID, &payload, &traceID, &retryCount, &maxRetries, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("op=job.fail_retry: stale owner %s for job %s: %w", workerID, jobID, domain.ErrConflict)
		}
		return 0, fmt.Errorf("op=job.fail_retry_lookup: %w", err)
	}

	outcome := domain.FailDLQ
	if !permanent && retryCount < maxRetries {
		outcome = domain.FailRetried
		q = `UPDATE jobs
		     SET status='pending', retry_count=retry_count+1, worker_id=NULL, lease_expires_at=NULL, started_at=NULL, error_message=NULL
		     WHERE id=$1`
		if _, err := tx.Exec(ctx, q, jobID); err != nil {
			return 0, fmt.Errorf("op=job.retry: %w", err)
		}
	} else {
		now := time.Now().UTC()
		q = `INSERT INTO dlq (id, original_job_id, tenant_id, payload, error_message, retry_count, trace_id, job_created_at, failed_at)
		     VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
		if _, err := tx.Exec(ctx, q, uuid.New().String(), jobID, tenantID, payload, errMsg, retryCount, traceID, createdAt, now); err != nil {
			return 0, fmt.Errorf("op=job.dlq_insert: %w", err)
		}
		q = `UPDATE jobs
		     SET status='dlq', error_message=$2, completed_at=$3, worker_id=NULL, lease_expires_at=NULL
		     WHERE id=$1`
		if _, err := tx.Exec(ctx, q, jobID, errMsg, now); err != nil {
			return 0, fmt.Errorf("op=job.dlq_update: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=job.fail_retry_commit: %w", err)
	}
	return outcome, nil
}

// ReclaimExpiredLeases returns running jobs whose lease lapsed before now to
// pending and reports them so callers can emit events and release slots.
// retry_count is deliberately left alone: a crashed worker is not the job's
// fault.
func (r *JobRepo) ReclaimExpiredLeases(ctx domain.Context, now time.Time) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ReclaimExpiredLeases")
	defer span.End()

	q := `UPDATE jobs
	      SET status='pending', worker_id=NULL, lease_expires_at=NULL, started_at=NULL
	      WHERE status='running' AND lease_expires_at < $1
	      RETURNING ` + jobColumns
	rows, err := r.Pool.Query(ctx, q, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("op=job.reclaim: %w", err)
	}
	defer rows.Close()

	var reclaimed []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.reclaim_scan: %w", err)
		}
		reclaimed = append(reclaimed, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.reclaim_rows: %w", err)
	}
	return reclaimed, nil
}

// GetJob loads a job by id. When tenantID is non-empty a mismatching row is
// reported as forbidden rather than leaking another tenant's job.
func (r *JobRepo) GetJob(ctx domain.Context, id, tenantID string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.GetJob")
	defer span.End()

	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	if tenantID != "" && j.TenantID != tenantID {
		return domain.Job{}, fmt.Errorf("op=job.get: job %s: %w", id, domain.ErrForbidden)
	}
	return j, nil
}

// ListJobs returns the tenant's jobs, newest first, optionally filtered by
// status.
func (r *JobRepo) ListJobs(ctx domain.Context, tenantID string, f domain.JobFilter) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListJobs")
	defer span.End()

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + jobColumns + ` FROM jobs
	      WHERE tenant_id=$1 AND ($2='' OR status=$2)
	      ORDER BY created_at DESC, id DESC
	      LIMIT $3 OFFSET $4`
	rows, err := r.Pool.Query(ctx, q, tenantID, string(f.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_rows: %w", err)
	}
	return jobs, nil
}

// ListDLQ returns the tenant's dead-letter entries, newest first.
func (r *JobRepo) ListDLQ(ctx domain.Context, tenantID string, limit, offset int) ([]domain.DLQEntry, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListDLQ")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT id, original_job_id, tenant_id, payload, COALESCE(error_message,''), retry_count, trace_id, job_created_at, failed_at
	      FROM dlq WHERE tenant_id=$1
	      ORDER BY failed_at DESC
	      LIMIT $2 OFFSET $3`
	rows, err := r.Pool.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=dlq.list: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.DLQEntry, 0, limit)
	for rows.Next() {
		var e domain.DLQEntry
		if err := rows.Scan(&e.ID, &e.OriginalJobID, &e.TenantID, &e.Payload, &e.ErrorMessage, &e.RetryCount, &e.TraceID, &e.JobCreatedAt, &e.FailedAt); err != nil {
			return nil, fmt.Errorf("op=dlq.list_scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=dlq.list_rows: %w", err)
	}
	return entries, nil
}

// Summarize rolls up job counts by status. Empty tenantID aggregates across
// all tenants.
func (r *JobRepo) Summarize(ctx domain.Context, tenantID string) (domain.JobCounts, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Summarize")
	defer span.End()

	q := `SELECT status, COUNT(*) FROM jobs WHERE ($1='' OR tenant_id=$1) GROUP BY status`
	rows, err := r.Pool.Query(ctx, q, tenantID)
	if err != nil {
		return domain.JobCounts{}, fmt.Errorf("op=job.summarize: %w", err)
	}
	defer rows.Close()

	var c domain.JobCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return domain.JobCounts{}, fmt.Errorf("op=job.summarize_scan: %w", err)
		}
		switch domain.JobStatus(status) {
		case domain.JobPending:
			c.Pending = n
		case domain.JobRunning:
			c.Running = n
		case domain.JobCompleted:
			c.Completed = n
		case domain.JobFailed:
			c.Failed = n
		case domain.JobDLQ:
			c.DLQ = n
		}
		c.Total += n
	}
	if err := rows.Err(); err != nil {
		return domain.JobCounts{}, fmt.Errorf("op=job.summarize_rows: %w", err)
	}
	return c, nil
}

// CountRunningForTenant reports the tenant's current number of running jobs.
func (r *JobRepo) CountRunningForTenant(ctx domain.Context, tenantID string) (int, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CountRunningForTenant")
	defer span.End()

	q := `SELECT COUNT(*) FROM jobs WHERE tenant_id = $1 AND status = 'running'`
	var n int
	if err := r.Pool.QueryRow(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=job.count_running: %w", err)
	}
	return n, nil
}

// SnapshotMetrics persists a global roll-up row into the metrics table.
func (r *JobRepo) SnapshotMetrics(ctx domain.Context) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.SnapshotMetrics")
	defer span.End()

	q := `INSERT INTO metrics (id, snapshot_at, total_jobs, pending_jobs, running_jobs, completed_jobs, failed_jobs, dlq_jobs)
	      SELECT $1, $2,
	             COUNT(*),
	             COUNT(*) FILTER (WHERE status='pending'),
	             COUNT(*) FILTER (WHERE status='running'),
	             COUNT(*) FILTER (WHERE status='completed'),
	             COUNT(*) FILTER (WHERE status='failed'),
	             COUNT(*) FILTER (WHERE status='dlq')
	      FROM jobs`
	if _, err := r.Pool.Exec(ctx, q, uuid.New().String(), time.Now().UTC()); err != nil {
		return fmt.Errorf("op=metrics.snapshot: %w", err)
	}
	return nil
}
