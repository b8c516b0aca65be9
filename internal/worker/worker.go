// Package worker implements the claim-execute loop, the lease heartbeat and
// the expired-lease reaper.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

// Worker runs the single-goroutine claim loop: claim the oldest pending job,
// execute the handler under a lease-bounded context, then write the outcome
// through the owner-guarded store primitives.
type Worker struct {
	ID           string
	store        domain.JobStore
	bus          domain.EventBus
	handler      domain.Handler
	leaseTTL     time.Duration
	pollInterval time.Duration
}

// NewWorker constructs a Worker.
func NewWorker(id string, store domain.JobStore, bus domain.EventBus, h domain.Handler, leaseTTL, pollInterval time.Duration) *Worker {
	return &Worker{
		ID:           id,
		store:        store,
		bus:          bus,
		handler:      h,
		leaseTTL:     leaseTTL,
		pollInterval: pollInterval,
	}
}

// Run loops until ctx is cancelled. A job in flight when ctx is cancelled is
// allowed to finish; its context deadline is the lease expiry, so the drain
// is bounded by the TTL.
func (w *Worker) Run(ctx context.Context) {
	log := slog.Default().With(slog.String("worker_id", w.ID))
	log.Info("worker started")

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry store errors indefinitely

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return
		default:
		}

		j, ok, err := w.store.ClaimNextPending(ctx, w.ID, w.leaseTTL)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := bo.NextBackOff()
			log.Error("claim failed", slog.Any("error", err), slog.Duration("backoff", wait))
			sleep(ctx, wait)
			continue
		}
		bo.Reset()

		if !ok {
			sleep(ctx, w.pollInterval)
			continue
		}
		w.process(j)
		// Claimed successfully: poll again immediately while the queue is hot.
	}
}

// process executes one claimed job to its outcome.
func (w *Worker) process(j domain.Job) {
	log := slog.Default().With(
		slog.String("worker_id", w.ID),
		slog.String("job_id", j.ID),
		slog.String("tenant_id", j.TenantID),
		slog.String("trace_id", j.TraceID),
	)

	observability.JobsClaimedTotal.Inc()
	observability.JobsRunning.Inc()
	defer observability.JobsRunning.Dec()

	w.bus.Publish(domain.NewEvent(domain.EventJobStarted, j, nil))
	log.Info("job started", slog.Int("retry_count", j.RetryCount))

	// The handler's deadline is the lease expiry. Renewal pushes the wall
	// forward; a failed renewal cancels the handler so a reclaimed job is
	// never written to by its old owner.
	deadline := time.Now().Add(w.leaseTTL)
	if j.LeaseExpiresAt != nil {
		deadline = *j.LeaseExpiresAt
	}
	jobCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	stopHeartbeat := w.startHeartbeat(jobCtx, cancel, j.ID)
	defer stopHeartbeat()

	start := time.Now()
	result, err := w.handler.Handle(jobCtx, j)
	observability.JobDuration.Observe(time.Since(start).Seconds())
	stopHeartbeat()

	if jobCtx.Err() != nil && errors.Is(err, jobCtx.Err()) {
		// Lease lost or expired mid-flight. Discard the outcome; the reaper
		// (or the owner guard) decides what happens to the job.
		log.Warn("lease lost, outcome discarded", slog.Any("error", err))
		return
	}

	writeCtx, writeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer writeCancel()

	if err == nil {
		w.complete(writeCtx, j, result, log)
		return
	}
	w.fail(writeCtx, j, err, log)
}

func (w *Worker) complete(ctx context.Context, j domain.Job, result json.RawMessage, log *slog.Logger) {
	if err := w.store.CompleteJob(ctx, j.ID, w.ID, result); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn("completion rejected by owner guard")
			return
		}
		log.Error("complete failed", slog.Any("error", err))
		return
	}
	observability.JobsCompletedTotal.Inc()
	w.bus.Publish(domain.NewEvent(domain.EventJobCompleted, j, result))
	log.Info("job completed")
}

func (w *Worker) fail(ctx context.Context, j domain.Job, handlerErr error, log *slog.Logger) {
	permanent := domain.IsPermanent(handlerErr)
	outcome, err := w.store.FailAndRetry(ctx, j.ID, w.ID, handlerErr.Error(), permanent)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn("failure rejected by owner guard")
			return
		}
		log.Error("fail transition failed", slog.Any("error", err))
		return
	}

	errPayload, _ := json.Marshal(map[string]any{
		"error":       handlerErr.Error(),
		"retry_count": j.RetryCount + 1,
	})

	switch outcome {
	case domain.FailRetried:
		observability.JobsRetriedTotal.Inc()
		w.bus.Publish(domain.NewEvent(domain.EventJobRetry, j, errPayload))
		log.Warn("job failed, returned to pending",
			slog.String("error", handlerErr.Error()),
			slog.Int("retry_count", j.RetryCount+1))
	case domain.FailDLQ:
		observability.JobsDLQTotal.Inc()
		w.bus.Publish(domain.NewEvent(domain.EventJobDLQ, j, errPayload))
		log.Error("job dead-lettered",
			slog.String("error", handlerErr.Error()),
			slog.Bool("permanent", permanent))
	}
}

// startHeartbeat renews the lease at half the TTL until stopped. A renewal
// that returns false (owner guard) or errors cancels the job context.
func (w *Worker) startHeartbeat(ctx context.Context, cancel context.CancelFunc, jobID string) func() {
	interval := w.leaseTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				renewed, err := w.store.RenewLease(ctx, jobID, w.ID, w.leaseTTL)
				if err != nil || !renewed {
					slog.Default().Warn("lease renewal failed, cancelling job",
						slog.String("worker_id", w.ID),
						slog.String("job_id", jobID),
						slog.Any("error", err))
					cancel()
					return
				}
			}
		}
	}()
	var once func()
	closed := false
	once = func() {
		if !closed {
			closed = true
			close(done)
		}
		<-stopped
	}
	return once
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// workerID builds a stable per-goroutine id like "host-w0".
func workerID(base string, n int) string { return fmt.Sprintf("%s-w%d", base, n) }
