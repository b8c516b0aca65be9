package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

// Pool runs a fixed set of workers plus the lease reaper.
type Pool struct {
	workers        []*Worker
	store          domain.JobStore
	bus            domain.EventBus
	reaperInterval time.Duration
}

// NewPool builds size workers named "<base>-w0".."<base>-wN".
func NewPool(base string, size int, store domain.JobStore, bus domain.EventBus, h domain.Handler, leaseTTL, pollInterval, reaperInterval time.Duration) *Pool {
	ws := make([]*Worker, 0, size)
	for i := 0; i < size; i++ {
		ws = append(ws, NewWorker(workerID(base, i), store, bus, h, leaseTTL, pollInterval))
	}
	return &Pool{
		workers:        ws,
		store:          store,
		bus:            bus,
		reaperInterval: reaperInterval,
	}
}

// Run starts all workers and the reaper and blocks until ctx is cancelled
// and every goroutine has drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReaper(ctx)
	}()
	wg.Wait()
}

// runReaper periodically returns expired-lease jobs to pending. A reclaimed
// job does not burn a retry.
func (p *Pool) runReaper(ctx context.Context) {
	t := time.NewTicker(p.reaperInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.reapOnce(ctx)
		}
	}
}

func (p *Pool) reapOnce(ctx context.Context) {
	reclaimed, err := p.store.ReclaimExpiredLeases(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			slog.Default().Error("lease reap failed", slog.Any("error", err))
		}
		return
	}
	for _, j := range reclaimed {
		observability.JobsReclaimedTotal.Inc()
		payload, _ := json.Marshal(map[string]any{"reason": "lease_expired"})
		p.bus.Publish(domain.NewEvent(domain.EventJobRetry, j, payload))
		slog.Default().Warn("expired lease reclaimed",
			slog.String("job_id", j.ID),
			slog.String("tenant_id", j.TenantID))
	}
}
