// Package eventbus implements the in-process lifecycle event broadcaster.
//
// Subscribers attach and detach dynamically; delivery is best-effort and
// publish never blocks the caller. A slow subscriber loses events rather
// than stalling a worker.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

// Bus fans events out to all live subscriptions.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*domain.Subscription]struct{}
	bufSize int
	closed  bool
}

// New constructs a Bus whose subscriptions buffer bufSize events.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		subs:    make(map[*domain.Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a new bounded-buffer subscription.
func (b *Bus) Subscribe() *domain.Subscription {
	s := &domain.Subscription{C: make(chan domain.Event, b.bufSize)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.C)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe releases the subscription's buffer. Safe to call twice.
func (b *Bus) Unsubscribe(s *domain.Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.C)
}

// Publish enqueues ev to every live subscription, dropping it for
// subscribers whose buffer is full.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.C <- ev:
		default:
			observability.EventsDroppedTotal.Inc()
			slog.Debug("event dropped for slow subscriber",
				slog.String("type", string(ev.Type)),
				slog.String("job_id", ev.JobID))
		}
	}
}

// Close detaches all subscriptions; subsequent Subscribe calls return a
// closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.C)
	}
}
