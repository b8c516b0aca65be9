package eventbus_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/eventbus"
)

func ev(t domain.EventType, jobID string) domain.Event {
	return domain.Event{Type: t, JobID: jobID, Timestamp: time.Now().UTC()}
}

func TestBus_PublishSubscribe(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(4)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Publish(ev(domain.EventJobSubmitted, "j1"))

	select {
	case got := <-sub.C:
		assert.Equal(t, domain.EventJobSubmitted, got.Type)
		assert.Equal(t, "j1", got.JobID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBus_FanOut(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Publish(ev(domain.EventJobStarted, "j1"))
	require.Equal(t, "j1", (<-a.C).JobID)
	require.Equal(t, "j1", (<-b.C).JobID)
}

func TestBus_SlowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(2)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(ev(domain.EventJobCompleted, "j"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscription")
	}
	// Buffer holds at most its capacity; the rest were dropped.
	assert.Len(t, sub.C, 2)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(1)
	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)
	// Double unsubscribe must not panic.
	bus.Unsubscribe(sub)
}

func TestBus_PublishAfterUnsubscribe(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(1)
	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	bus.Publish(ev(domain.EventJobDLQ, "j1")) // must not panic on closed channel
}

func TestBus_ConcurrentPublish(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(1024)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				bus.Publish(ev(domain.EventJobRetry, "j"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, sub.C, 800)
}

func TestBus_Close(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(1)
	sub := bus.Subscribe()
	bus.Close()
	_, open := <-sub.C
	assert.False(t, open)

	late := bus.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
}
