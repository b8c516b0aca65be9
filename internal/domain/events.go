package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies a lifecycle transition on the event stream.
type EventType string

const (
	EventJobSubmitted EventType = "job_submitted"
	EventJobStarted   EventType = "job_started"
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed marks a terminal single-attempt failure. The retry
	// ladder announces its transitions as EventJobRetry and EventJobDLQ
	// instead.
	EventJobFailed EventType = "job_failed"
	EventJobRetry  EventType = "job_retry"
	EventJobDLQ    EventType = "job_dlq"
)

// Event is the wire shape fanned out to observers. Payload is optional
// event-specific detail (result, error message, retry count).
type Event struct {
	Type      EventType       `json:"type"`
	JobID     string          `json:"job_id"`
	TenantID  string          `json:"tenant_id"`
	TraceID   string          `json:"trace_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event for j at time now.
func NewEvent(t EventType, j Job, payload json.RawMessage) Event {
	return Event{
		Type:      t,
		JobID:     j.ID,
		TenantID:  j.TenantID,
		TraceID:   j.TraceID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// EventBus is the in-process fan-out port. Publish must never block.
type EventBus interface {
	Publish(ev Event)
	Subscribe() *Subscription
	Unsubscribe(s *Subscription)
}

// Subscription is a bounded event buffer handed to one observer. Events that
// would overflow the buffer are dropped; delivery is best-effort.
type Subscription struct {
	C chan Event
}
