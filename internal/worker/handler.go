package worker

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

// SimulatedHandler is the default job processor. It sleeps for a configurable
// interval and then succeeds, unless the payload asks for a failure:
//
//	{"sleep_ms": 250}                          work duration (default 1s)
//	{"error": true, "error_message": "boom"}   fail the attempt
//	{"error": true, "permanent": true}         dead-letter without retrying
//
// The result echoes the payload back, which makes end-to-end runs easy to
// verify by eye.
type SimulatedHandler struct {
	// DefaultSleep is the simulated work duration when the payload does not
	// set sleep_ms.
	DefaultSleep time.Duration
}

type simulatedPayload struct {
	SleepMS      int    `json:"sleep_ms"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"error_message"`
	Permanent    bool   `json:"permanent"`
}

// Handle implements domain.Handler.
func (h *SimulatedHandler) Handle(ctx domain.Context, j domain.Job) (json.RawMessage, error) {
	var p simulatedPayload
	_ = json.Unmarshal(j.Payload, &p) // non-object payloads just take the defaults

	sleep := h.DefaultSleep
	if sleep == 0 {
		sleep = time.Second
	}
	if p.SleepMS > 0 {
		sleep = time.Duration(p.SleepMS) * time.Millisecond
	}
	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	if p.Error {
		msg := p.ErrorMessage
		if msg == "" {
			msg = "job processing failed"
		}
		if p.Permanent {
			return nil, domain.Permanent(msg)
		}
		return nil, errors.New(msg)
	}

	out, err := json.Marshal(map[string]any{"result": "success", "processed": j.Payload})
	if err != nil {
		return nil, err
	}
	return out, nil
}
