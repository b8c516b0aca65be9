package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg     config.Config
	Jobs    *usecase.JobService
	Tenants domain.TenantStore
	Bus     domain.EventBus
	DBCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, jobs *usecase.JobService, tenants domain.TenantStore, bus domain.EventBus, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Jobs: jobs, Tenants: tenants, Bus: bus, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type submitRequest struct {
	Payload        json.RawMessage `json:"payload" validate:"required"`
	IdempotencyKey *string         `json:"idempotency_key" validate:"omitempty,min=1,max=255"`
	MaxRetries     int             `json:"max_retries" validate:"gte=0,lte=10"`
}

type jobResponse struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	Status         string          `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	TraceID        string          `json:"trace_id"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	WorkerID       *string         `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func toJobResponse(j domain.Job) jobResponse {
	return jobResponse{
		ID:             j.ID,
		TenantID:       j.TenantID,
		Status:         string(j.Status),
		Payload:        j.Payload,
		Result:         j.Result,
		ErrorMessage:   j.ErrorMessage,
		IdempotencyKey: j.IdempotencyKey,
		TraceID:        j.TraceID,
		RetryCount:     j.RetryCount,
		MaxRetries:     j.MaxRetries,
		WorkerID:       j.WorkerID,
		LeaseExpiresAt: j.LeaseExpiresAt,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

// SubmitJobHandler accepts a job submission. A replayed idempotency key
// returns the original job with 200 instead of 201.
func (s *Server) SubmitJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := TenantFrom(r)
		if !ok {
			writeError(w, r, domain.ErrUnauthorized, nil)
			return
		}
		var req submitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == nil {
			req.IdempotencyKey = &key
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		j, isNew, err := s.Jobs.Submit(r.Context(), t, usecase.SubmitRequest{
			Payload:        req.Payload,
			IdempotencyKey: req.IdempotencyKey,
			MaxRetries:     req.MaxRetries,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		status := http.StatusCreated
		if !isNew {
			status = http.StatusOK
		}
		writeJSON(w, status, toJobResponse(j))
	}
}

// GetJobHandler returns one of the tenant's jobs by id.
func (s *Server) GetJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := TenantFrom(r)
		if !ok {
			writeError(w, r, domain.ErrUnauthorized, nil)
			return
		}
		j, err := s.Jobs.Get(r.Context(), t, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toJobResponse(j))
	}
}

// ListJobsHandler lists the tenant's jobs, newest first.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := TenantFrom(r)
		if !ok {
			writeError(w, r, domain.ErrUnauthorized, nil)
			return
		}
		f := domain.JobFilter{
			Status: domain.JobStatus(r.URL.Query().Get("status")),
			Limit:  queryInt(r, "limit", 0),
			Offset: queryInt(r, "offset", 0),
		}
		jobs, err := s.Jobs.List(r.Context(), t, f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]jobResponse, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, toJobResponse(j))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "count": len(out)})
	}
}

type dlqResponse struct {
	ID            string          `json:"id"`
	OriginalJobID string          `json:"original_job_id"`
	TenantID      string          `json:"tenant_id"`
	Payload       json.RawMessage `json:"payload"`
	ErrorMessage  string          `json:"error_message"`
	RetryCount    int             `json:"retry_count"`
	TraceID       string          `json:"trace_id"`
	JobCreatedAt  time.Time       `json:"job_created_at"`
	FailedAt      time.Time       `json:"failed_at"`
}

// ListDLQHandler lists the tenant's dead-letter entries, newest first.
func (s *Server) ListDLQHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := TenantFrom(r)
		if !ok {
			writeError(w, r, domain.ErrUnauthorized, nil)
			return
		}
		entries, err := s.Jobs.ListDLQ(r.Context(), t, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]dlqResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, dlqResponse{
				ID:            e.ID,
				OriginalJobID: e.OriginalJobID,
				TenantID:      e.TenantID,
				Payload:       e.Payload,
				ErrorMessage:  e.ErrorMessage,
				RetryCount:    e.RetryCount,
				TraceID:       e.TraceID,
				JobCreatedAt:  e.JobCreatedAt,
				FailedAt:      e.FailedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
	}
}

// MetricsHandler returns the tenant's per-status job counts.
func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := TenantFrom(r)
		if !ok {
			writeError(w, r, domain.ErrUnauthorized, nil)
			return
		}
		m, err := s.Jobs.Metrics(r.Context(), t)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// ReadyzHandler reports readiness based on the database check.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DBCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.DBCheck(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "db": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
