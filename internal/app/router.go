// Package app assembles the HTTP router and process-level helpers shared by
// the server binary.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/adapter/httpserver"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Tenant API. The event stream is long-lived so it stays outside the
	// request timeout group.
	r.Group(func(tr chi.Router) {
		tr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		tr.Use(httpserver.RequireTenant(srv.Tenants))
		tr.Get("/v1/events", srv.EventsHandler())
		tr.Group(func(ar chi.Router) {
			ar.Use(httpserver.TimeoutMiddleware(30 * time.Second))
			ar.Post("/v1/jobs", srv.SubmitJobHandler())
			ar.Get("/v1/jobs", srv.ListJobsHandler())
			ar.Get("/v1/jobs/{id}", srv.GetJobHandler())
			ar.Get("/v1/dlq", srv.ListDLQHandler())
			ar.Get("/v1/metrics", srv.MetricsHandler())
		})
	})

	// Health and operational metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
