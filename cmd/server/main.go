// Command server starts the job queue HTTP API and hosts the worker pool,
// so the event stream observes every lifecycle transition in-process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/adapter/httpserver"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/adapter/repo/postgres"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/admission"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/app"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/eventbus"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/usecase"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.DBURL); err != nil {
		slog.Error("migrations failed", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)
	tenantRepo := postgres.NewTenantRepo(pool)

	if cfg.TenantSeedFile != "" {
		if err := seedTenants(ctx, tenantRepo, cfg.TenantSeedFile); err != nil {
			slog.Error("tenant seed failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Admission: the rate bucket moves to Redis when REDIS_URL is set so
	// replicas share one budget; the concurrency gate reads the tenant's
	// running count straight from the jobs table, so replicas stay consistent
	// without shared state.
	var limiter admission.RateLimiter = admission.NewLocalRateLimiter()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("bad REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer func() { _ = rdb.Close() }()
		limiter = admission.NewRedisRateLimiter(rdb)
		slog.Info("rate limiting via redis", slog.String("addr", opt.Addr))
	}
	adm := admission.NewController(limiter, jobRepo)

	bus := eventbus.New(cfg.EventBufferSize)
	defer bus.Close()

	jobSvc := usecase.NewJobService(jobRepo, adm, bus, cfg.WorkerMaxRetries)
	srv := httpserver.NewServer(cfg, jobSvc, tenantRepo, bus, pool.Ping)

	// The worker pool runs in this process, sharing the event bus with the
	// SSE gateway so observers see started/completed/retry/dlq transitions,
	// not just submissions.
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("server-%d", os.Getpid())
	}
	workers := worker.NewPool(host, cfg.WorkerPoolSize, jobRepo, bus,
		&worker.SimulatedHandler{}, cfg.LeaseTTL(), cfg.PollInterval(), cfg.ReaperInterval())
	poolCtx, stopPool := context.WithCancel(ctx)
	poolDone := make(chan struct{})
	go func() {
		workers.Run(poolCtx)
		close(poolDone)
	}()
	slog.Info("worker pool started",
		slog.String("base_id", host),
		slog.Int("pool_size", cfg.WorkerPoolSize),
		slog.Duration("lease_ttl", cfg.LeaseTTL()))

	rollupCtx, stopRollup := context.WithCancel(ctx)
	defer stopRollup()
	if cfg.MetricsRollupInterval > 0 {
		go runMetricsRollup(rollupCtx, jobRepo, cfg.MetricsRollupInterval)
	}

	handler := otelhttp.NewHandler(app.BuildRouter(cfg, srv), "http.server")
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		slog.Info("server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}

	stopPool()
	select {
	case <-poolDone:
		slog.Info("worker pool drained")
	case <-time.After(cfg.WorkerShutdownTimeout):
		slog.Warn("drain timeout exceeded, exiting; leases will be reclaimed")
	}
}

// runMetricsRollup periodically persists a global status-count snapshot.
func runMetricsRollup(ctx context.Context, jobs *postgres.JobRepo, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := jobs.SnapshotMetrics(ctx); err != nil && ctx.Err() == nil {
				slog.Error("metrics snapshot failed", slog.Any("error", err))
			}
		}
	}
}
