package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

// TenantRepo resolves and provisions tenants. The backing table is named
// users for compatibility with the original schema.
type TenantRepo struct{ Pool PgxPool }

// NewTenantRepo constructs a TenantRepo with the given pool.
func NewTenantRepo(p PgxPool) *TenantRepo { return &TenantRepo{Pool: p} }

const tenantColumns = `id, name, api_key, max_concurrent_jobs, rate_limit_per_minute, created_at`

func scanTenant(row pgx.Row) (domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.APIKey, &t.MaxConcurrentJobs, &t.RateLimitPerMinute, &t.CreatedAt)
	return t, err
}

// GetByAPIKey resolves the tenant owning the bearer token.
func (r *TenantRepo) GetByAPIKey(ctx domain.Context, apiKey string) (domain.Tenant, error) {
	tracer := otel.Tracer("repo.tenants")
	ctx, span := tracer.Start(ctx, "tenants.GetByAPIKey")
	defer span.End()

	q := `SELECT ` + tenantColumns + ` FROM users WHERE api_key=$1`
	t, err := scanTenant(r.Pool.QueryRow(ctx, q, apiKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tenant{}, fmt.Errorf("op=tenant.get_by_key: %w", domain.ErrUnauthorized)
		}
		return domain.Tenant{}, fmt.Errorf("op=tenant.get_by_key: %w", err)
	}
	return t, nil
}

// GetByID loads a tenant by id.
func (r *TenantRepo) GetByID(ctx domain.Context, id string) (domain.Tenant, error) {
	tracer := otel.Tracer("repo.tenants")
	ctx, span := tracer.Start(ctx, "tenants.GetByID")
	defer span.End()

	q := `SELECT ` + tenantColumns + ` FROM users WHERE id=$1`
	t, err := scanTenant(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tenant{}, fmt.Errorf("op=tenant.get: %w", domain.ErrNotFound)
		}
		return domain.Tenant{}, fmt.Errorf("op=tenant.get: %w", err)
	}
	return t, nil
}

// Upsert inserts or updates a tenant row, keyed by id.
func (r *TenantRepo) Upsert(ctx domain.Context, t domain.Tenant) error {
	tracer := otel.Tracer("repo.tenants")
	ctx, span := tracer.Start(ctx, "tenants.Upsert")
	defer span.End()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO users (id, name, api_key, max_concurrent_jobs, rate_limit_per_minute, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (id) DO UPDATE
	      SET name=EXCLUDED.name, api_key=EXCLUDED.api_key,
	          max_concurrent_jobs=EXCLUDED.max_concurrent_jobs,
	          rate_limit_per_minute=EXCLUDED.rate_limit_per_minute`
	if _, err := r.Pool.Exec(ctx, q, t.ID, t.Name, t.APIKey, t.MaxConcurrentJobs, t.RateLimitPerMinute, t.CreatedAt); err != nil {
		return fmt.Errorf("op=tenant.upsert: %w", err)
	}
	return nil
}
