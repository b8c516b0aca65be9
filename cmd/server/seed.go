package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

// seedFile is the YAML shape of TENANT_SEED_FILE:
//
//	tenants:
//	  - id: acme
//	    name: Acme Corp
//	    api_key: dev-acme-key
//	    max_concurrent_jobs: 5
//	    rate_limit_per_minute: 10
type seedFile struct {
	Tenants []struct {
		ID                 string `yaml:"id"`
		Name               string `yaml:"name"`
		APIKey             string `yaml:"api_key"`
		MaxConcurrentJobs  int    `yaml:"max_concurrent_jobs"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	} `yaml:"tenants"`
}

// seedTenants upserts every tenant from the YAML file. Used for local and
// test environments; production tenants are provisioned with tenantctl.
func seedTenants(ctx context.Context, store domain.TenantStore, path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator's environment.
	if err != nil {
		return fmt.Errorf("op=seed.read: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("op=seed.parse: %w", err)
	}
	for _, t := range f.Tenants {
		if t.ID == "" || t.APIKey == "" {
			return fmt.Errorf("op=seed.validate: tenant entries need id and api_key: %w", domain.ErrInvalidArgument)
		}
		tn := domain.Tenant{
			ID:                 t.ID,
			Name:               t.Name,
			APIKey:             t.APIKey,
			MaxConcurrentJobs:  t.MaxConcurrentJobs,
			RateLimitPerMinute: t.RateLimitPerMinute,
		}
		if err := store.Upsert(ctx, tn); err != nil {
			return fmt.Errorf("op=seed.upsert tenant=%s: %w", t.ID, err)
		}
		slog.Info("tenant seeded", slog.String("tenant_id", t.ID))
	}
	return nil
}
