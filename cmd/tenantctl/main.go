// Command tenantctl provisions tenants: create, list, and rotate-key.
//
// Usage:
//
//	tenantctl create -id acme -name "Acme Corp" [-rate 10] [-concurrency 5]
//	tenantctl rotate-key -id acme
//	tenantctl list
//
// The generated API key is printed once on stdout; it is stored in cleartext
// in the database, so treat the output as a secret.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/adapter/repo/postgres"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()
	tenants := postgres.NewTenantRepo(pool)

	switch os.Args[1] {
	case "create":
		createCmd(ctx, cfg, tenants, os.Args[2:])
	case "rotate-key":
		rotateCmd(ctx, tenants, os.Args[2:])
	case "list":
		listCmd(ctx, pool)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tenantctl <create|rotate-key|list> [flags]")
}

func createCmd(ctx context.Context, cfg config.Config, tenants domain.TenantStore, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	id := fs.String("id", "", "tenant id (required)")
	name := fs.String("name", "", "display name")
	rate := fs.Int("rate", cfg.DefaultRateLimitPerMinute, "submissions per minute")
	conc := fs.Int("concurrency", cfg.DefaultMaxConcurrentJobs, "max jobs in flight")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("create: -id is required")
	}

	t := domain.Tenant{
		ID:                 *id,
		Name:               *name,
		APIKey:             uuid.NewString(),
		MaxConcurrentJobs:  *conc,
		RateLimitPerMinute: *rate,
		CreatedAt:          time.Now().UTC(),
	}
	if err := tenants.Upsert(ctx, t); err != nil {
		log.Fatalf("create failed: %v", err)
	}
	fmt.Printf("tenant %s created\napi_key: %s\n", t.ID, t.APIKey)
}

func rotateCmd(ctx context.Context, tenants domain.TenantStore, args []string) {
	fs := flag.NewFlagSet("rotate-key", flag.ExitOnError)
	id := fs.String("id", "", "tenant id (required)")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("rotate-key: -id is required")
	}

	t, err := tenants.GetByID(ctx, *id)
	if err != nil {
		log.Fatalf("rotate-key: %v", err)
	}
	t.APIKey = uuid.NewString()
	if err := tenants.Upsert(ctx, t); err != nil {
		log.Fatalf("rotate-key failed: %v", err)
	}
	fmt.Printf("tenant %s key rotated\napi_key: %s\n", t.ID, t.APIKey)
}

func listCmd(ctx context.Context, pool postgres.PgxPool) {
	rows, err := pool.Query(ctx, `SELECT id, name, max_concurrent_jobs, rate_limit_per_minute, created_at FROM users ORDER BY created_at`)
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONCURRENCY\tRATE/MIN\tCREATED")
	for rows.Next() {
		var (
			id, name   string
			conc, rate int
			created    time.Time
		)
		if err := rows.Scan(&id, &name, &conc, &rate, &created); err != nil {
			log.Fatalf("list scan failed: %v", err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", id, name, conc, rate, created.Format(time.RFC3339))
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("list failed: %v", err)
	}
	_ = w.Flush()
}
