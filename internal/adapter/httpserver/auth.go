package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

type tenantKey struct{}

// RequireTenant resolves the Bearer token to a tenant and stores it in the
// request context. Requests without a valid credential never reach the
// handlers.
func RequireTenant(tenants domain.TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := bearerToken(r)
			if !ok {
				writeError(w, r, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized), nil)
				return
			}
			t, err := tenants.GetByAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), tenantKey{}, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFrom returns the authenticated tenant placed by RequireTenant.
func TenantFrom(r *http.Request) (domain.Tenant, bool) {
	t, ok := r.Context().Value(tenantKey{}).(domain.Tenant)
	return t, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
