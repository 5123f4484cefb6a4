package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/vendora/vendora/internal/domain"
	"github.com/vendora/vendora/internal/domain/tenant"
)

type tenantCtxKey struct{}

const headerAPIKey = "X-API-Key"

// Tenant returns middleware that opens a fresh TenantContext for each
// request, resolves the tenant through the given resolver, and stores the
// bound context in the request context. Requests that cannot be
// attributed to a tenant fail with 403; nothing ever proceeds under an implicit tenant.
func Tenant(resolver *tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.NewContext()
			_, err := tc.ResolveOnce(r.Context(), resolver, resolverRequest(r))
			if err != nil {
				if errors.Is(err, domain.ErrTenantNotFound) || errors.Is(err, tenant.ErrInvalidID) {
					http.Error(w, `{"error":"tenant not found"}`, http.StatusForbidden)
					return
				}
				slog.Error("tenant resolution failed", "error", err)
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), tenantCtxKey{}, tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolverRequest projects the HTTP request onto the resolver's input.
func resolverRequest(r *http.Request) tenant.Request {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return tenant.Request{
		Authorization: r.Header.Get("Authorization"),
		Host:          host,
		APIKey:        r.Header.Get(headerAPIKey),
	}
}

// TenantContext returns the TenantContext stored in ctx, or nil when the
// request never passed through the Tenant middleware.
func TenantContext(ctx context.Context) *tenant.Context {
	tc, _ := ctx.Value(tenantCtxKey{}).(*tenant.Context)
	return tc
}

// TenantID returns the tenant bound to ctx. It fails with
// domain.ErrTenantNotFound when no TenantContext is present or it is
// unbound — callers must treat that as a refusal, not a default.
func TenantID(ctx context.Context) (tenant.ID, error) {
	tc := TenantContext(ctx)
	if tc == nil {
		return tenant.ID{}, domain.ErrTenantNotFound
	}
	return tc.Get()
}

// WithTenantContext stores tc in ctx. Used by async workers after
// re-establishing the tenant from a message stamp, and by tests.
func WithTenantContext(ctx context.Context, tc *tenant.Context) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tc)
}
