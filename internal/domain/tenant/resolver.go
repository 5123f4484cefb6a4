package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vendora/vendora/internal/domain"
)

// Request carries the signals a tenant can be resolved from. It is a plain
// value so the resolver stays independent of any HTTP framework.
type Request struct {
	// Authorization is the raw Authorization header value, if any.
	Authorization string
	// Host is the request host without port.
	Host string
	// APIKey is the presented API key, if any.
	APIKey string
}

// Directory looks tenants up by the signals the resolver derives from a
// request. Implementations live in the storage layer.
type Directory interface {
	FindByCustomDomain(ctx context.Context, host string) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
}

// KeyDirectory maps a presented API key to its owning tenant.
type KeyDirectory interface {
	TenantForKey(ctx context.Context, key string) (ID, error)
}

// ClaimsDecoder extracts verified claims from a bearer credential.
type ClaimsDecoder interface {
	Decode(authorization string) (map[string]string, error)
}

// Resolver derives a tenant from a request using a fixed priority order:
// bearer claim, custom domain, subdomain slug, API key. The first signal
// that yields a tenant wins; if none do, resolution fails with
// domain.ErrTenantNotFound.
type Resolver struct {
	tenants Directory
	keys    KeyDirectory
	claims  ClaimsDecoder
}

// NewResolver constructs a Resolver from its lookup collaborators.
func NewResolver(tenants Directory, keys KeyDirectory, claims ClaimsDecoder) *Resolver {
	return &Resolver{tenants: tenants, keys: keys, claims: claims}
}

// Resolve derives the tenant for req. A lookup that finds nothing moves on
// to the next signal; an infrastructure failure aborts resolution.
func (r *Resolver) Resolve(ctx context.Context, req Request) (ID, error) {
	// 1) bearer claim
	if req.Authorization != "" && r.claims != nil {
		if claims, err := r.claims.Decode(req.Authorization); err == nil {
			if raw := claims["tenant_id"]; raw != "" {
				id, err := ParseID(raw)
				if err != nil {
					return ID{}, fmt.Errorf("tenant claim: %w", err)
				}
				return id, nil
			}
		}
	}

	// 2) custom domain
	if req.Host != "" && r.tenants != nil {
		t, err := r.tenants.FindByCustomDomain(ctx, req.Host)
		switch {
		case err == nil:
			return t.ID, nil
		case !isNotFound(err):
			return ID{}, fmt.Errorf("custom domain lookup: %w", err)
		}
	}

	// 3) subdomain slug (leftmost host label)
	if slug, ok := subdomainSlug(req.Host); ok && r.tenants != nil {
		t, err := r.tenants.FindBySlug(ctx, slug)
		switch {
		case err == nil:
			return t.ID, nil
		case !isNotFound(err):
			return ID{}, fmt.Errorf("slug lookup: %w", err)
		}
	}

	// 4) API key
	if req.APIKey != "" && r.keys != nil {
		id, err := r.keys.TenantForKey(ctx, req.APIKey)
		switch {
		case err == nil:
			return id, nil
		case !isNotFound(err):
			return ID{}, fmt.Errorf("api key lookup: %w", err)
		}
	}

	return ID{}, domain.ErrTenantNotFound
}

// subdomainSlug returns the leftmost label of host when host has at least
// one more label after it.
func subdomainSlug(host string) (string, bool) {
	i := strings.IndexByte(host, '.')
	if i <= 0 || i == len(host)-1 {
		return "", false
	}
	return host[:i], true
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTenantNotFound)
}
