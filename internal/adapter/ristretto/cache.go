// Package ristretto caches tenant lookups in-process with
// dgraph-io/ristretto. Resolution runs on every request, so the directory
// sits behind this cache to keep the hot path off the database.
package ristretto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/port/database"
)

// entryCost approximates the in-memory size of one cached lookup result.
const entryCost = 256

type entry struct {
	tenant *tenant.Tenant
	id     tenant.ID
}

// TenantCache decorates database.Store lookups with a TTL'd in-process
// cache. It implements tenant.Directory and tenant.KeyDirectory. Only
// positive results are cached; misses always go to the store so a newly
// created tenant resolves without waiting out a negative TTL.
type TenantCache struct {
	store database.Store
	c     *ristretto.Cache[string, entry]
	ttl   time.Duration
}

// New creates a TenantCache in front of store. maxCostBytes bounds the
// total cache size; ttl bounds staleness after tenant updates.
func New(store database.Store, maxCostBytes int64, ttl time.Duration) (*TenantCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, entry]{
		NumCounters: maxCostBytes / entryCost * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &TenantCache{store: store, c: c, ttl: ttl}, nil
}

// FindByCustomDomain resolves a tenant by custom domain, cached.
func (tc *TenantCache) FindByCustomDomain(ctx context.Context, host string) (*tenant.Tenant, error) {
	key := "domain:" + host
	if e, ok := tc.c.Get(key); ok && e.tenant != nil {
		return e.tenant, nil
	}
	t, err := tc.store.FindByCustomDomain(ctx, host)
	if err != nil {
		return nil, err
	}
	tc.c.SetWithTTL(key, entry{tenant: t}, entryCost, tc.ttl)
	return t, nil
}

// FindBySlug resolves a tenant by subdomain slug, cached.
func (tc *TenantCache) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	key := "slug:" + slug
	if e, ok := tc.c.Get(key); ok && e.tenant != nil {
		return e.tenant, nil
	}
	t, err := tc.store.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	tc.c.SetWithTTL(key, entry{tenant: t}, entryCost, tc.ttl)
	return t, nil
}

// TenantForKey resolves the tenant owning the presented API key, cached.
// Only the SHA-256 of the key is used as cache key; the raw key is never
// retained.
func (tc *TenantCache) TenantForKey(ctx context.Context, key string) (tenant.ID, error) {
	hash := HashKey(key)
	cacheKey := "key:" + hash
	if e, ok := tc.c.Get(cacheKey); ok && !e.id.IsZero() {
		return e.id, nil
	}
	id, err := tc.store.TenantForKeyHash(ctx, hash)
	if err != nil {
		return tenant.ID{}, err
	}
	tc.c.SetWithTTL(cacheKey, entry{id: id}, entryCost, tc.ttl)
	return id, nil
}

// Invalidate drops the cached lookups for a tenant after it changes.
func (tc *TenantCache) Invalidate(t *tenant.Tenant) {
	tc.c.Del("slug:" + t.Slug)
	if t.CustomDomain != "" {
		tc.c.Del("domain:" + t.CustomDomain)
	}
}

// Close shuts down the cache and releases resources.
func (tc *TenantCache) Close() {
	tc.c.Close()
}

// HashKey returns the hex SHA-256 digest of a raw API key, the form keys
// are stored and looked up in.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
