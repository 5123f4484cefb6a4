package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/vendora/vendora/internal/domain"
	"github.com/vendora/vendora/internal/domain/tenant"
)

var testTenant = &tenant.Tenant{
	ID:           tenant.MustID("11111111-1111-4111-8111-111111111111"),
	Name:         "Acme",
	Slug:         "acme",
	CustomDomain: "shop.acme.example",
	Enabled:      true,
}

// fakeStore implements the subset of database.Store the cache touches and
// counts how often each lookup reaches it.
type fakeStore struct {
	slugCalls   int
	domainCalls int
	keyCalls    int
	keyHash     string
}

func (f *fakeStore) FindBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	f.slugCalls++
	if slug == testTenant.Slug {
		return testTenant, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) FindByCustomDomain(_ context.Context, host string) (*tenant.Tenant, error) {
	f.domainCalls++
	if host == testTenant.CustomDomain {
		return testTenant, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) TenantForKeyHash(_ context.Context, hash string) (tenant.ID, error) {
	f.keyCalls++
	if hash == f.keyHash {
		return testTenant.ID, nil
	}
	return tenant.ID{}, domain.ErrNotFound
}

func (f *fakeStore) CreateTenant(context.Context, tenant.CreateRequest) (*tenant.Tenant, error) {
	panic("not used")
}
func (f *fakeStore) GetTenant(context.Context, tenant.ID) (*tenant.Tenant, error) { panic("not used") }
func (f *fakeStore) ListTenants(context.Context) ([]tenant.Tenant, error)         { panic("not used") }
func (f *fakeStore) UpdateTenant(context.Context, tenant.ID, tenant.UpdateRequest) error {
	panic("not used")
}
func (f *fakeStore) CreateAPIKey(context.Context, tenant.ID, string, string, string) error {
	panic("not used")
}

func newTestCache(t *testing.T, store *fakeStore) *TenantCache {
	t.Helper()
	tc, err := New(store, 1<<20, time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(tc.Close)
	return tc
}

func TestFindBySlugCached(t *testing.T) {
	store := &fakeStore{}
	tc := newTestCache(t, store)
	ctx := context.Background()

	got, err := tc.FindBySlug(ctx, "acme")
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if got.ID != testTenant.ID {
		t.Fatalf("got tenant %s", got.ID)
	}
	tc.c.Wait()

	if _, err := tc.FindBySlug(ctx, "acme"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if store.slugCalls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.slugCalls)
	}
}

func TestFindByCustomDomainCached(t *testing.T) {
	store := &fakeStore{}
	tc := newTestCache(t, store)
	ctx := context.Background()

	if _, err := tc.FindByCustomDomain(ctx, testTenant.CustomDomain); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	tc.c.Wait()
	if _, err := tc.FindByCustomDomain(ctx, testTenant.CustomDomain); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if store.domainCalls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.domainCalls)
	}
}

func TestMissesAreNotCached(t *testing.T) {
	store := &fakeStore{}
	tc := newTestCache(t, store)
	ctx := context.Background()

	for range 2 {
		if _, err := tc.FindBySlug(ctx, "ghost"); err == nil {
			t.Fatal("expected lookup miss")
		}
	}
	tc.c.Wait()
	if store.slugCalls != 2 {
		t.Fatalf("misses must reach the store every time, got %d calls", store.slugCalls)
	}
}

func TestTenantForKeyCachesByHash(t *testing.T) {
	const rawKey = "vk_test_secret"
	store := &fakeStore{keyHash: HashKey(rawKey)}
	tc := newTestCache(t, store)
	ctx := context.Background()

	id, err := tc.TenantForKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if id != testTenant.ID {
		t.Fatalf("got tenant %s", id)
	}
	tc.c.Wait()

	if _, err := tc.TenantForKey(ctx, rawKey); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if store.keyCalls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.keyCalls)
	}
}

func TestInvalidateDropsEntries(t *testing.T) {
	store := &fakeStore{}
	tc := newTestCache(t, store)
	ctx := context.Background()

	if _, err := tc.FindBySlug(ctx, "acme"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	tc.c.Wait()

	tc.Invalidate(testTenant)
	if _, err := tc.FindBySlug(ctx, "acme"); err != nil {
		t.Fatalf("lookup after invalidate: %v", err)
	}
	if store.slugCalls != 2 {
		t.Fatalf("expected store hit after invalidate, got %d calls", store.slugCalls)
	}
}
