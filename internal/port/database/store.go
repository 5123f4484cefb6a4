// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/vendora/vendora/internal/domain/tenant"
)

// Store is the port interface for non-event database operations: the
// tenant directory and the API key lookups the resolver delegates to.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error)
	GetTenant(ctx context.Context, id tenant.ID) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, id tenant.ID, req tenant.UpdateRequest) error
	FindByCustomDomain(ctx context.Context, host string) (*tenant.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)

	// API keys
	CreateAPIKey(ctx context.Context, tid tenant.ID, name, keyHash, prefix string) error
	TenantForKeyHash(ctx context.Context, keyHash string) (tenant.ID, error)
}
