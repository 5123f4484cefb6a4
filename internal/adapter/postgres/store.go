package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/vendora/internal/domain"
	"github.com/vendora/vendora/internal/domain/tenant"
)

// Store implements database.Store using PostgreSQL. It holds the tenant
// directory and the API key table the resolver looks tenants up in.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tenantColumns = `id, name, slug, COALESCE(custom_domain, ''), enabled, settings, created_at, updated_at`

// --- Tenants ---

func (s *Store) CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug, custom_domain)
		 VALUES ($1, $2, $3)
		 RETURNING `+tenantColumns,
		req.Name, req.Slug, nullIfEmpty(req.CustomDomain))

	t, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create tenant %q: %w", req.Slug, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create tenant %q: %w", req.Slug, err)
	}
	return &t, nil
}

func (s *Store) GetTenant(ctx context.Context, id tenant.ID) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id.String())

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateTenant(ctx context.Context, id tenant.ID, req tenant.UpdateRequest) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET
		   name = COALESCE(NULLIF($2, ''), name),
		   custom_domain = COALESCE(NULLIF($3, ''), custom_domain),
		   enabled = COALESCE($4, enabled),
		   updated_at = now()
		 WHERE id = $1`,
		id.String(), req.Name, req.CustomDomain, req.Enabled)
	return execExpectOne(tag, err, "update tenant %s", id)
}

// FindByCustomDomain resolves a tenant by its verified custom domain.
// Disabled tenants do not resolve.
func (s *Store) FindByCustomDomain(ctx context.Context, host string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE custom_domain = $1 AND enabled`, host)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "find tenant by domain %s", host)
	}
	return &t, nil
}

// FindBySlug resolves a tenant by its subdomain slug. Disabled tenants do
// not resolve.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1 AND enabled`, slug)

	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "find tenant by slug %s", slug)
	}
	return &t, nil
}

// --- API keys ---

func (s *Store) CreateAPIKey(ctx context.Context, tid tenant.ID, name, keyHash, prefix string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (tenant_id, name, key_hash, prefix)
		 VALUES ($1, $2, $3, $4)`,
		tid.String(), name, keyHash, prefix)
	if err != nil {
		return fmt.Errorf("create api key %q: %w", name, err)
	}
	return nil
}

// TenantForKeyHash resolves the tenant owning the API key with the given
// hash. Keys of disabled tenants do not resolve.
func (s *Store) TenantForKeyHash(ctx context.Context, keyHash string) (tenant.ID, error) {
	var rawID string
	err := s.pool.QueryRow(ctx,
		`SELECT k.tenant_id
		 FROM api_keys k
		 JOIN tenants t ON t.id = k.tenant_id
		 WHERE k.key_hash = $1 AND t.enabled`, keyHash,
	).Scan(&rawID)
	if err != nil {
		return tenant.ID{}, notFoundWrap(err, "tenant for api key")
	}
	return tenant.ParseID(rawID)
}

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	var rawID string
	var settingsJSON []byte
	err := row.Scan(&rawID, &t.Name, &t.Slug, &t.CustomDomain, &t.Enabled, &settingsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if t.ID, err = tenant.ParseID(rawID); err != nil {
		return t, fmt.Errorf("tenant id %q: %w", rawID, err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &t.Settings); err != nil {
			return t, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return t, nil
}
