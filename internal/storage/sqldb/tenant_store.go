package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/doohee323/chat-gateway/internal/storage"
)

const tenantColumns = `id, tenant_id, display_name, provider_base_url, provider_api_key,
	provider_embed_token, allowed_origins, enabled, owner, created_at, updated_at`

// ListTenants returns rows owned by owner plus legacy rows with no owner.
func (s *Store) ListTenants(ctx context.Context, owner string) ([]storage.Tenant, error) {
	q := s.ext.Rebind(fmt.Sprintf(
		`SELECT %s FROM tenants WHERE owner = ? OR owner IS NULL ORDER BY tenant_id`, tenantColumns))

	tenants := []storage.Tenant{}
	if err := sqlx.SelectContext(ctx, s.ext, &tenants, q, owner); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// ListEnabledTenants returns every enabled row, for registry reloads.
func (s *Store) ListEnabledTenants(ctx context.Context) ([]storage.Tenant, error) {
	q := s.ext.Rebind(fmt.Sprintf(
		`SELECT %s FROM tenants WHERE enabled = ? ORDER BY tenant_id`, tenantColumns))

	tenants := []storage.Tenant{}
	if err := sqlx.SelectContext(ctx, s.ext, &tenants, q, true); err != nil {
		return nil, fmt.Errorf("list enabled tenants: %w", err)
	}
	return tenants, nil
}

// GetTenant looks up one row by tenant id.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*storage.Tenant, error) {
	q := s.ext.Rebind(fmt.Sprintf(`SELECT %s FROM tenants WHERE tenant_id = ?`, tenantColumns))

	var t storage.Tenant
	if err := sqlx.GetContext(ctx, s.ext, &t, q, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tenant %s: %w", tenantID, err)
	}
	return &t, nil
}

// CreateTenant inserts a new tenant row.
func (s *Store) CreateTenant(ctx context.Context, t *storage.Tenant) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	q := s.ext.Rebind(`INSERT INTO tenants
		(tenant_id, display_name, provider_base_url, provider_api_key, provider_embed_token,
		 allowed_origins, enabled, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.ext.ExecContext(ctx, q,
		t.TenantID, t.DisplayName, t.ProviderBaseURL, t.ProviderAPIKey, t.ProviderEmbedToken,
		t.AllowedOrigins, t.Enabled, t.Owner, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("create tenant %s: %w", t.TenantID, err)
	}
	return nil
}

// UpdateTenant rewrites the mutable fields of an existing row.
func (s *Store) UpdateTenant(ctx context.Context, t *storage.Tenant) error {
	t.UpdatedAt = time.Now().UTC()

	q := s.ext.Rebind(`UPDATE tenants SET
		display_name = ?, provider_base_url = ?, provider_api_key = ?, provider_embed_token = ?,
		allowed_origins = ?, enabled = ?, updated_at = ?
		WHERE tenant_id = ?`)

	res, err := s.ext.ExecContext(ctx, q,
		t.DisplayName, t.ProviderBaseURL, t.ProviderAPIKey, t.ProviderEmbedToken,
		t.AllowedOrigins, t.Enabled, t.UpdatedAt, t.TenantID)
	if err != nil {
		return fmt.Errorf("update tenant %s: %w", t.TenantID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteTenant removes a tenant row. Cache rows are kept: the provider is
// the source of truth for conversation existence, not this table.
func (s *Store) DeleteTenant(ctx context.Context, tenantID string) error {
	q := s.ext.Rebind(`DELETE FROM tenants WHERE tenant_id = ?`)

	res, err := s.ext.ExecContext(ctx, q, tenantID)
	if err != nil {
		return fmt.Errorf("delete tenant %s: %w", tenantID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
