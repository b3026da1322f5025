package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/doohee323/chat-gateway/internal/config"
	"github.com/doohee323/chat-gateway/internal/domain"
	"github.com/doohee323/chat-gateway/internal/storage"
)

func newResolver(t *testing.T, rows []storage.Tenant, cfg *config.Config) *Resolver {
	t.Helper()
	reg := NewRegistry(&fakeTenantStore{rows: rows})
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	return NewResolver(reg, cfg)
}

func TestResolve_Precedence(t *testing.T) {
	cfg := &config.Config{
		Provider: config.ProviderConfig{BaseURL: "https://shared.example.com", APIKey: "shared-key"},
		Tenants: map[string]config.ProviderConfig{
			"acme": {BaseURL: "https://env.example.com", APIKey: "env-key"},
		},
	}
	dbRows := []storage.Tenant{{
		TenantID:        "acme",
		ProviderBaseURL: "https://db.example.com",
		ProviderAPIKey:  "db-key",
		Enabled:         true,
	}}

	// All three layers set: database wins.
	r := newResolver(t, dbRows, cfg)
	got, err := r.Resolve("acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.BaseURL != "https://db.example.com" || got.APIKey != "db-key" {
		t.Errorf("Resolve() = %+v, want database override", got)
	}

	// No database row: per-tenant environment value wins.
	r = newResolver(t, nil, cfg)
	got, err = r.Resolve("acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.BaseURL != "https://env.example.com" || got.APIKey != "env-key" {
		t.Errorf("Resolve() = %+v, want env override", got)
	}

	// Neither: shared default.
	cfg.Tenants = nil
	r = newResolver(t, nil, cfg)
	got, err = r.Resolve("acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.BaseURL != "https://shared.example.com" || got.APIKey != "shared-key" {
		t.Errorf("Resolve() = %+v, want shared default", got)
	}
}

func TestResolve_PerFieldFallback(t *testing.T) {
	// The database row sets only the base URL; the key comes from env.
	cfg := &config.Config{
		Tenants: map[string]config.ProviderConfig{"acme": {APIKey: "env-key"}},
	}
	r := newResolver(t, []storage.Tenant{{
		TenantID:        "acme",
		ProviderBaseURL: "https://db.example.com/",
		Enabled:         true,
	}}, cfg)

	got, err := r.Resolve("ACME")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.BaseURL != "https://db.example.com" {
		t.Errorf("BaseURL = %q, want trimmed db value", got.BaseURL)
	}
	if got.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env fallback", got.APIKey)
	}
}

func TestResolve_NotConfigured(t *testing.T) {
	r := newResolver(t, nil, &config.Config{})

	_, err := r.Resolve("ghost")
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeNotConfigured {
		t.Fatalf("Resolve() error = %v, want NotConfigured", err)
	}
}

func TestAllowedTenantIDs(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{AllowedTenants: "static1,static2"}}

	// Registry populated: its ids win.
	r := newResolver(t, []storage.Tenant{{TenantID: "dbtenant", Enabled: true}}, cfg)
	ids := r.AllowedTenantIDs()
	if len(ids) != 1 || ids[0] != "dbtenant" {
		t.Errorf("AllowedTenantIDs() = %v, want [dbtenant]", ids)
	}

	// Empty registry: static list.
	r = newResolver(t, nil, cfg)
	ids = r.AllowedTenantIDs()
	if len(ids) != 2 {
		t.Errorf("AllowedTenantIDs() = %v, want static list", ids)
	}

	// Neither: no restriction.
	r = newResolver(t, nil, &config.Config{})
	if ids := r.AllowedTenantIDs(); len(ids) != 0 {
		t.Errorf("AllowedTenantIDs() = %v, want empty", ids)
	}
}

func TestStatusByTenant(t *testing.T) {
	cfg := &config.Config{
		Tenants: map[string]config.ProviderConfig{"envonly": {BaseURL: "https://e.example.com"}},
	}
	r := newResolver(t, []storage.Tenant{{
		TenantID:        "full",
		ProviderBaseURL: "https://db.example.com",
		ProviderAPIKey:  "k",
		Enabled:         true,
	}}, cfg)

	status := r.StatusByTenant()
	if !status["full"].Configured {
		t.Errorf("full = %+v, want configured", status["full"])
	}
	if s := status["envonly"]; s.Configured || !s.HasBaseURL || s.HasAPIKey {
		t.Errorf("envonly = %+v, want base URL only", s)
	}
}
