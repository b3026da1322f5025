package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/doohee323/chat-gateway/internal/storage"
)

// fakeTenantStore serves canned rows for registry tests.
type fakeTenantStore struct {
	mu   sync.Mutex
	rows []storage.Tenant
}

func (f *fakeTenantStore) ListEnabledTenants(ctx context.Context) ([]storage.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Tenant, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeTenantStore) setRows(rows []storage.Tenant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
}

func (f *fakeTenantStore) ListTenants(context.Context, string) ([]storage.Tenant, error) {
	return nil, nil
}
func (f *fakeTenantStore) GetTenant(context.Context, string) (*storage.Tenant, error) {
	return nil, storage.ErrNotFound
}
func (f *fakeTenantStore) CreateTenant(context.Context, *storage.Tenant) error { return nil }
func (f *fakeTenantStore) UpdateTenant(context.Context, *storage.Tenant) error { return nil }
func (f *fakeTenantStore) DeleteTenant(context.Context, string) error          { return nil }

func TestRegistry_RefreshAndLookup(t *testing.T) {
	store := &fakeTenantStore{rows: []storage.Tenant{
		{
			TenantID:        "DrillQuiz",
			ProviderBaseURL: "https://dify.example.com/",
			ProviderAPIKey:  " app-key ",
			AllowedOrigins:  "https://a.example.com, https://b.example.com",
			Enabled:         true,
		},
	}}
	reg := NewRegistry(store)

	if _, ok := reg.Lookup("drillquiz"); ok {
		t.Fatal("Lookup() before Refresh should miss")
	}

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	rec, ok := reg.Lookup("DRILLQUIZ")
	if !ok {
		t.Fatal("Lookup() should match case-insensitively")
	}
	if rec.BaseURL != "https://dify.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", rec.BaseURL)
	}
	if rec.APIKey != "app-key" {
		t.Errorf("APIKey = %q, want trimmed", rec.APIKey)
	}
	if len(reg.AllowedOrigins()) != 2 {
		t.Errorf("AllowedOrigins() = %v, want 2", reg.AllowedOrigins())
	}
}

func TestRegistry_RefreshSwapsSnapshot(t *testing.T) {
	store := &fakeTenantStore{rows: []storage.Tenant{
		{TenantID: "old", Enabled: true},
	}}
	reg := NewRegistry(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	store.setRows([]storage.Tenant{{TenantID: "new", Enabled: true}})
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := reg.Lookup("old"); ok {
		t.Error("stale tenant still visible after refresh")
	}
	if _, ok := reg.Lookup("new"); !ok {
		t.Error("new tenant missing after refresh")
	}
}

func TestRegistry_ConcurrentReadDuringRefresh(t *testing.T) {
	store := &fakeTenantStore{rows: []storage.Tenant{{TenantID: "acme", Enabled: true}}}
	reg := NewRegistry(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				reg.Lookup("acme")
				reg.TenantIDs()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		if err := reg.Refresh(context.Background()); err != nil {
			t.Error(err)
			break
		}
	}
	wg.Wait()
}
