package tenant

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/doohee323/chat-gateway/internal/storage"
)

// Registry is the process-wide cache of enabled tenant rows. It holds an
// immutable snapshot behind an atomic pointer: Refresh builds a new
// snapshot from the store and swaps it in, so readers never observe a
// partially-updated view. Refresh runs at startup and synchronously after
// every tenant mutation.
type Registry struct {
	store storage.TenantStore
	snap  atomic.Pointer[snapshot]
}

type snapshot struct {
	byID    map[string]*Record // keyed by lowercase tenant id
	ids     []string           // tenant ids in store order
	origins []string           // deduplicated CORS origins across tenants
}

// NewRegistry creates an empty registry. Call Refresh before serving.
func NewRegistry(store storage.TenantStore) *Registry {
	r := &Registry{store: store}
	r.snap.Store(&snapshot{byID: map[string]*Record{}})
	return r
}

// Refresh performs a full reload of enabled tenants and atomically swaps
// the snapshot.
func (r *Registry) Refresh(ctx context.Context) error {
	rows, err := r.store.ListEnabledTenants(ctx)
	if err != nil {
		return fmt.Errorf("refresh tenant registry: %w", err)
	}

	next := &snapshot{byID: make(map[string]*Record, len(rows))}
	seenOrigin := map[string]bool{}

	for _, row := range rows {
		rec := &Record{
			ID:          row.TenantID,
			DisplayName: row.DisplayName,
			BaseURL:     strings.TrimRight(strings.TrimSpace(row.ProviderBaseURL), "/"),
			APIKey:      strings.TrimSpace(row.ProviderAPIKey),
			EmbedToken:  strings.TrimSpace(row.ProviderEmbedToken),
		}
		for _, o := range strings.Split(row.AllowedOrigins, ",") {
			o = strings.TrimSpace(o)
			if o == "" {
				continue
			}
			rec.AllowedOrigins = append(rec.AllowedOrigins, o)
			if !seenOrigin[o] {
				seenOrigin[o] = true
				next.origins = append(next.origins, o)
			}
		}
		next.byID[strings.ToLower(row.TenantID)] = rec
		next.ids = append(next.ids, row.TenantID)
	}

	r.snap.Store(next)
	return nil
}

// Lookup returns the record for a tenant id, matching case-insensitively.
func (r *Registry) Lookup(tenantID string) (*Record, bool) {
	rec, ok := r.snap.Load().byID[strings.ToLower(strings.TrimSpace(tenantID))]
	return rec, ok
}

// TenantIDs returns the registered tenant ids. Empty when no tenants are
// stored, in which case callers fall back to static configuration.
func (r *Registry) TenantIDs() []string {
	return r.snap.Load().ids
}

// AllowedOrigins returns the deduplicated CORS origins contributed by
// tenant rows.
func (r *Registry) AllowedOrigins() []string {
	return r.snap.Load().origins
}
