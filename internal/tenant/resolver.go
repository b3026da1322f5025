package tenant

import (
	"sort"
	"strings"

	"github.com/doohee323/chat-gateway/internal/config"
	"github.com/doohee323/chat-gateway/internal/domain"
)

// ResolvedConfig is the provider configuration for one tenant after the
// override chain has been applied.
type ResolvedConfig struct {
	BaseURL    string
	APIKey     string
	EmbedToken string
}

// Resolver resolves per-tenant provider configuration. Precedence per
// field, first non-empty wins: registry (database) row, per-tenant
// environment override, shared environment default.
type Resolver struct {
	registry      *Registry
	overrides     map[string]config.ProviderConfig
	shared        config.ProviderConfig
	staticAllowed []string
}

// NewResolver builds a resolver over the registry and the loaded config.
func NewResolver(registry *Registry, cfg *config.Config) *Resolver {
	return &Resolver{
		registry:      registry,
		overrides:     cfg.Tenants,
		shared:        cfg.Provider,
		staticAllowed: cfg.AllowedTenantsList(),
	}
}

// Resolve returns the provider configuration for tenantID. It returns
// domain.ErrNotConfigured when neither a base URL nor an API key could be
// resolved — a distinct, user-facing "service unavailable for this tenant"
// condition.
func (r *Resolver) Resolve(tenantID string) (ResolvedConfig, error) {
	var rec *Record
	if r.registry != nil {
		rec, _ = r.registry.Lookup(tenantID)
	}
	env := r.overrides[strings.ToLower(strings.TrimSpace(tenantID))]

	out := ResolvedConfig{
		BaseURL:    firstNonEmpty(recField(rec, func(r *Record) string { return r.BaseURL }), env.BaseURL, r.shared.BaseURL),
		APIKey:     firstNonEmpty(recField(rec, func(r *Record) string { return r.APIKey }), env.APIKey, r.shared.APIKey),
		EmbedToken: firstNonEmpty(recField(rec, func(r *Record) string { return r.EmbedToken }), env.EmbedToken, r.shared.EmbedToken),
	}
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.EmbedToken = strings.TrimSpace(out.EmbedToken)

	if out.BaseURL == "" && out.APIKey == "" {
		return ResolvedConfig{}, domain.ErrNotConfigured("chat is not configured for this app")
	}
	return out, nil
}

// AllowedTenantIDs returns the tenant allow-list: registered tenants when
// any exist, otherwise the static environment list. Empty means no
// restriction.
func (r *Resolver) AllowedTenantIDs() []string {
	if r.registry != nil {
		if ids := r.registry.TenantIDs(); len(ids) > 0 {
			return ids
		}
	}
	return r.staticAllowed
}

// AllowedOrigins returns the CORS origins contributed by tenant rows.
func (r *Resolver) AllowedOrigins() []string {
	if r.registry == nil {
		return nil
	}
	return r.registry.AllowedOrigins()
}

// StatusByTenant reports configuration health per known tenant (registry
// entries plus environment overrides), without exposing secrets.
func (r *Resolver) StatusByTenant() map[string]Status {
	ids := map[string]bool{}
	if r.registry != nil {
		for _, id := range r.registry.TenantIDs() {
			ids[strings.ToLower(id)] = true
		}
	}
	for id := range r.overrides {
		ids[id] = true
	}

	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	out := make(map[string]Status, len(ordered))
	for _, id := range ordered {
		cfg, err := r.Resolve(id)
		if err != nil {
			out[id] = Status{}
			continue
		}
		out[id] = Status{
			Configured: cfg.BaseURL != "" && cfg.APIKey != "",
			HasBaseURL: cfg.BaseURL != "",
			HasAPIKey:  cfg.APIKey != "",
		}
	}
	return out
}

func recField(rec *Record, get func(*Record) string) string {
	if rec == nil {
		return ""
	}
	return get(rec)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
