// Package tenant holds the process-wide tenant registry and the per-tenant
// provider configuration resolver.
package tenant

// Record is the registry's immutable view of one enabled tenant row.
type Record struct {
	ID             string
	DisplayName    string
	BaseURL        string
	APIKey         string
	EmbedToken     string
	AllowedOrigins []string
}

// Status reports whether a tenant has usable provider configuration,
// without exposing the values themselves.
type Status struct {
	Configured bool `json:"configured"`
	HasBaseURL bool `json:"has_base_url"`
	HasAPIKey  bool `json:"has_api_key"`
}
