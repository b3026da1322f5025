// Package identity resolves the caller's identity from either a signed
// token or a shared-secret header plus explicit identifiers.
package identity

import (
	"net/http"
	"strings"

	"github.com/doohee323/chat-gateway/internal/domain"
)

// Identity is a resolved (tenant, user) pair. It is transient and never
// persisted as an entity.
type Identity struct {
	TenantID string
	UserID   string
}

// ProviderUser returns the composite identifier sent to the provider as
// the user field. It must be stable for the lifetime of a user across all
// sync operations.
func (i Identity) ProviderUser() string {
	return i.TenantID + "_" + i.UserID
}

// Scheme tags which credential the caller presented.
type Scheme int

const (
	// SchemeNone means no usable credential was presented.
	SchemeNone Scheme = iota

	// SchemeToken means a verified signed token carrying an identity.
	SchemeToken

	// SchemeSharedKey means a valid shared-secret key. The key alone
	// carries no identity; explicit identifiers are required.
	SchemeSharedKey
)

// Credential is the per-request credential decision, made once from the
// raw header values and passed explicitly to handlers.
type Credential struct {
	Scheme   Scheme
	Identity Identity // valid only when Scheme == SchemeToken
}

// Verifier validates tokens and shared-secret keys against the configured
// secret, key set and tenant allow-list.
type Verifier struct {
	secret         []byte
	apiKeys        []string
	allowedTenants func() []string
}

// NewVerifier builds a verifier. allowedTenants is consulted on every
// check so registry refreshes take effect without restart; an empty result
// means no restriction.
func NewVerifier(secret string, apiKeys []string, allowedTenants func() []string) *Verifier {
	if allowedTenants == nil {
		allowedTenants = func() []string { return nil }
	}
	return &Verifier{
		secret:         []byte(secret),
		apiKeys:        apiKeys,
		allowedTenants: allowedTenants,
	}
}

// CredentialFromRequest decides the caller's credential from the
// Authorization and X-API-Key headers. A bearer token always wins over a
// shared-secret key. An empty configured key set disables key checking
// rather than rejecting all keys: a presented key still counts as the
// shared-secret scheme so explicit identifiers keep working.
func (v *Verifier) CredentialFromRequest(r *http.Request) (Credential, error) {
	if bearer := bearerToken(r); bearer != "" {
		id, err := v.VerifyToken(bearer)
		if err != nil {
			return Credential{}, err
		}
		return Credential{Scheme: SchemeToken, Identity: id}, nil
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return Credential{Scheme: SchemeNone}, nil
	}
	if len(v.apiKeys) > 0 && !v.keyMatches(apiKey) {
		return Credential{}, domain.ErrUnauthenticated("invalid API key")
	}
	return Credential{Scheme: SchemeSharedKey}, nil
}

// VerifySharedKey checks a raw shared-secret key outside the combined
// request flow (e.g. sync and cache endpoints that require the key
// explicitly). An empty configured key set rejects, since those endpoints
// must not be open.
func (v *Verifier) VerifySharedKey(apiKey string) error {
	if apiKey == "" || (len(v.apiKeys) > 0 && !v.keyMatches(apiKey)) {
		return domain.ErrUnauthenticated("API key required")
	}
	return nil
}

// Resolve turns a credential plus optionally supplied explicit
// identifiers into an identity:
//   - token: authoritative; explicit identifiers that disagree are
//     rejected, never silently overridden
//   - shared key: identity comes from the explicit identifiers
//   - none: unauthenticated
func (v *Verifier) Resolve(cred Credential, explicitTenant, explicitUser string) (Identity, error) {
	switch cred.Scheme {
	case SchemeToken:
		if explicitTenant != "" && explicitUser != "" &&
			(cred.Identity.TenantID != explicitTenant || cred.Identity.UserID != explicitUser) {
			return Identity{}, domain.ErrForbidden("tenant_id/user_id must match token")
		}
		return cred.Identity, nil

	case SchemeSharedKey:
		if explicitTenant == "" || explicitUser == "" {
			return Identity{}, domain.ErrBadRequest("tenant_id and user_id required in body or query when using API key")
		}
		if err := v.checkTenantAllowed(explicitTenant); err != nil {
			return Identity{}, err
		}
		return Identity{TenantID: explicitTenant, UserID: explicitUser}, nil

	default:
		return Identity{}, domain.ErrUnauthenticated("API key or Bearer token required")
	}
}

// CheckTenantAllowed validates a tenant id against the allow-list for
// callers outside the credential flow (e.g. token issuance).
func (v *Verifier) CheckTenantAllowed(tenantID string) error {
	return v.checkTenantAllowed(tenantID)
}

func (v *Verifier) checkTenantAllowed(tenantID string) error {
	allowed := v.allowedTenants()
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(a, tenantID) {
			return nil
		}
	}
	return domain.ErrForbidden("tenant_id not allowed")
}

func (v *Verifier) keyMatches(apiKey string) bool {
	// Keys are compared case-sensitively.
	for _, k := range v.apiKeys {
		if k == apiKey {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
