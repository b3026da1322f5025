package identity

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/doohee323/chat-gateway/internal/domain"
)

// UserTokenTTL is the expiry for tokens issued via the token-issuance
// endpoint.
const UserTokenTTL = 24 * time.Hour

// tokenLeeway bounds acceptable clock skew for expiry checks.
const tokenLeeway = 30 * time.Second

var validMethods = []string{jwtv5.SigningMethodHS256.Alg()}

type userClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwtv5.RegisteredClaims
}

type adminClaims struct {
	Type string `json:"type"`
	jwtv5.RegisteredClaims
}

// VerifyToken verifies an end-user token's signature and expiry and
// extracts the identity. Expired, mismatched-signature and malformed
// tokens all fail authentication but with distinct operator-facing
// messages.
func (v *Verifier) VerifyToken(tokenString string) (Identity, error) {
	var claims userClaims
	_, err := jwtv5.ParseWithClaims(tokenString, &claims, v.keyFunc,
		jwtv5.WithValidMethods(validMethods), jwtv5.WithLeeway(tokenLeeway))
	if err != nil {
		return Identity{}, translateTokenError(err)
	}

	if claims.TenantID == "" || claims.UserID == "" {
		return Identity{}, domain.ErrUnauthenticated("token must contain tenant_id and user_id")
	}
	if err := v.checkTenantAllowed(claims.TenantID); err != nil {
		return Identity{}, err
	}
	return Identity{TenantID: claims.TenantID, UserID: claims.UserID}, nil
}

// VerifyAdminToken verifies an admin token and returns its subject. A
// non-admin token never satisfies an admin-required check.
func (v *Verifier) VerifyAdminToken(tokenString string) (string, error) {
	var claims adminClaims
	_, err := jwtv5.ParseWithClaims(tokenString, &claims, v.keyFunc,
		jwtv5.WithValidMethods(validMethods), jwtv5.WithLeeway(tokenLeeway))
	if err != nil {
		return "", translateTokenError(err)
	}

	if claims.Type != "admin" || claims.Subject == "" {
		return "", domain.ErrUnauthenticated("admin token required")
	}
	return claims.Subject, nil
}

// IssueUserToken signs an end-user token for the given identity.
func (v *Verifier) IssueUserToken(id Identity, ttl time.Duration) (string, error) {
	return SignUserToken(string(v.secret), id, ttl)
}

// SignUserToken signs an end-user token with an explicit secret. Used by
// the token-issuance endpoint and the tokengen command.
func SignUserToken(secret string, id Identity, ttl time.Duration) (string, error) {
	claims := userClaims{
		TenantID: id.TenantID,
		UserID:   id.UserID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SignAdminToken signs an admin token with an explicit secret.
func SignAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := adminClaims{
		Type: "admin",
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (v *Verifier) keyFunc(*jwtv5.Token) (any, error) {
	return v.secret, nil
}

func translateTokenError(err error) error {
	switch {
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return domain.ErrUnauthenticated("token expired")
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
		return domain.ErrUnauthenticated("invalid token signature: ensure the server jwt secret matches the one used to issue the token")
	default:
		return domain.ErrUnauthenticated("invalid or expired token")
	}
}
