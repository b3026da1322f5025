package identity

import (
	"net/http"
	"strings"

	"github.com/doohee323/chat-gateway/internal/domain"
)

// CheckOrigin enforces the token-issuance origin allow-list. The caller's
// Origin (or Referer) header, stripped of query string and trailing slash,
// must equal or be a path-prefix of one configured origin. An empty
// allow-list disables the check.
func CheckOrigin(r *http.Request, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	base, _, _ := strings.Cut(origin, "?")
	base = strings.TrimRight(base, "/")

	for _, a := range allowed {
		a = strings.TrimRight(strings.TrimSpace(a), "/")
		if a == "" {
			continue
		}
		if base == a || strings.HasPrefix(base, a+"/") {
			return nil
		}
	}
	return domain.ErrForbidden("origin not allowed")
}
