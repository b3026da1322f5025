// Command tokengen mints HS256 tokens for the gateway: end-user chat
// tokens and admin tokens for the tenant management API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/doohee323/chat-gateway/internal/identity"
)

func main() {
	admin := flag.Bool("admin", false, "mint an admin token instead of a user token")
	subject := flag.String("subject", "", "admin username (admin tokens)")
	tenantID := flag.String("tenant", "", "tenant id (user tokens)")
	userID := flag.String("user", "", "user id (user tokens)")
	secret := flag.String("secret", "", "jwt secret (defaults to CHAT_GATEWAY_JWT_SECRET)")
	ttl := flag.Duration("ttl", identity.UserTokenTTL, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	signingSecret := *secret
	if signingSecret == "" {
		signingSecret = os.Getenv("CHAT_GATEWAY_JWT_SECRET")
	}
	if signingSecret == "" {
		fmt.Fprintln(os.Stderr, "a jwt secret is required (-secret or CHAT_GATEWAY_JWT_SECRET)")
		os.Exit(1)
	}

	var token string
	var err error
	if *admin {
		if *subject == "" {
			fmt.Fprintln(os.Stderr, "-subject is required for admin tokens")
			os.Exit(1)
		}
		token, err = identity.SignAdminToken(signingSecret, *subject, *ttl)
	} else {
		if *tenantID == "" || *userID == "" {
			fmt.Fprintln(os.Stderr, "-tenant and -user are required for user tokens")
			os.Exit(1)
		}
		token, err = identity.SignUserToken(signingSecret, identity.Identity{
			TenantID: *tenantID,
			UserID:   *userID,
		}, *ttl)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
