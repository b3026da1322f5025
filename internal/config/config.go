// Package config loads gateway settings from an optional YAML file and the
// CHAT_GATEWAY_* environment, environment winning.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CHAT_GATEWAY_"

// tenantEnvPrefix marks per-tenant provider overrides, e.g.
// CHAT_GATEWAY_TENANT_DRILLQUIZ_BASE_URL.
const tenantEnvPrefix = envPrefix + "TENANT_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Provider ProviderConfig `koanf:"provider"`

	// Tenants holds per-tenant provider overrides keyed by lowercase
	// tenant id, populated once at load from TENANT_* environment
	// variables. Field names are never synthesized at runtime.
	Tenants map[string]ProviderConfig `koanf:"-"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type AuthConfig struct {
	// JWTSecret signs and verifies HS256 chat/admin tokens.
	JWTSecret string `koanf:"jwt_secret"`

	// APIKeys is the comma-separated shared-secret key set. Empty means
	// the shared-secret scheme is disabled.
	APIKeys string `koanf:"api_keys"`

	// AllowedTenants is the static comma-separated tenant allow-list,
	// used only when no tenants are registered in the database.
	AllowedTenants string `koanf:"allowed_tenants"`

	// TokenOrigins is the comma-separated origin allow-list for the
	// token-issuance endpoint. Empty means no origin check.
	TokenOrigins string `koanf:"token_origins"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// ProviderConfig holds the upstream chat provider settings, either shared
// defaults or a per-tenant override.
type ProviderConfig struct {
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	EmbedToken string `koanf:"embed_token"`
}

// envKeys maps CHAT_GATEWAY_* suffixes to config keys. TENANT_* variables
// are handled separately by parseTenantOverrides.
var envKeys = map[string]string{
	"SERVER_PORT":          "server.port",
	"JWT_SECRET":           "auth.jwt_secret",
	"API_KEYS":             "auth.api_keys",
	"ALLOWED_TENANTS":      "auth.allowed_tenants",
	"TOKEN_ORIGINS":        "auth.token_origins",
	"DB_DRIVER":            "database.driver",
	"DB_DSN":               "database.dsn",
	"PROVIDER_BASE_URL":    "provider.base_url",
	"PROVIDER_API_KEY":     "provider.api_key",
	"PROVIDER_EMBED_TOKEN": "provider.embed_token",
}

// Load reads configuration from configPath (ignored if empty or missing)
// and then overlays the environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		suffix := strings.TrimPrefix(s, envPrefix)
		if key, ok := envKeys[suffix]; ok {
			return key
		}
		// Unknown (including TENANT_*) variables are dropped here.
		return ""
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("database.driver") {
		k.Set("database.driver", "sqlite")
	}
	if !k.Exists("database.dsn") {
		k.Set("database.dsn", "chat_gateway.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Tenants = parseTenantOverrides(os.Environ())

	return &cfg, nil
}

// parseTenantOverrides builds the tenant-id -> provider override mapping
// from CHAT_GATEWAY_TENANT_<ID>_{BASE_URL,API_KEY,EMBED_TOKEN} variables.
func parseTenantOverrides(environ []string) map[string]ProviderConfig {
	overrides := make(map[string]ProviderConfig)

	set := func(name, value string) {
		for _, suffix := range []string{"_BASE_URL", "_API_KEY", "_EMBED_TOKEN"} {
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			id := strings.ToLower(strings.TrimSuffix(name, suffix))
			if id == "" {
				return
			}
			o := overrides[id]
			switch suffix {
			case "_BASE_URL":
				o.BaseURL = strings.TrimSpace(value)
			case "_API_KEY":
				o.APIKey = strings.TrimSpace(value)
			case "_EMBED_TOKEN":
				o.EmbedToken = strings.TrimSpace(value)
			}
			overrides[id] = o
			return
		}
	}

	for _, kv := range environ {
		if !strings.HasPrefix(kv, tenantEnvPrefix) {
			continue
		}
		name, value, ok := strings.Cut(strings.TrimPrefix(kv, tenantEnvPrefix), "=")
		if !ok {
			continue
		}
		set(name, value)
	}

	return overrides
}

// APIKeysList returns the configured shared-secret keys, trimmed, empty
// entries dropped.
func (c *Config) APIKeysList() []string {
	return splitList(c.Auth.APIKeys)
}

// AllowedTenantsList returns the static tenant allow-list.
func (c *Config) AllowedTenantsList() []string {
	return splitList(c.Auth.AllowedTenants)
}

// TokenOriginsList returns the token-issuance origin allow-list.
func (c *Config) TokenOriginsList() []string {
	return splitList(c.Auth.TokenOrigins)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
