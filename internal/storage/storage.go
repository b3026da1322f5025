// Package storage defines the persistence interfaces and row types for the
// gateway's tenant table and conversation cache.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("storage: duplicate")

// Tenant is a persisted tenant configuration row. Values here override
// per-tenant environment values and shared defaults during resolution.
type Tenant struct {
	ID                 int64      `db:"id"`
	TenantID           string     `db:"tenant_id"`
	DisplayName        string     `db:"display_name"`
	ProviderBaseURL    string     `db:"provider_base_url"`
	ProviderAPIKey     string     `db:"provider_api_key"`
	ProviderEmbedToken string     `db:"provider_embed_token"`
	AllowedOrigins     string     `db:"allowed_origins"`
	Enabled            bool       `db:"enabled"`
	// Owner is nil for legacy rows visible to every admin.
	Owner     *string   `db:"owner"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ConversationMapping links a (tenant, user) pair to a provider
// conversation. Rows are append-only: inserted the first time a chat call
// produces the conversation, never deleted by the normal flow.
type ConversationMapping struct {
	TenantID       string `db:"tenant_id"`
	UserID         string `db:"user_id"`
	ProviderUser   string `db:"provider_user"`
	ConversationID string `db:"conversation_id"`
}

// CachedConversation mirrors provider-side conversation metadata, keyed by
// the provider's globally unique conversation id.
type CachedConversation struct {
	TenantID       string     `db:"tenant_id"`
	UserID         string     `db:"user_id"`
	ProviderUser   string     `db:"provider_user"`
	ConversationID string     `db:"conversation_id"`
	Name           *string    `db:"name"`
	CreatedAt      *time.Time `db:"created_at"`
	SyncedAt       time.Time  `db:"synced_at"`
}

// CachedMessage mirrors one provider message row. A provider message
// carrying both query and answer is split into two rows with synthesized
// "_user" / "_assistant" sub-ids.
type CachedMessage struct {
	ConversationID string     `db:"conversation_id"`
	MessageID      string     `db:"message_id"`
	Role           string     `db:"role"`
	Content        string     `db:"content"`
	CreatedAt      *time.Time `db:"created_at"`
	SyncedAt       time.Time  `db:"synced_at"`
}

// TrackedUser is a (tenant, user) pair registered for bulk sync,
// independent of whether the user ever completed a chat.
type TrackedUser struct {
	TenantID     string    `db:"tenant_id"`
	UserID       string    `db:"user_id"`
	ProviderUser string    `db:"provider_user"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// SyncTarget is one deduplicated (tenant, user, provider user) triple that
// bulk sync must cover.
type SyncTarget struct {
	TenantID     string `db:"tenant_id"`
	UserID       string `db:"user_id"`
	ProviderUser string `db:"provider_user"`
}

// ConversationFilter narrows cache-view queries.
type ConversationFilter struct {
	TenantID string
	UserID   string
	From     *time.Time
	To       *time.Time
}

// TenantStore persists tenant configuration rows.
type TenantStore interface {
	// ListTenants returns rows owned by owner plus legacy rows with no
	// owner, ordered by tenant id.
	ListTenants(ctx context.Context, owner string) ([]Tenant, error)

	// ListEnabledTenants returns all enabled rows, for registry loads.
	ListEnabledTenants(ctx context.Context) ([]Tenant, error)

	// GetTenant looks a row up by tenant id (exact, lowercased by
	// callers). Returns ErrNotFound if absent.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// CreateTenant inserts a row. Returns ErrDuplicate if the tenant id
	// is taken.
	CreateTenant(ctx context.Context, t *Tenant) error

	UpdateTenant(ctx context.Context, t *Tenant) error
	DeleteTenant(ctx context.Context, tenantID string) error
}

// SyncStore persists the conversation cache. All upserts key on the
// natural unique key and update only mutable fields on conflict.
type SyncStore interface {
	// UpsertMapping inserts the mapping if absent; existing rows are
	// left untouched.
	UpsertMapping(ctx context.Context, m *ConversationMapping) error

	// UpsertConversation inserts or updates name, created_at and
	// synced_at. Used by bulk sync.
	UpsertConversation(ctx context.Context, c *CachedConversation) error

	// TouchConversation inserts the row or, on conflict, advances only
	// synced_at. Used by the opportunistic record path.
	TouchConversation(ctx context.Context, c *CachedConversation) error

	// UpsertMessage inserts or updates content, created_at and synced_at.
	UpsertMessage(ctx context.Context, m *CachedMessage) error

	// UpsertTrackedUser inserts or refreshes provider_user/updated_at.
	UpsertTrackedUser(ctx context.Context, u *TrackedUser) error

	// SyncTargets returns the deduplicated union of mapping and
	// tracked-user triples.
	SyncTargets(ctx context.Context) ([]SyncTarget, error)

	// InTx runs fn against a transaction-scoped SyncStore, committing on
	// nil and rolling back on error.
	InTx(ctx context.Context, fn func(SyncStore) error) error
}

// CacheReader serves the cache-view endpoints.
type CacheReader interface {
	ListCachedConversations(ctx context.Context, f ConversationFilter) ([]CachedConversation, error)
	ListCachedMessages(ctx context.Context, conversationID string) ([]CachedMessage, error)
}

// Store is the full persistence surface backing the gateway.
type Store interface {
	TenantStore
	SyncStore
	CacheReader
	Close() error
}
