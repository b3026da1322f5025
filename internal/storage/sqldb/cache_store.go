package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/doohee323/chat-gateway/internal/storage"
)

// UpsertMapping inserts the mapping row if absent. Existing rows are left
// untouched: mappings are append-only.
func (s *Store) UpsertMapping(ctx context.Context, m *storage.ConversationMapping) error {
	now := time.Now().UTC()
	q := s.ext.Rebind(`INSERT INTO conversation_mappings
		(tenant_id, user_id, provider_user, conversation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id, conversation_id) DO NOTHING`)

	_, err := s.ext.ExecContext(ctx, q,
		m.TenantID, m.UserID, m.ProviderUser, m.ConversationID, now, now)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// UpsertConversation inserts the conversation row or, on conflict with the
// globally unique conversation id, updates name, created_at and synced_at.
func (s *Store) UpsertConversation(ctx context.Context, c *storage.CachedConversation) error {
	q := s.ext.Rebind(`INSERT INTO conversation_cache
		(tenant_id, user_id, provider_user, conversation_id, name, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET
			name = excluded.name,
			created_at = excluded.created_at,
			synced_at = excluded.synced_at`)

	_, err := s.ext.ExecContext(ctx, q,
		c.TenantID, c.UserID, c.ProviderUser, c.ConversationID, c.Name, c.CreatedAt, c.SyncedAt)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", c.ConversationID, err)
	}
	return nil
}

// TouchConversation inserts the conversation row or, on conflict, advances
// only synced_at, leaving name and created_at as the last sync wrote them.
func (s *Store) TouchConversation(ctx context.Context, c *storage.CachedConversation) error {
	q := s.ext.Rebind(`INSERT INTO conversation_cache
		(tenant_id, user_id, provider_user, conversation_id, name, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET
			synced_at = excluded.synced_at`)

	_, err := s.ext.ExecContext(ctx, q,
		c.TenantID, c.UserID, c.ProviderUser, c.ConversationID, c.Name, c.CreatedAt, c.SyncedAt)
	if err != nil {
		return fmt.Errorf("touch conversation %s: %w", c.ConversationID, err)
	}
	return nil
}

// UpsertMessage inserts the message row or, on conflict with the globally
// unique message id, updates content, created_at and synced_at.
func (s *Store) UpsertMessage(ctx context.Context, m *storage.CachedMessage) error {
	q := s.ext.Rebind(`INSERT INTO message_cache
		(conversation_id, message_id, role, content, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			content = excluded.content,
			created_at = excluded.created_at,
			synced_at = excluded.synced_at`)

	_, err := s.ext.ExecContext(ctx, q,
		m.ConversationID, m.MessageID, m.Role, m.Content, m.CreatedAt, m.SyncedAt)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.MessageID, err)
	}
	return nil
}

// UpsertTrackedUser inserts the tracked-user row or refreshes
// provider_user and updated_at on conflict.
func (s *Store) UpsertTrackedUser(ctx context.Context, u *storage.TrackedUser) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	q := s.ext.Rebind(`INSERT INTO sync_users (tenant_id, user_id, provider_user, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			provider_user = excluded.provider_user,
			updated_at = excluded.updated_at`)

	_, err := s.ext.ExecContext(ctx, q, u.TenantID, u.UserID, u.ProviderUser, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tracked user %s/%s: %w", u.TenantID, u.UserID, err)
	}
	return nil
}

// SyncTargets returns the deduplicated union of mapping and tracked-user
// triples. UNION drops exact duplicates across the two tables.
func (s *Store) SyncTargets(ctx context.Context) ([]storage.SyncTarget, error) {
	q := `SELECT tenant_id, user_id, provider_user FROM conversation_mappings
		UNION
		SELECT tenant_id, user_id, provider_user FROM sync_users
		ORDER BY tenant_id, user_id`

	targets := []storage.SyncTarget{}
	if err := sqlx.SelectContext(ctx, s.ext, &targets, q); err != nil {
		return nil, fmt.Errorf("sync targets: %w", err)
	}
	return targets, nil
}

// ListCachedConversations serves the cache view, newest first.
func (s *Store) ListCachedConversations(ctx context.Context, f storage.ConversationFilter) ([]storage.CachedConversation, error) {
	q := `SELECT tenant_id, user_id, provider_user, conversation_id, name, created_at, synced_at
		FROM conversation_cache WHERE 1=1`
	args := []any{}

	if f.TenantID != "" {
		q += " AND tenant_id = ?"
		args = append(args, f.TenantID)
	}
	if f.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.From != nil {
		q += " AND created_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		q += " AND created_at <= ?"
		args = append(args, *f.To)
	}
	q += " ORDER BY created_at DESC"

	convs := []storage.CachedConversation{}
	if err := sqlx.SelectContext(ctx, s.ext, &convs, s.ext.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list cached conversations: %w", err)
	}
	return convs, nil
}

// ListCachedMessages returns a conversation's cached messages in
// chronological order.
func (s *Store) ListCachedMessages(ctx context.Context, conversationID string) ([]storage.CachedMessage, error) {
	q := s.ext.Rebind(`SELECT conversation_id, message_id, role, content, created_at, synced_at
		FROM message_cache WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`)

	msgs := []storage.CachedMessage{}
	if err := sqlx.SelectContext(ctx, s.ext, &msgs, q, conversationID); err != nil {
		return nil, fmt.Errorf("list cached messages: %w", err)
	}
	return msgs, nil
}
