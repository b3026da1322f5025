// Package sync keeps the local conversation cache converging toward the
// provider's state: opportunistically after each chat exchange, and in
// bulk for every tracked user.
package sync

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/doohee323/chat-gateway/internal/identity"
	"github.com/doohee323/chat-gateway/internal/metrics"
	"github.com/doohee323/chat-gateway/internal/provider"
	"github.com/doohee323/chat-gateway/internal/storage"
)

// maxBulkTargets caps how many (tenant, user) pairs one bulk run covers.
// Callers converge across runs via upsert idempotence.
const maxBulkTargets = 1000

// ProviderAPI is the slice of the provider client the engine needs.
type ProviderAPI interface {
	ListConversations(ctx context.Context, user string) ([]provider.Conversation, error)
	ListMessages(ctx context.Context, conversationID, user string) ([]provider.Message, error)
}

// ClientFactory builds a provider client for a tenant. It fails when the
// tenant has no usable provider configuration.
type ClientFactory func(tenantID string) (ProviderAPI, error)

// Engine drives all cache writes.
type Engine struct {
	store   storage.SyncStore
	clients ClientFactory
	metrics *metrics.GatewayMetrics
	logger  *slog.Logger
}

// NewEngine creates a sync engine.
func NewEngine(store storage.SyncStore, clients ClientFactory, m *metrics.GatewayMetrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, clients: clients, metrics: m, logger: logger}
}

// Exchange is one completed chat round-trip to record.
type Exchange struct {
	Identity       identity.Identity
	ConversationID string
	// MessageID is the provider's message id; empty when the provider
	// returned none, in which case a local id is synthesized.
	MessageID string
	Query     string
	Answer    string
}

// UserResult counts what one user's sync run covered.
type UserResult struct {
	Conversations int
	Messages      int
}

// BulkResult aggregates a bulk run. Errors holds one entry per failed
// user; the run itself still succeeds.
type BulkResult struct {
	ConversationsSynced int      `json:"conversations_synced"`
	MessagesSynced      int      `json:"messages_synced"`
	Errors              []string `json:"errors"`
}

// RecordExchange writes the mapping, conversation and the two message rows
// for a just-completed exchange in one transaction. The chat answer is
// already finalized, so failure here is logged and counted but never
// surfaced to the chat caller.
func (e *Engine) RecordExchange(ctx context.Context, x Exchange) {
	if x.ConversationID == "" {
		return
	}

	now := time.Now().UTC()
	messageID := x.MessageID
	if messageID == "" {
		messageID = localMessageID()
	}

	err := e.store.InTx(ctx, func(st storage.SyncStore) error {
		if err := st.UpsertMapping(ctx, &storage.ConversationMapping{
			TenantID:       x.Identity.TenantID,
			UserID:         x.Identity.UserID,
			ProviderUser:   x.Identity.ProviderUser(),
			ConversationID: x.ConversationID,
		}); err != nil {
			return err
		}
		if err := st.TouchConversation(ctx, &storage.CachedConversation{
			TenantID:       x.Identity.TenantID,
			UserID:         x.Identity.UserID,
			ProviderUser:   x.Identity.ProviderUser(),
			ConversationID: x.ConversationID,
			CreatedAt:      &now,
			SyncedAt:       now,
		}); err != nil {
			return err
		}
		if err := st.UpsertMessage(ctx, &storage.CachedMessage{
			ConversationID: x.ConversationID,
			MessageID:      messageID + "_user",
			Role:           "user",
			Content:        x.Query,
			CreatedAt:      &now,
			SyncedAt:       now,
		}); err != nil {
			return err
		}
		return st.UpsertMessage(ctx, &storage.CachedMessage{
			ConversationID: x.ConversationID,
			MessageID:      messageID + "_assistant",
			Role:           "assistant",
			Content:        x.Answer,
			CreatedAt:      &now,
			SyncedAt:       now,
		})
	})
	if err != nil {
		e.metrics.CacheWriteFailures.Inc()
		e.logger.Warn("failed to record chat exchange",
			slog.String("tenant_id", x.Identity.TenantID),
			slog.String("conversation_id", x.ConversationID),
			slog.String("error", err.Error()),
		)
	}
}

// RegisterTrackedUser marks a (tenant, user) pair as a bulk-sync target,
// independent of whether the user ever completed a chat.
func (e *Engine) RegisterTrackedUser(ctx context.Context, id identity.Identity) error {
	return e.store.UpsertTrackedUser(ctx, &storage.TrackedUser{
		TenantID:     id.TenantID,
		UserID:       id.UserID,
		ProviderUser: id.ProviderUser(),
		UpdatedAt:    time.Now().UTC(),
	})
}

// SyncUser replays everything the provider has for one user into the
// cache, inside a single transaction.
func (e *Engine) SyncUser(ctx context.Context, target storage.SyncTarget) (UserResult, error) {
	var result UserResult
	err := e.store.InTx(ctx, func(st storage.SyncStore) error {
		var err error
		result, err = e.syncUser(ctx, st, target)
		return err
	})
	if err != nil {
		return UserResult{}, err
	}
	e.metrics.SyncConversationsTotal.Add(float64(result.Conversations))
	e.metrics.SyncMessagesTotal.Add(float64(result.Messages))
	return result, nil
}

func (e *Engine) syncUser(ctx context.Context, st storage.SyncStore, target storage.SyncTarget) (UserResult, error) {
	client, err := e.clients(target.TenantID)
	if err != nil {
		return UserResult{}, err
	}

	convs, err := client.ListConversations(ctx, target.ProviderUser)
	if err != nil {
		return UserResult{}, err
	}

	var result UserResult
	for _, conv := range convs {
		if conv.ID == "" {
			continue
		}
		result.Conversations++

		now := time.Now().UTC()
		if err := st.UpsertConversation(ctx, &storage.CachedConversation{
			TenantID:       target.TenantID,
			UserID:         target.UserID,
			ProviderUser:   target.ProviderUser,
			ConversationID: conv.ID,
			Name:           conv.Name,
			CreatedAt:      unixToTime(conv.CreatedAt),
			SyncedAt:       now,
		}); err != nil {
			return UserResult{}, err
		}

		msgs, err := client.ListMessages(ctx, conv.ID, target.ProviderUser)
		if err != nil {
			return UserResult{}, err
		}
		for _, m := range msgs {
			if m.ID == "" {
				continue
			}
			createdAt := unixToTime(m.CreatedAt)
			// One provider entry can carry both sides of the
			// exchange; store each present side as its own row.
			if m.Query != nil {
				if err := st.UpsertMessage(ctx, &storage.CachedMessage{
					ConversationID: conv.ID,
					MessageID:      m.ID + "_user",
					Role:           "user",
					Content:        *m.Query,
					CreatedAt:      createdAt,
					SyncedAt:       now,
				}); err != nil {
					return UserResult{}, err
				}
				result.Messages++
			}
			if m.Answer != nil {
				if err := st.UpsertMessage(ctx, &storage.CachedMessage{
					ConversationID: conv.ID,
					MessageID:      m.ID + "_assistant",
					Role:           "assistant",
					Content:        *m.Answer,
					CreatedAt:      createdAt,
					SyncedAt:       now,
				}); err != nil {
					return UserResult{}, err
				}
				result.Messages++
			}
		}
	}
	return result, nil
}

// SyncAll runs SyncUser over every deduplicated sync target sequentially,
// accumulating partial success. A failed user is recorded and skipped; the
// batch never aborts.
func (e *Engine) SyncAll(ctx context.Context) (BulkResult, error) {
	targets, err := e.store.SyncTargets(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	if len(targets) > maxBulkTargets {
		e.logger.Warn("sync target list capped",
			slog.Int("targets", len(targets)),
			slog.Int("cap", maxBulkTargets),
		)
		targets = targets[:maxBulkTargets]
	}

	result := BulkResult{Errors: []string{}}
	for _, target := range targets {
		userResult, err := e.SyncUser(ctx, target)
		if err != nil {
			e.metrics.SyncErrorsTotal.Inc()
			e.logger.Warn("sync failed for user",
				slog.String("tenant_id", target.TenantID),
				slog.String("user_id", target.UserID),
				slog.String("error", err.Error()),
			)
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", target.TenantID, target.UserID, err))
			continue
		}
		result.ConversationsSynced += userResult.Conversations
		result.MessagesSynced += userResult.Messages
	}
	e.metrics.SyncRunsTotal.Inc()
	return result, nil
}

// localMessageID synthesizes an id for exchanges where the provider
// returned no message id.
func localMessageID() string {
	u := uuid.New()
	return "local-" + hex.EncodeToString(u[:])[:12]
}

// unixToTime converts a provider Unix timestamp; absent or out-of-range
// values become NULL.
func unixToTime(ts *int64) *time.Time {
	if ts == nil || *ts < 0 || *ts > 253402300799 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}
