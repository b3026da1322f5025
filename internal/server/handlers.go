package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doohee323/chat-gateway/internal/domain"
	"github.com/doohee323/chat-gateway/internal/identity"
	"github.com/doohee323/chat-gateway/internal/provider"
	"github.com/doohee323/chat-gateway/internal/storage"
	"github.com/doohee323/chat-gateway/internal/sync"
)

type chatRequest struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
}

type chatResponse struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Answer         string         `json:"answer"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type conversationItem struct {
	ID        string  `json:"id"`
	Name      *string `json:"name"`
	CreatedAt *int64  `json:"created_at"`
}

type messageItem struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	CreatedAt *int64  `json:"created_at"`
}

// resolveIdentity runs the full credential flow for the combined
// token-or-shared-key endpoints.
func (s *Server) resolveIdentity(r *http.Request, explicitTenant, explicitUser string) (identity.Identity, error) {
	cred, err := s.verifier.CredentialFromRequest(r)
	if err != nil {
		return identity.Identity{}, err
	}
	ident, err := s.verifier.Resolve(cred, explicitTenant, explicitUser)
	if err != nil {
		return identity.Identity{}, err
	}
	AddLogField(r.Context(), "tenant_id", ident.TenantID)
	AddLogField(r.Context(), "user_id", ident.UserID)
	return ident, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, domain.ErrBadRequest("invalid request body"))
		return
	}
	if body.Message == "" {
		writeError(w, r, domain.ErrBadRequest("message is required"))
		return
	}

	ident, err := s.resolveIdentity(r, body.TenantID, body.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	client, err := s.providers(ident.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := client.SendMessage(r.Context(), &provider.ChatRequest{
		Query:          body.Message,
		ConversationID: body.ConversationID,
		Inputs:         body.Inputs,
		User:           ident.ProviderUser(),
	})
	if err != nil {
		writeError(w, r, provider.Translate(err))
		return
	}

	// The answer is final from here on; cache writes are best-effort.
	s.engine.RecordExchange(r.Context(), sync.Exchange{
		Identity:       ident,
		ConversationID: result.ConversationID,
		MessageID:      result.MessageID,
		Query:          body.Message,
		Answer:         result.Answer,
	})
	if err := s.engine.RegisterTrackedUser(r.Context(), ident); err != nil {
		AddLogField(r.Context(), "tracked_user_error", err.Error())
	}

	s.metrics.ChatsTotal.WithLabelValues(ident.TenantID).Inc()

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: result.ConversationID,
		MessageID:      result.MessageID,
		Answer:         result.Answer,
		Metadata:       result.Metadata,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ident, err := s.resolveIdentity(r, q.Get("tenant_id"), q.Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	client, err := s.providers(ident.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	convs, err := client.ListConversations(r.Context(), ident.ProviderUser())
	if err != nil {
		writeError(w, r, provider.Translate(err))
		return
	}

	items := make([]conversationItem, 0, len(convs))
	for _, c := range convs {
		items = append(items, conversationItem{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ident, err := s.resolveIdentity(r, q.Get("tenant_id"), q.Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	client, err := s.providers(ident.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	msgs, err := client.ListMessages(r.Context(), conversationID, ident.ProviderUser())
	if err != nil {
		writeError(w, r, provider.Translate(err))
		return
	}

	items := make([]messageItem, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = "user"
		}
		content := ""
		if m.Content != nil {
			content = *m.Content
		}
		items = append(items, messageItem{ID: m.ID, Role: role, Content: content, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ident, err := s.resolveIdentity(r, q.Get("tenant_id"), q.Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	client, err := s.providers(ident.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	if err := client.DeleteConversation(r.Context(), conversationID, ident.ProviderUser()); err != nil {
		writeError(w, r, provider.Translate(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.VerifySharedKey(r.Header.Get("X-API-Key")); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.engine.SyncAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncMe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, domain.ErrBadRequest("token required"))
		return
	}
	ident, err := s.verifier.VerifyToken(token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	AddLogField(r.Context(), "tenant_id", ident.TenantID)
	AddLogField(r.Context(), "user_id", ident.UserID)

	if err := s.engine.RegisterTrackedUser(r.Context(), ident); err != nil {
		AddLogField(r.Context(), "tracked_user_error", err.Error())
	}

	result, err := s.engine.SyncUser(r.Context(), storage.SyncTarget{
		TenantID:     ident.TenantID,
		UserID:       ident.UserID,
		ProviderUser: ident.ProviderUser(),
	})
	if err != nil {
		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) {
			err = domain.ErrUpstreamUnavailable(err.Error())
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"conversations_synced": result.Conversations,
		"messages_synced":      result.Messages,
	})
}

func (s *Server) handleChatToken(w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.VerifySharedKey(r.Header.Get("X-API-Key")); err != nil {
		writeError(w, r, err)
		return
	}
	if err := identity.CheckOrigin(r, s.cfg.TokenOriginsList()); err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		writeError(w, r, domain.ErrBadRequest("tenant_id required"))
		return
	}
	userID := q.Get("user_id")
	if userID == "" {
		userID = "12345"
	}
	if err := s.verifier.CheckTenantAllowed(tenantID); err != nil {
		writeError(w, r, err)
		return
	}

	ident := identity.Identity{TenantID: tenantID, UserID: userID}
	token, err := s.verifier.IssueUserToken(ident, identity.UserTokenTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Page-visit signal: embed-only users become sync targets here even
	// if they never complete a chat.
	if err := s.engine.RegisterTrackedUser(r.Context(), ident); err != nil {
		AddLogField(r.Context(), "tracked_user_error", err.Error())
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tenants": s.resolver.StatusByTenant()})
}

type cachedConversationItem struct {
	ConversationID string     `json:"conversation_id"`
	TenantID       string     `json:"tenant_id"`
	UserID         string     `json:"user_id"`
	Name           *string    `json:"name"`
	CreatedAt      *time.Time `json:"created_at"`
	SyncedAt       time.Time  `json:"synced_at"`
}

type cachedMessageItem struct {
	MessageID string     `json:"message_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at"`
}

// parseDate accepts YYYY-MM-DD (extra characters ignored); invalid input
// is treated as no filter.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func (s *Server) handleCachedConversations(w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.VerifySharedKey(r.Header.Get("X-API-Key")); err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := storage.ConversationFilter{
		TenantID: q.Get("tenant_id"),
		UserID:   q.Get("user_id"),
		From:     parseDate(q.Get("from_date")),
	}
	if to := parseDate(q.Get("to_date")); to != nil {
		end := to.Add(24*time.Hour - time.Microsecond)
		filter.To = &end
	}

	rows, err := s.store.ListCachedConversations(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]cachedConversationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, cachedConversationItem{
			ConversationID: row.ConversationID,
			TenantID:       row.TenantID,
			UserID:         row.UserID,
			Name:           row.Name,
			CreatedAt:      row.CreatedAt,
			SyncedAt:       row.SyncedAt,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCachedMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.VerifySharedKey(r.Header.Get("X-API-Key")); err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := s.store.ListCachedMessages(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]cachedMessageItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, cachedMessageItem{
			MessageID: row.MessageID,
			Role:      row.Role,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, items)
}
