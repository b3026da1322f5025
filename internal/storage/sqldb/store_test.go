package sqldb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doohee323/chat-gateway/internal/storage"
)

var memdbSeq int

func newTestStore(t *testing.T) *Store {
	t.Helper()
	memdbSeq++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", memdbSeq)
	store, err := New(Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strptr(s string) *string { return &s }

func TestTenantCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tn := &storage.Tenant{
		TenantID:        "drillquiz",
		DisplayName:     "DrillQuiz",
		ProviderBaseURL: "https://dify.example.com",
		ProviderAPIKey:  "app-key",
		Enabled:         true,
		Owner:           strptr("admin1"),
	}
	if err := store.CreateTenant(ctx, tn); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	if err := store.CreateTenant(ctx, &storage.Tenant{TenantID: "drillquiz", Enabled: true}); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate CreateTenant() error = %v, want ErrDuplicate", err)
	}

	got, err := store.GetTenant(ctx, "drillquiz")
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if got.DisplayName != "DrillQuiz" || !got.Enabled {
		t.Errorf("GetTenant() = %+v", got)
	}

	got.ProviderAPIKey = "rotated"
	if err := store.UpdateTenant(ctx, got); err != nil {
		t.Fatalf("UpdateTenant() error = %v", err)
	}
	got, _ = store.GetTenant(ctx, "drillquiz")
	if got.ProviderAPIKey != "rotated" {
		t.Errorf("ProviderAPIKey = %q after update", got.ProviderAPIKey)
	}

	if err := store.DeleteTenant(ctx, "drillquiz"); err != nil {
		t.Fatalf("DeleteTenant() error = %v", err)
	}
	if _, err := store.GetTenant(ctx, "drillquiz"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTenant() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteTenant(ctx, "drillquiz"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteTenant() twice error = %v, want ErrNotFound", err)
	}
}

func TestListTenants_OwnerAndLegacy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []*storage.Tenant{
		{TenantID: "legacy", Enabled: true},
		{TenantID: "mine", Enabled: true, Owner: strptr("admin1")},
		{TenantID: "theirs", Enabled: true, Owner: strptr("admin2")},
		{TenantID: "disabled", Enabled: false, Owner: strptr("admin1")},
	}
	for _, r := range rows {
		if err := store.CreateTenant(ctx, r); err != nil {
			t.Fatalf("CreateTenant(%s) error = %v", r.TenantID, err)
		}
	}

	mine, err := store.ListTenants(ctx, "admin1")
	if err != nil {
		t.Fatalf("ListTenants() error = %v", err)
	}
	ids := make([]string, len(mine))
	for i, r := range mine {
		ids[i] = r.TenantID
	}
	want := []string{"disabled", "legacy", "mine"}
	if len(ids) != len(want) {
		t.Fatalf("ListTenants() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListTenants()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	enabled, err := store.ListEnabledTenants(ctx)
	if err != nil {
		t.Fatalf("ListEnabledTenants() error = %v", err)
	}
	if len(enabled) != 3 {
		t.Errorf("ListEnabledTenants() returned %d rows, want 3", len(enabled))
	}
}

func TestUpsertConversation_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := time.Now().UTC().Add(-time.Minute)
	conv := &storage.CachedConversation{
		TenantID:       "acme",
		UserID:         "user42",
		ProviderUser:   "acme_user42",
		ConversationID: "conv-1",
		Name:           strptr("first"),
		SyncedAt:       first,
	}
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	conv.Name = strptr("renamed")
	conv.SyncedAt = time.Now().UTC()
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() second error = %v", err)
	}

	rows, err := store.ListCachedConversations(ctx, storage.ConversationFilter{TenantID: "acme"})
	if err != nil {
		t.Fatalf("ListCachedConversations() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("conversation rows = %d, want 1", len(rows))
	}
	if rows[0].Name == nil || *rows[0].Name != "renamed" {
		t.Errorf("Name = %v, want renamed", rows[0].Name)
	}
	if !rows[0].SyncedAt.After(first) {
		t.Errorf("SyncedAt = %v, want advanced past %v", rows[0].SyncedAt, first)
	}
}

func TestTouchConversation_KeepsName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConversation(ctx, &storage.CachedConversation{
		TenantID: "acme", UserID: "u", ProviderUser: "acme_u",
		ConversationID: "conv-2", Name: strptr("from-sync"), SyncedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	if err := store.TouchConversation(ctx, &storage.CachedConversation{
		TenantID: "acme", UserID: "u", ProviderUser: "acme_u",
		ConversationID: "conv-2", SyncedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("TouchConversation() error = %v", err)
	}

	rows, _ := store.ListCachedConversations(ctx, storage.ConversationFilter{TenantID: "acme"})
	if len(rows) != 1 {
		t.Fatalf("conversation rows = %d, want 1", len(rows))
	}
	if rows[0].Name == nil || *rows[0].Name != "from-sync" {
		t.Errorf("Name = %v, want from-sync preserved", rows[0].Name)
	}
}

func TestUpsertMessage_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := &storage.CachedMessage{
		ConversationID: "conv-3",
		MessageID:      "m1_user",
		Role:           "user",
		Content:        "hello",
		SyncedAt:       time.Now().UTC(),
	}
	for i := 0; i < 2; i++ {
		if err := store.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("UpsertMessage() #%d error = %v", i, err)
		}
	}

	rows, err := store.ListCachedMessages(ctx, "conv-3")
	if err != nil {
		t.Fatalf("ListCachedMessages() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("message rows = %d, want 1", len(rows))
	}
}

func TestUpsertMapping_InsertIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &storage.ConversationMapping{
		TenantID: "acme", UserID: "u", ProviderUser: "acme_u", ConversationID: "conv-4",
	}
	for i := 0; i < 2; i++ {
		if err := store.UpsertMapping(ctx, m); err != nil {
			t.Fatalf("UpsertMapping() #%d error = %v", i, err)
		}
	}

	targets, err := store.SyncTargets(ctx)
	if err != nil {
		t.Fatalf("SyncTargets() error = %v", err)
	}
	if len(targets) != 1 {
		t.Errorf("SyncTargets() = %v, want single triple", targets)
	}
}

func TestSyncTargets_UnionDedupes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Same triple in both tables, plus one tracked-only user.
	if err := store.UpsertMapping(ctx, &storage.ConversationMapping{
		TenantID: "acme", UserID: "u1", ProviderUser: "acme_u1", ConversationID: "c1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertTrackedUser(ctx, &storage.TrackedUser{
		TenantID: "acme", UserID: "u1", ProviderUser: "acme_u1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertTrackedUser(ctx, &storage.TrackedUser{
		TenantID: "acme", UserID: "embed-only", ProviderUser: "acme_embed-only",
	}); err != nil {
		t.Fatal(err)
	}

	targets, err := store.SyncTargets(ctx)
	if err != nil {
		t.Fatalf("SyncTargets() error = %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("SyncTargets() = %v, want 2 deduplicated triples", targets)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := store.InTx(ctx, func(tx storage.SyncStore) error {
		if err := tx.UpsertMessage(ctx, &storage.CachedMessage{
			ConversationID: "conv-5", MessageID: "m-tx", Role: "user", SyncedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("InTx() error = %v, want sentinel", err)
	}

	rows, _ := store.ListCachedMessages(ctx, "conv-5")
	if len(rows) != 0 {
		t.Errorf("message rows after rollback = %d, want 0", len(rows))
	}
}
