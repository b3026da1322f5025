package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doohee323/chat-gateway/internal/domain"
)

func TestSendMessage(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat-messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer app-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			ConversationID: "conv-1",
			MessageID:      "msg-1",
			Answer:         "hello",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "app-key")
	resp, err := c.SendMessage(context.Background(), &ChatRequest{
		Query: "hi",
		User:  "acme_u1",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if resp.ConversationID != "conv-1" || resp.Answer != "hello" {
		t.Errorf("SendMessage() = %+v", resp)
	}
	if got.ResponseMode != "blocking" {
		t.Errorf("response_mode = %q, want blocking", got.ResponseMode)
	}
	if got.Inputs == nil {
		t.Error("inputs omitted, want empty object")
	}
}

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if user := r.URL.Query().Get("user"); user != "acme_u1" {
			t.Errorf("user = %q", user)
		}
		w.Write([]byte(`{"data":[{"id":"c1","name":"first","created_at":1700000000},{"id":"c2","name":null}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app-key")
	convs, err := c.ListConversations(context.Background(), "acme_u1")
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations", len(convs))
	}
	if convs[0].Name == nil || *convs[0].Name != "first" || convs[0].CreatedAt == nil {
		t.Errorf("convs[0] = %+v", convs[0])
	}
	if convs[1].Name != nil || convs[1].CreatedAt != nil {
		t.Errorf("convs[1] = %+v, want absent fields as nil", convs[1])
	}
}

func TestListConversations_EmptyNeverNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app-key")
	convs, err := c.ListConversations(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if convs == nil {
		t.Error("ListConversations() = nil, want empty slice")
	}
}

func TestListMessages_QueryAndAnswerSides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("conversation_id") != "c1" || q.Get("user") != "acme_u1" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"data":[{"id":"m1","query":"q?","answer":"a.","created_at":1700000001},{"id":"m2","answer":"only answer"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app-key")
	msgs, err := c.ListMessages(context.Background(), "c1", "acme_u1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Query == nil || msgs[0].Answer == nil {
		t.Errorf("msgs[0] = %+v, want both sides", msgs[0])
	}
	if msgs[1].Query != nil || msgs[1].Answer == nil {
		t.Errorf("msgs[1] = %+v, want answer side only", msgs[1])
	}
}

func TestDeleteConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/conversations/c1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["user"] != "acme_u1" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app-key")
	if err := c.DeleteConversation(context.Background(), "c1", "acme_u1"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"not_found","message":"Conversation Not Exists."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app-key")
	_, err := c.ListMessages(context.Background(), "gone", "u")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Conversation Not Exists." {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestAPIError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app-key")
	_, err := c.ListConversations(context.Background(), "u")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "upstream exploded" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestTranslate(t *testing.T) {
	// Structured rejections relay the provider's status, capped.
	err := Translate(&APIError{StatusCode: 404, Message: "gone"})
	var domErr *domain.APIError
	if !errors.As(err, &domErr) {
		t.Fatalf("error = %v", err)
	}
	if domErr.Type != domain.ErrorTypeUpstreamRejected || domErr.HTTPStatusCode() != 404 {
		t.Errorf("translated = %+v (status %d)", domErr, domErr.HTTPStatusCode())
	}

	err = Translate(&APIError{StatusCode: 700, Message: "weird"})
	if !errors.As(err, &domErr) || domErr.HTTPStatusCode() != domain.MaxUpstreamStatus {
		t.Errorf("status = %d, want cap at %d", domErr.HTTPStatusCode(), domain.MaxUpstreamStatus)
	}

	// Transport failures are a 502.
	err = Translate(errors.New("dial tcp: connection refused"))
	if !errors.As(err, &domErr) || domErr.Type != domain.ErrorTypeUpstreamUnavailable {
		t.Errorf("translated = %v, want upstream_unavailable", err)
	}

	if Translate(nil) != nil {
		t.Error("Translate(nil) != nil")
	}
}

func TestTranslate_Transport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, "app-key")
	_, err := c.ListConversations(context.Background(), "u")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var domErr *domain.APIError
	if !errors.As(Translate(err), &domErr) || domErr.Type != domain.ErrorTypeUpstreamUnavailable {
		t.Errorf("Translate() = %v, want upstream_unavailable", Translate(err))
	}
}
