// Package provider is a stateless HTTP client for the upstream
// conversational-AI API. One Client is built per resolved tenant config;
// all calls are keyed by the composite provider user identifier.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doohee323/chat-gateway/internal/domain"
)

const (
	// chatTimeout bounds a blocking send-message call; generation is slow.
	chatTimeout = 60 * time.Second

	// callTimeout bounds list and delete calls.
	callTimeout = 30 * time.Second

	// maxErrorBody limits how much of an error response body is kept.
	maxErrorBody = 500
)

// APIError is a structured non-2xx response from the provider. It keeps
// the upstream status so callers can relay it.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Translate maps a client error into the gateway's error taxonomy: a
// structured rejection relays the provider's status (capped), anything
// else is a transport failure.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return domain.ErrUpstreamRejected(apiErr.StatusCode, apiErr.Message)
	}
	return domain.ErrUpstreamUnavailable("chat service temporarily unavailable. Please try again.")
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger for upstream error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to one tenant's provider endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given provider base URL and API key.
// The versioned API prefix is appended here, not by callers.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/v1",
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage sends a blocking chat message. The response mode is always
// blocking; streaming is not supported.
func (c *Client) SendMessage(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	body := *req
	body.ResponseMode = "blocking"
	if body.Inputs == nil {
		body.Inputs = map[string]any{}
	}

	var result ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/chat-messages", &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListConversations lists the provider's conversations for a user. The
// result is never nil.
func (c *Client) ListConversations(ctx context.Context, user string) ([]Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	u := c.baseURL + "/conversations?" + url.Values{"user": {user}}.Encode()
	var envelope listEnvelope[Conversation]
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return []Conversation{}, nil
	}
	return envelope.Data, nil
}

// ListMessages lists a conversation's messages for a user. The result is
// never nil.
func (c *Client) ListMessages(ctx context.Context, conversationID, user string) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := url.Values{"conversation_id": {conversationID}, "user": {user}}
	var envelope listEnvelope[Message]
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/messages?"+params.Encode(), nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return []Message{}, nil
	}
	return envelope.Data, nil
}

// DeleteConversation removes a conversation at the provider. The user is
// carried in the request body, as the upstream API expects.
func (c *Client) DeleteConversation(ctx context.Context, conversationID, user string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	u := c.baseURL + "/conversations/" + url.PathEscape(conversationID)
	return c.doJSON(ctx, http.MethodDelete, u, map[string]string{"user": user}, nil)
}

// doJSON sends one request and decodes the response into out (when out is
// non-nil). Non-2xx responses become *APIError; transport failures are
// returned wrapped.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseErrorBody(resp.StatusCode, respBody)
		c.logger.Warn("provider API error",
			slog.String("method", method),
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode),
			slog.String("body", apiErr.Message),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func parseErrorBody(statusCode int, body []byte) *APIError {
	var parsed struct {
		Message string `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		message = parsed.Message
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > maxErrorBody {
			message = message[:maxErrorBody]
		}
	}
	return &APIError{StatusCode: statusCode, Message: message}
}
