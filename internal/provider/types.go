package provider

// ChatRequest is the blocking send-message request body.
type ChatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// ChatResponse is the provider's answer to a blocking chat message.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Answer         string         `json:"answer"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Conversation is one entry from the provider's conversation list.
// CreatedAt is a Unix timestamp; the provider may omit it.
type Conversation struct {
	ID        string  `json:"id"`
	Name      *string `json:"name"`
	CreatedAt *int64  `json:"created_at"`
}

// Message is one entry from the provider's message list. A single entry
// can carry both the user's query and the assistant's answer; either side
// may be absent. Role and Content are populated instead on providers that
// return messages one side at a time.
type Message struct {
	ID        string  `json:"id"`
	Role      string  `json:"role,omitempty"`
	Content   *string `json:"content,omitempty"`
	Query     *string `json:"query,omitempty"`
	Answer    *string `json:"answer,omitempty"`
	CreatedAt *int64  `json:"created_at"`
}

// listEnvelope is the provider's wrapper around list results.
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}
