package chat

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is the provider-neutral completion request
type Request struct {
	Messages         []Message
	Model            string
	Temperature      *float32        // optional temperature
	PresencePenalty  *float32        // optional presence penalty
	FrequencyPenalty *float32        // optional frequency penalty
	MaxTokens        *int            // optional max tokens
	ResponseFormat   *ResponseFormat // optional response format
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type   string          `json:"type"` // "text", "json_object" or "json_schema"
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Result is the provider-neutral completion result
type Result struct {
	Message      Message
	Model        string
	FinishReason string
	Usage        Usage
}

// Provider performs a single chat completion.
type Provider interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

// ProviderFactory returns a provider bound to one tenant's credential.
type ProviderFactory interface {
	ForAPIKey(apiKey string) (Provider, error)
}

func float32Ptr(v float32) *float32 { return &v }

func intPtr(v int) *int { return &v }
