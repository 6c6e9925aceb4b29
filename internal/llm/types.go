// Package llm provides the completion-service client.
package llm

import "context"

// Message represents a chat message exchanged with the completion service.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall is a single tool invocation requested by the model.
// Arguments use proper Go types — wire format conversion (the
// OpenAI-style JSON-string encoding) happens at the provider boundary
// in groq.go.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the provider-neutral response to a chat request.
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage (when reported)
	InputTokens  int
	OutputTokens int
}

// Client is the completion-service contract consumed by the agent loop:
// full message history plus a tool catalog in, either plain assistant
// text or a set of tool calls out.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
