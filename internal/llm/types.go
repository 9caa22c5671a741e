package llm

import (
	"context"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FunctionCall is a single tool invocation requested by the model.
// IDs are unique within a turn; see NormalizeFunctionCallIDs.
type FunctionCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// FunctionResponse answers exactly one FunctionCall. Execution failures are
// carried inside Content under an "error" key, never as a Go error.
type FunctionResponse struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Content map[string]any `json:"content"`
}

// IsError reports whether the response payload carries an error marker.
func (r *FunctionResponse) IsError() bool {
	if r == nil || r.Content == nil {
		return false
	}
	_, ok := r.Content["error"]
	return ok
}

// Message represents a conversation message. Messages are immutable once
// appended to a session; the conversation is an append-only sequence.
type Message struct {
	ID                string             `json:"id"`
	Role              Role               `json:"role"`
	Content           string             `json:"content,omitempty"`
	FunctionCalls     []FunctionCall     `json:"function_calls,omitempty"`
	FunctionResponses []FunctionResponse `json:"function_responses,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// ToolSchema describes one callable function as advertised to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Messages     []*Message   `json:"messages"`
	Tools        []ToolSchema `json:"tools,omitempty"`
	Temperature  float64      `json:"temperature"`
	MaxTokens    int          `json:"max_tokens,omitempty"`
	TopP         float64      `json:"top_p,omitempty"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content       string         `json:"content"`
	FunctionCalls []FunctionCall `json:"function_calls,omitempty"`
	StopReason    string         `json:"stop_reason"`
	Usage         map[string]any `json:"usage,omitempty"`
}

// Client is the interface for LLM provider adapters. One call performs
// exactly one network exchange; retry policy, tool execution and session
// mutation all live above this layer.
type Client interface {
	// CompleteWithRequest sends a completion request and returns the response
	CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// Stream sends a streaming completion request
	Stream(ctx context.Context, req *CompletionRequest, callback func(chunk string) error) error
	// GetModelName returns the model name
	GetModelName() string
}
