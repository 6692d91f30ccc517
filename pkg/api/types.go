package api

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// MessageRole identifies the sender of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is a single entry in the conversation. For role "assistant"
// the message may carry ToolCalls instead of (or alongside) text content;
// for role "tool" it carries the result for a prior call, correlated via
// ToolCallID.
type ChatMessage struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content,omitempty"`
	Name       string      `json:"name,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Tool definitions and calls
// ---------------------------------------------------------------------------

// ToolDefinition declares a function the model may invoke.
// Type is always "function" on this surface.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef holds the function name, description, and JSON-Schema
// parameter declaration. Parameters must be an object schema.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a formatted tool invocation as it appears in an assistant
// message's tool_calls array.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the invoked function name and its arguments as
// canonical compact JSON text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ---------------------------------------------------------------------------
// Tool choice
// ---------------------------------------------------------------------------

// ToolChoice represents a tool selection directive. On the wire it is
// either a string ("auto", "none") or a structured function selection
// ({"type": "function", "function": {"name": ...}}).
type ToolChoice struct {
	String   string              `json:"-"`
	Function *ToolChoiceFunction `json:"-"`
}

// ToolChoiceFunction pins the turn to one named function.
type ToolChoiceFunction struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

var (
	// ToolChoiceAuto lets the model decide whether to invoke tools.
	ToolChoiceAuto = ToolChoice{String: "auto"}
	// ToolChoiceNone suppresses tool use for the turn.
	ToolChoiceNone = ToolChoice{String: "none"}
)

// NewToolChoiceFunction creates a ToolChoice pinned to the named function.
func NewToolChoiceFunction(name string) ToolChoice {
	f := &ToolChoiceFunction{Type: "function"}
	f.Function.Name = name
	return ToolChoice{Function: f}
}

// PinnedName returns the pinned function name, or "" if the choice is not
// a function selection.
func (tc ToolChoice) PinnedName() string {
	if tc.Function != nil {
		return tc.Function.Function.Name
	}
	return ""
}

// MarshalJSON serializes ToolChoice as either a JSON string or an object.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.String != "" {
		return json.Marshal(tc.String)
	}
	if tc.Function != nil {
		return json.Marshal(tc.Function)
	}
	return nil, fmt.Errorf("ToolChoice has neither string value nor function")
}

// UnmarshalJSON deserializes ToolChoice from either a JSON string or an object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	// Try string first.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.String = s
		tc.Function = nil
		return nil
	}

	var f ToolChoiceFunction
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("tool_choice must be a string or object: %w", err)
	}
	tc.String = ""
	tc.Function = &f
	return nil
}

// ---------------------------------------------------------------------------
// Request and response
// ---------------------------------------------------------------------------

// ChatCompletionRequest is the request body for POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model             string           `json:"model"`
	Messages          []ChatMessage    `json:"messages"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
	ToolChoice        *ToolChoice      `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls,omitempty"`
	Stream            bool             `json:"stream,omitempty"`
	StreamOptions     *StreamOptions   `json:"stream_options,omitempty"`
	MaxTokens         *int             `json:"max_tokens,omitempty"`
	Temperature       *float64         `json:"temperature,omitempty"`
	TopP              *float64         `json:"top_p,omitempty"`
	Stop              []string         `json:"stop,omitempty"`
	User              string           `json:"user,omitempty"`

	// SessionID correlates requests belonging to one conversation so
	// tool-call state survives across turns. Falls back to User when empty.
	SessionID string `json:"session_id,omitempty"`
}

// Session returns the effective session key for the request.
func (r *ChatCompletionRequest) Session() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.User
}

// StreamOptions controls streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// FinishReason explains why the model stopped producing output.
type FinishReason string

const (
	// FinishReasonStop is a plain-text completion.
	FinishReasonStop FinishReason = "stop"
	// FinishReasonToolCalls marks a turn that requests tool invocation.
	FinishReasonToolCalls FinishReason = "tool_calls"
	// FinishReasonLength marks output truncated by the token budget.
	FinishReasonLength FinishReason = "length"
)

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is a single completion alternative. The bridge always produces
// exactly one choice at index 0.
type Choice struct {
	Index        int          `json:"index"`
	Message      ChatMessage  `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Usage holds token accounting for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelInfo describes a model served through the bridge.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the response body for GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
