package native

import (
	"context"
	"encoding/json"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
)

// ContentBlock is one segment of a native message. Exactly the fields for
// its Type are populated:
//
//	text:        Text
//	tool_use:    ID, Name, Input
//	tool_result: ToolUseID, Content, IsError
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is a native conversation entry. Roles are "user" and
// "assistant"; system instructions travel in Request.System.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Tool is the native declaration of a callable tool. InputSchema is a
// JSON-Schema object describing the tool's input.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice constrains the model's tool use. Type "auto" permits zero or
// more invocations; Type "tool" pins the turn to the named tool. Tool-use
// suppression is expressed by omitting Tools from the request entirely,
// not by a choice value.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Request is the backend-facing request body.
type Request struct {
	Model         string      `json:"model"`
	System        string      `json:"system,omitempty"`
	Messages      []Message   `json:"messages"`
	Tools         []Tool      `json:"tools,omitempty"`
	ToolChoice    *ToolChoice `json:"tool_choice,omitempty"`
	MaxTokens     int         `json:"max_tokens"`
	Temperature   *float64    `json:"temperature,omitempty"`
	TopP          *float64    `json:"top_p,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
	Stream        bool        `json:"stream,omitempty"`
}

// StopReason explains why the model ended its turn.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage holds native token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the backend's complete non-streaming response.
type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta      EventType = iota // Incremental text content
	EventToolUseStart                    // A tool_use block opened (id + name known)
	EventInputJSONDelta                  // Incremental tool input JSON
	EventBlockDone                       // A content block completed (full block attached)
	EventDone                            // Turn finished (stop reason + usage)
	EventError                           // Stream error
)

// Event is a single streaming event from the backend.
type Event struct {
	// Type indicates what kind of event this is.
	Type EventType

	// BlockIndex identifies which content block this event relates to.
	BlockIndex int

	// Delta contains incremental text or input JSON data.
	Delta string

	// ToolUseID and ToolName are populated on EventToolUseStart.
	ToolUseID string
	ToolName  string

	// Block is the completed content block on EventBlockDone.
	Block *ContentBlock

	// StopReason and Usage are populated on EventDone.
	StopReason StopReason
	Usage      *Usage

	// Err is populated on EventError.
	Err error
}

// ModelInfo holds information about a model served by the backend.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Client abstracts the native model backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Client interface {
	// Name returns the backend identifier.
	Name() string

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// Event values and is closed by the client when the stream completes
	// or errors.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases client resources (HTTP connections).
	Close() error
}
