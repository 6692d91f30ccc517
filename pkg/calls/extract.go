package calls

import (
	"encoding/json"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/schema"
)

// ToolCall is one extracted tool invocation. It is created here, owned
// by the session tracker once recorded, and referenced elsewhere by ID.
type ToolCall struct {
	// ID is unique within the process lifetime ("call_" prefixed).
	ID string

	// Name is the invoked tool's name.
	Name string

	// RawArgs is the argument payload exactly as the model produced it.
	RawArgs json.RawMessage

	// Args is the parsed argument object. Nil when the payload was
	// malformed; see Invalid.
	Args map[string]any

	// TurnIndex is the model turn the call originated from.
	TurnIndex int

	// CreatedAt is the extraction timestamp.
	CreatedAt time.Time

	// Invalid carries a terminal tool_call_error when the arguments
	// failed to parse or violated the declared schema. An invalid call
	// is never dispatched; it resolves directly to an error result.
	Invalid *api.APIError
}

// Extract parses tool_use blocks out of model output in block order.
// Each call gets a fresh id. Malformed or schema-violating arguments
// mark that call invalid without affecting siblings or the turn; the
// tools set may be nil to skip schema validation.
func Extract(blocks []native.ContentBlock, turnIndex int, tools *schema.Set) []ToolCall {
	var out []ToolCall
	for _, block := range blocks {
		call, ok := ExtractOne(block, api.NewCallID(), turnIndex, tools)
		if !ok {
			continue
		}
		out = append(out, call)
	}
	return out
}

// ExtractOne builds a ToolCall from a single block under a caller
// supplied id. Streaming extraction assigns ids when a tool_use block
// opens, before its arguments finish arriving, and uses this to finish
// the call once the block completes. Returns false for non tool_use
// blocks.
func ExtractOne(block native.ContentBlock, id string, turnIndex int, tools *schema.Set) (ToolCall, bool) {
	name, rawArgs, err := schema.FromNativeCall(block)
	if err != nil {
		return ToolCall{}, false
	}

	call := ToolCall{
		ID:        id,
		Name:      name,
		RawArgs:   rawArgs,
		TurnIndex: turnIndex,
		CreatedAt: time.Now(),
	}

	var parsed map[string]any
	if jsonErr := json.Unmarshal(rawArgs, &parsed); jsonErr != nil {
		call.Invalid = &api.APIError{
			Type:    api.ErrorTypeModelError,
			Code:    api.CodeToolCallError,
			Param:   name,
			Message: "tool arguments are not a valid JSON object",
		}
	} else {
		call.Args = parsed
		if tools != nil {
			call.Invalid = tools.ValidateArgs(name, rawArgs)
		}
	}
	return call, true
}

// Names returns the tool names of the calls in extraction order.
func Names(toolCalls []ToolCall) []string {
	if len(toolCalls) == 0 {
		return nil
	}
	out := make([]string, len(toolCalls))
	for i, c := range toolCalls {
		out[i] = c.Name
	}
	return out
}
