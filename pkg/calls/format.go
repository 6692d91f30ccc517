package calls

import (
	"encoding/json"

	"github.com/bruecke-dev/bruecke/pkg/api"
)

// CanonicalArgs returns the call's arguments as compact canonical JSON:
// the parsed object re-serialized with sorted keys and no whitespace.
// Malformed payloads are passed through raw so the client still sees
// what the model produced.
func CanonicalArgs(call ToolCall) string {
	if call.Args == nil {
		if len(call.RawArgs) == 0 {
			return "{}"
		}
		return string(call.RawArgs)
	}
	data, err := json.Marshal(call.Args)
	if err != nil {
		return string(call.RawArgs)
	}
	return string(data)
}

// Format serializes extracted calls into the external tool-call array,
// preserving extraction order, and returns the turn-level finish
// reason: tool_calls when at least one call is present, stop otherwise.
func Format(toolCalls []ToolCall) ([]api.ToolCall, api.FinishReason) {
	if len(toolCalls) == 0 {
		return nil, api.FinishReasonStop
	}
	out := make([]api.ToolCall, 0, len(toolCalls))
	for _, c := range toolCalls {
		tc := api.ToolCall{ID: c.ID, Type: "function"}
		tc.Function.Name = c.Name
		tc.Function.Arguments = CanonicalArgs(c)
		out = append(out, tc)
	}
	return out, api.FinishReasonToolCalls
}
