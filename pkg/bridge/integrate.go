package bridge

import (
	"fmt"
	"log/slog"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
	"github.com/bruecke-dev/bruecke/pkg/exec"
	"github.com/bruecke-dev/bruecke/pkg/native"
)

// Integrate converts one turn's execution results into tool_result
// blocks ordered by submission (extraction) order, regardless of the
// order executions completed in. Every call yields exactly one block: a
// call whose result went missing gets a synthesized tool_call_error
// block so the model never sees a dangling invocation.
func Integrate(turnCalls []calls.ToolCall, results []exec.Result, logger *slog.Logger) []native.ContentBlock {
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]*exec.Result, len(results))
	for i := range results {
		r := &results[i]
		if r.CallID == "" {
			continue
		}
		if _, dup := byID[r.CallID]; dup {
			logger.Warn("duplicate result for call, keeping first", "call_id", r.CallID)
			continue
		}
		byID[r.CallID] = r
	}

	blocks := make([]native.ContentBlock, 0, len(turnCalls))
	for _, call := range turnCalls {
		r, ok := byID[call.ID]
		if !ok {
			logger.Error("no result produced for call, synthesizing error",
				"call_id", call.ID, "tool", call.Name)
			blocks = append(blocks, errorBlock(call.ID, &api.APIError{
				Type:    api.ErrorTypeServerError,
				Code:    api.CodeToolCallError,
				Message: fmt.Sprintf("no result produced for tool %q", call.Name),
			}))
			continue
		}
		// Consume exactly once; a second reference to the same call would
		// be a caller bug surfaced by the duplicate check above.
		delete(byID, call.ID)

		blocks = append(blocks, resultBlock(call.ID, r))
	}
	return blocks
}

// RewriteToolUseIDs aligns transcript tool_use ids with the bridge's
// call ids. The backend assigns its own block ids; the bridge replaces
// them during extraction, so the transcript copy must carry the bridge
// ids for re-injected tool_result blocks to pair up. Tool_use blocks and
// calls correspond in block order.
func RewriteToolUseIDs(blocks []native.ContentBlock, turnCalls []calls.ToolCall) []native.ContentBlock {
	out := make([]native.ContentBlock, len(blocks))
	copy(out, blocks)
	i := 0
	for j := range out {
		if out[j].Type == native.BlockTypeToolUse && i < len(turnCalls) {
			out[j].ID = turnCalls[i].ID
			i++
		}
	}
	return out
}

func resultBlock(callID string, r *exec.Result) native.ContentBlock {
	if r.Outcome == exec.OutcomeSuccess {
		content := r.Payload
		if r.Truncated {
			content += "\n[output truncated]"
		}
		return native.ContentBlock{
			Type:      native.BlockTypeToolResult,
			ToolUseID: callID,
			Content:   content,
		}
	}
	return errorBlock(callID, r.Err)
}

func errorBlock(callID string, apiErr *api.APIError) native.ContentBlock {
	msg := "tool execution failed"
	if apiErr != nil {
		if apiErr.Code != "" {
			msg = fmt.Sprintf("tool execution failed (%s): %s", apiErr.Code, apiErr.Message)
		} else {
			msg = "tool execution failed: " + apiErr.Message
		}
	}
	return native.ContentBlock{
		Type:      native.BlockTypeToolResult,
		ToolUseID: callID,
		Content:   msg,
		IsError:   true,
	}
}
