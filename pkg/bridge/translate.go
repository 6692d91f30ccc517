package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/native"
)

// TranslateMessages converts the external chat transcript into the
// native system prompt and message list.
//
// System messages concatenate into one prompt. An assistant message's
// tool_calls become tool_use blocks following its text. Tool-role
// messages become tool_result blocks; consecutive tool messages fold
// into a single user message, which is how the native protocol expects
// results to be re-injected.
func TranslateMessages(msgs []api.ChatMessage) (string, []native.Message, *api.APIError) {
	var systemParts []string
	var out []native.Message

	flushResults := func(results []native.ContentBlock) {
		if len(results) > 0 {
			out = append(out, native.Message{Role: "user", Content: results})
		}
	}

	var pendingResults []native.ContentBlock
	for i, m := range msgs {
		param := fmt.Sprintf("messages[%d]", i)

		if m.Role != api.RoleTool {
			flushResults(pendingResults)
			pendingResults = nil
		}

		switch m.Role {
		case api.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}

		case api.RoleUser:
			out = append(out, native.Message{
				Role:    "user",
				Content: []native.ContentBlock{{Type: native.BlockTypeText, Text: m.Content}},
			})

		case api.RoleAssistant:
			var blocks []native.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, native.ContentBlock{Type: native.BlockTypeText, Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, native.ContentBlock{
					Type:  native.BlockTypeToolUse,
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, native.ContentBlock{Type: native.BlockTypeText, Text: ""})
			}
			out = append(out, native.Message{Role: "assistant", Content: blocks})

		case api.RoleTool:
			if m.ToolCallID == "" {
				return "", nil, api.NewInvalidRequestError(param+".tool_call_id",
					"tool message requires tool_call_id")
			}
			pendingResults = append(pendingResults, native.ContentBlock{
				Type:      native.BlockTypeToolResult,
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			})

		default:
			return "", nil, api.NewInvalidRequestError(param+".role",
				fmt.Sprintf("unsupported role %q", m.Role))
		}
	}
	flushResults(pendingResults)

	return strings.Join(systemParts, "\n\n"), out, nil
}

// toolResultIDs returns the tool_call_ids carried by tool-role messages,
// in message order.
func toolResultIDs(msgs []api.ChatMessage) []string {
	var ids []string
	for _, m := range msgs {
		if m.Role == api.RoleTool && m.ToolCallID != "" {
			ids = append(ids, m.ToolCallID)
		}
	}
	return ids
}

// isResultOnly reports whether the transcript carries nothing but tool
// results (and optionally system prompts). Such a request continues a
// prior turn, so the stored history is needed to rebuild context.
func isResultOnly(msgs []api.ChatMessage) bool {
	sawTool := false
	for _, m := range msgs {
		switch m.Role {
		case api.RoleTool:
			sawTool = true
		case api.RoleSystem:
		default:
			return false
		}
	}
	return sawTool
}
