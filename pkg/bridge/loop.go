package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/observability"
	"github.com/bruecke-dev/bruecke/pkg/schema"
)

// Complete handles a non-streaming request: it runs the agentic loop
// against the backend, executing handled tool calls server-side and
// re-invoking the model, until the model produces a final answer, a
// call must surface to the client, or the turn budget runs out.
func (b *Bridge) Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, *api.APIError) {
	st, apiErr := b.prepare(ctx, req)
	if apiErr != nil {
		return nil, apiErr
	}

	completionID := api.NewCompletionID()
	var textParts []string
	var usage api.Usage

	for turn := 0; turn < b.cfg.MaxTurns; turn++ {
		if ctx.Err() != nil {
			b.tracker.CancelOutstanding(st.sessionID, turn)
			return nil, api.NewServerError("request cancelled")
		}

		st.policy.Shape(st.nativeReq, st.tools)

		start := time.Now()
		resp, err := b.client.Complete(ctx, st.nativeReq)
		backend := b.client.Name()
		observability.ModelLatency.WithLabelValues(backend, req.Model).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.ModelRequestsTotal.WithLabelValues(backend, req.Model, "error").Inc()
			return nil, asAPIError(err)
		}
		observability.ModelRequestsTotal.WithLabelValues(backend, req.Model, "success").Inc()
		observability.ModelTokensTotal.WithLabelValues(backend, req.Model, "input").Add(float64(resp.Usage.InputTokens))
		observability.ModelTokensTotal.WithLabelValues(backend, req.Model, "output").Add(float64(resp.Usage.OutputTokens))
		usage.PromptTokens += resp.Usage.InputTokens
		usage.CompletionTokens += resp.Usage.OutputTokens

		blocks := st.policy.FilterBlocks(resp.Content, b.logger)
		for _, blk := range blocks {
			if blk.Type == native.BlockTypeText && blk.Text != "" {
				textParts = append(textParts, blk.Text)
			}
		}

		turnCalls := calls.Extract(blocks, turn, st.set)
		if apiErr := st.policy.Enforce(calls.Names(turnCalls)); apiErr != nil {
			observability.BridgeTurnsTotal.WithLabelValues("choice_violation").Inc()
			return nil, apiErr
		}
		b.tracker.Track(st.sessionID, turnCalls)

		if len(turnCalls) == 0 {
			reason := api.FinishReasonStop
			if resp.StopReason == native.StopReasonMaxTokens {
				reason = api.FinishReasonLength
			}
			observability.BridgeTurnsTotal.WithLabelValues(string(reason)).Inc()
			return b.finalResponse(completionID, req.Model, textParts, nil, reason, usage), nil
		}

		blocks = RewriteToolUseIDs(blocks, turnCalls)

		if !b.allExecutable(turnCalls) {
			// At least one call has no registered handler: the whole turn
			// surfaces to the client as a tool_calls response. The
			// assistant turn is persisted so a result-only follow-up can
			// rebuild the conversation.
			b.appendTurn(ctx, st, native.Message{Role: "assistant", Content: blocks})
			formatted, reason := calls.Format(turnCalls)
			observability.BridgeTurnsTotal.WithLabelValues("surfaced").Inc()
			return b.finalResponse(completionID, req.Model, nil, formatted, reason, usage), nil
		}

		results := b.execute(ctx, st, turnCalls, nil)
		resultBlocks := Integrate(turnCalls, results, b.logger)

		b.appendTurn(ctx, st,
			native.Message{Role: "assistant", Content: blocks},
			native.Message{Role: "user", Content: resultBlocks},
		)
		observability.BridgeTurnsTotal.WithLabelValues("executed").Inc()

		// A pinned directive binds the first turn only; once satisfied
		// the loop continues under auto so the model can answer.
		if st.policy.Mode == schema.ModePinned {
			st.policy = schema.ExecutionPolicy{Mode: schema.ModeAuto}
		}
	}

	b.logger.Warn("turn budget exhausted", "session_id", st.sessionID, "max_turns", b.cfg.MaxTurns)
	observability.BridgeTurnsTotal.WithLabelValues("budget_exhausted").Inc()
	return b.finalResponse(completionID, req.Model, textParts, nil, api.FinishReasonLength, usage), nil
}

// allExecutable reports whether every call has a registered handler.
func (b *Bridge) allExecutable(turnCalls []calls.ToolCall) bool {
	for _, c := range turnCalls {
		if !b.engine.CanExecute(c.Name) {
			return false
		}
	}
	return true
}

// finalResponse assembles the single-choice external response. A
// tool_calls response carries no text content.
func (b *Bridge) finalResponse(completionID, model string, textParts []string, toolCalls []api.ToolCall, reason api.FinishReason, usage api.Usage) *api.ChatCompletionResponse {
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	msg := api.ChatMessage{Role: api.RoleAssistant}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	} else {
		msg.Content = strings.Join(textParts, "")
	}
	return &api.ChatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{{Index: 0, Message: msg, FinishReason: reason}},
		Usage:   &usage,
	}
}
