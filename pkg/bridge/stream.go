package bridge

import (
	"context"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
	"github.com/bruecke-dev/bruecke/pkg/exec"
	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/observability"
	"github.com/bruecke-dev/bruecke/pkg/schema"
	"github.com/bruecke-dev/bruecke/pkg/stream"
)

// CompleteStream handles a streaming request. Text and tool-call
// argument fragments forward to the client as they arrive from the
// backend; handled calls execute server-side with per-call result
// chunks, unhandled calls surface as a tool_calls turn. An error before
// the first chunk returns without touching the writer so the transport
// can respond with a plain HTTP error.
func (b *Bridge) CompleteStream(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError {
	st, apiErr := b.prepare(ctx, req)
	if apiErr != nil {
		return apiErr
	}

	completionID := api.NewCompletionID()
	var co *stream.Coordinator
	var usage api.Usage
	callIndex := 0 // monotonic across turns so chunk indexes never collide

	finish := func(reason api.FinishReason) *api.APIError {
		var u *api.Usage
		if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			u = &usage
		}
		if err := co.Finish(reason, u); err != nil {
			return api.NewServerError("client stream closed: " + err.Error())
		}
		return nil
	}

	for turn := 0; turn < b.cfg.MaxTurns; turn++ {
		if ctx.Err() != nil {
			b.tracker.CancelOutstanding(st.sessionID, turn)
			if co != nil {
				finish(api.FinishReasonStop)
			}
			return api.NewServerError("request cancelled")
		}

		st.policy.Shape(st.nativeReq, st.tools)

		backend := b.client.Name()
		start := time.Now()
		events, err := b.client.Stream(ctx, st.nativeReq)
		if err != nil {
			observability.ModelRequestsTotal.WithLabelValues(backend, req.Model, "error").Inc()
			if co != nil {
				finish(api.FinishReasonStop)
			}
			return asAPIError(err)
		}
		if co == nil {
			co = stream.NewCoordinator(completionID, req.Model, w)
		}

		turnCalls, chans, blocks, stopReason, streamErr := b.consumeStreamTurn(
			st, co, events, turn, &callIndex, &usage)

		observability.ModelLatency.WithLabelValues(backend, req.Model).Observe(time.Since(start).Seconds())
		if streamErr != nil {
			observability.ModelRequestsTotal.WithLabelValues(backend, req.Model, "error").Inc()
			finish(api.FinishReasonStop)
			return asAPIError(streamErr)
		}
		observability.ModelRequestsTotal.WithLabelValues(backend, req.Model, "success").Inc()

		if apiErr := st.policy.Enforce(calls.Names(turnCalls)); apiErr != nil {
			for _, ch := range chans {
				ch <- stream.CallEvent{Kind: stream.KindError, Status: "failed", Err: apiErr}
				close(ch)
			}
			observability.BridgeTurnsTotal.WithLabelValues("choice_violation").Inc()
			finish(api.FinishReasonStop)
			return apiErr
		}
		b.tracker.Track(st.sessionID, turnCalls)

		if len(turnCalls) == 0 {
			reason := api.FinishReasonStop
			if stopReason == native.StopReasonMaxTokens {
				reason = api.FinishReasonLength
			}
			observability.BridgeTurnsTotal.WithLabelValues(string(reason)).Inc()
			return finish(reason)
		}

		blocks = RewriteToolUseIDs(blocks, turnCalls)

		if !b.allExecutable(turnCalls) {
			// Arguments already streamed; the calls now surface for the
			// client to execute.
			for _, ch := range chans {
				close(ch)
			}
			b.appendTurn(ctx, st, native.Message{Role: "assistant", Content: blocks})
			observability.BridgeTurnsTotal.WithLabelValues("surfaced").Inc()
			return finish(api.FinishReasonToolCalls)
		}

		// Server-side execution, emitting each call's result chunk from
		// the worker that produced it. Each channel is owned by exactly
		// one call, so the callback needs no locking.
		onResult := func(_ int, r exec.Result) {
			ch, ok := chans[r.CallID]
			if !ok {
				return
			}
			if r.Outcome == exec.OutcomeSuccess {
				ch <- stream.CallEvent{
					Kind:      stream.KindResult,
					Status:    string(r.State),
					Output:    r.Payload,
					Truncated: r.Truncated,
				}
			} else {
				ch <- stream.CallEvent{Kind: stream.KindError, Status: string(r.State), Err: r.Err}
			}
			close(ch)
		}
		results := b.execute(ctx, st, turnCalls, onResult)
		resultBlocks := Integrate(turnCalls, results, b.logger)

		b.appendTurn(ctx, st,
			native.Message{Role: "assistant", Content: blocks},
			native.Message{Role: "user", Content: resultBlocks},
		)
		observability.BridgeTurnsTotal.WithLabelValues("executed").Inc()

		if st.policy.Mode == schema.ModePinned {
			st.policy = schema.ExecutionPolicy{Mode: schema.ModeAuto}
		}
	}

	b.logger.Warn("turn budget exhausted", "session_id", st.sessionID, "max_turns", b.cfg.MaxTurns)
	observability.BridgeTurnsTotal.WithLabelValues("budget_exhausted").Inc()
	return finish(api.FinishReasonLength)
}

// openStreamCall tracks one tool_use block being streamed.
type openStreamCall struct {
	id string
	ch chan<- stream.CallEvent
}

// consumeStreamTurn drains one backend stream, forwarding text and
// argument fragments through the coordinator and finalizing each
// tool_use block into an extracted call. The returned channel map (call
// id to its open event channel) stays open for result delivery; on a
// stream error every open channel has been terminated already.
func (b *Bridge) consumeStreamTurn(
	st *turnState,
	co *stream.Coordinator,
	events <-chan native.Event,
	turn int,
	callIndex *int,
	usage *api.Usage,
) (turnCalls []calls.ToolCall, chans map[string]chan<- stream.CallEvent, blocks []native.ContentBlock, stopReason native.StopReason, streamErr error) {
	open := make(map[int]*openStreamCall)
	skipped := make(map[int]bool)
	chans = make(map[string]chan<- stream.CallEvent)
	stopReason = native.StopReasonEndTurn

	for ev := range events {
		switch ev.Type {
		case native.EventTextDelta:
			co.Text(ev.Delta)

		case native.EventToolUseStart:
			if st.policy.Mode == schema.ModeDisabled {
				b.logger.Warn("dropping tool_use block emitted under tool_choice=none",
					"tool", ev.ToolName)
				skipped[ev.BlockIndex] = true
				continue
			}
			id := api.NewCallID()
			open[ev.BlockIndex] = &openStreamCall{
				id: id,
				ch: co.OpenCall(*callIndex, id, ev.ToolName),
			}
			*callIndex++

		case native.EventInputJSONDelta:
			if oc := open[ev.BlockIndex]; oc != nil {
				oc.ch <- stream.CallEvent{Kind: stream.KindArgs, Fragment: ev.Delta}
			}

		case native.EventBlockDone:
			if ev.Block == nil || skipped[ev.BlockIndex] {
				continue
			}
			if ev.Block.Type != native.BlockTypeToolUse {
				blocks = append(blocks, *ev.Block)
				continue
			}
			oc := open[ev.BlockIndex]
			if oc == nil {
				continue
			}
			call, ok := calls.ExtractOne(*ev.Block, oc.id, turn, st.set)
			if !ok {
				close(oc.ch)
				delete(open, ev.BlockIndex)
				continue
			}
			turnCalls = append(turnCalls, call)
			chans[call.ID] = oc.ch
			oc.ch <- stream.CallEvent{Kind: stream.KindArgsDone}
			blocks = append(blocks, *ev.Block)
			delete(open, ev.BlockIndex)

		case native.EventDone:
			stopReason = ev.StopReason
			if ev.Usage != nil {
				usage.PromptTokens += ev.Usage.InputTokens
				usage.CompletionTokens += ev.Usage.OutputTokens
			}

		case native.EventError:
			streamErr = ev.Err
		}
	}

	if streamErr != nil {
		apiErr := asAPIError(streamErr)
		// Blocks that never completed terminate with the stream error.
		for _, oc := range open {
			oc.ch <- stream.CallEvent{Kind: stream.KindError, Status: "failed", Err: apiErr}
			close(oc.ch)
		}
		// Completed calls terminate too; they will never execute.
		for _, ch := range chans {
			ch <- stream.CallEvent{Kind: stream.KindError, Status: "failed", Err: apiErr}
			close(ch)
		}
		return nil, nil, nil, stopReason, streamErr
	}

	// A block opened but never finished means the backend stream was
	// truncated; treat its call as never extracted.
	for _, oc := range open {
		close(oc.ch)
	}

	return turnCalls, chans, blocks, stopReason, nil
}
