package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/native"
)

// chunkRecorder captures streamed chunks in write order.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks []*api.ChatCompletionChunk
}

func (r *chunkRecorder) WriteChunk(chunk *api.ChatCompletionChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *chunkRecorder) all() []*api.ChatCompletionChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

func (r *chunkRecorder) text() string {
	var b strings.Builder
	for _, ch := range r.all() {
		for _, choice := range ch.Choices {
			b.WriteString(choice.Delta.Content)
		}
	}
	return b.String()
}

func (r *chunkRecorder) finishReason() api.FinishReason {
	for _, ch := range r.all() {
		for _, choice := range ch.Choices {
			if choice.FinishReason != nil {
				return *choice.FinishReason
			}
		}
	}
	return ""
}

// toolUseStream scripts a backend stream emitting one tool_use block.
func toolUseStream(name, input string) []native.Event {
	half := len(input) / 2
	return []native.Event{
		{Type: native.EventToolUseStart, BlockIndex: 0, ToolUseID: "toolu_b", ToolName: name},
		{Type: native.EventInputJSONDelta, BlockIndex: 0, Delta: input[:half]},
		{Type: native.EventInputJSONDelta, BlockIndex: 0, Delta: input[half:]},
		{Type: native.EventBlockDone, BlockIndex: 0, Block: &native.ContentBlock{
			Type: native.BlockTypeToolUse, ID: "toolu_b", Name: name, Input: json.RawMessage(input),
		}},
		{Type: native.EventDone, StopReason: native.StopReasonToolUse,
			Usage: &native.Usage{InputTokens: 10, OutputTokens: 5}},
	}
}

func textStream(fragments ...string) []native.Event {
	var events []native.Event
	full := strings.Join(fragments, "")
	for _, f := range fragments {
		events = append(events, native.Event{Type: native.EventTextDelta, BlockIndex: 0, Delta: f})
	}
	events = append(events,
		native.Event{Type: native.EventBlockDone, BlockIndex: 0, Block: &native.ContentBlock{
			Type: native.BlockTypeText, Text: full,
		}},
		native.Event{Type: native.EventDone, StopReason: native.StopReasonEndTurn,
			Usage: &native.Usage{InputTokens: 10, OutputTokens: 5}},
	)
	return events
}

func TestCompleteStream_PlainText(t *testing.T) {
	f := newFixture(t)
	f.client.streams = [][]native.Event{textStream("Hel", "lo")}
	rec := &chunkRecorder{}

	if apiErr := f.bridge.CompleteStream(context.Background(), baseRequest(), rec); apiErr != nil {
		t.Fatalf("CompleteStream failed: %v", apiErr)
	}
	if rec.text() != "Hello" {
		t.Errorf("streamed text = %q", rec.text())
	}
	if rec.finishReason() != api.FinishReasonStop {
		t.Errorf("finish_reason = %s, want stop", rec.finishReason())
	}
	if rec.all()[0].Choices[0].Delta.Role != api.RoleAssistant {
		t.Error("first chunk must announce the assistant role")
	}
}

func TestCompleteStream_SurfacedCallStreamsArguments(t *testing.T) {
	f := newFixture(t) // no handler: the call surfaces
	f.client.streams = [][]native.Event{toolUseStream("get_weather", `{"city":"Bonn"}`)}
	rec := &chunkRecorder{}

	req := baseRequest(toolDef("get_weather"))
	req.Stream = true
	if apiErr := f.bridge.CompleteStream(context.Background(), req, rec); apiErr != nil {
		t.Fatalf("CompleteStream failed: %v", apiErr)
	}

	if rec.finishReason() != api.FinishReasonToolCalls {
		t.Errorf("finish_reason = %s, want tool_calls", rec.finishReason())
	}

	// The announcement chunk carries id, name, and type; argument
	// fragments follow in order and reassemble to the full payload.
	var announced bool
	var args strings.Builder
	for _, ch := range rec.all() {
		for _, choice := range ch.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				if tc.ID != "" {
					announced = true
					if tc.Function.Name != "get_weather" || tc.Type != "function" {
						t.Errorf("announcement = %+v", tc)
					}
					if !strings.HasPrefix(tc.ID, "call_") {
						t.Errorf("call id = %q, want bridge-assigned id", tc.ID)
					}
				}
				args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if !announced {
		t.Fatal("no announcement chunk")
	}
	if args.String() != `{"city":"Bonn"}` {
		t.Errorf("reassembled arguments = %q", args.String())
	}
}

func TestCompleteStream_ServerSideExecutionEmitsResultChunk(t *testing.T) {
	f := newFixture(t, echoHandler("search", "3 hits"))
	f.client.streams = [][]native.Event{
		toolUseStream("search", `{"q":"go"}`),
		textStream("found them"),
	}
	rec := &chunkRecorder{}

	if apiErr := f.bridge.CompleteStream(context.Background(), baseRequest(toolDef("search")), rec); apiErr != nil {
		t.Fatalf("CompleteStream failed: %v", apiErr)
	}

	var sawArgsDone, sawResult bool
	for _, ch := range rec.all() {
		for _, choice := range ch.Choices {
			for _, te := range choice.Delta.ToolEvents {
				switch te.Status {
				case "arguments_done":
					sawArgsDone = true
				case "completed":
					sawResult = true
					if te.Output != "3 hits" {
						t.Errorf("result output = %q", te.Output)
					}
				}
			}
		}
	}
	if !sawArgsDone || !sawResult {
		t.Errorf("argsDone=%v result=%v, want both", sawArgsDone, sawResult)
	}
	if rec.text() != "found them" {
		t.Errorf("final text = %q", rec.text())
	}
	if rec.finishReason() != api.FinishReasonStop {
		t.Errorf("finish_reason = %s, want stop", rec.finishReason())
	}
}

func TestCompleteStream_IncludeUsage(t *testing.T) {
	f := newFixture(t)
	f.client.streams = [][]native.Event{textStream("hi")}
	rec := &chunkRecorder{}

	req := baseRequest()
	req.StreamOptions = &api.StreamOptions{IncludeUsage: true}
	if apiErr := f.bridge.CompleteStream(context.Background(), req, rec); apiErr != nil {
		t.Fatalf("CompleteStream failed: %v", apiErr)
	}

	chunks := rec.all()
	final := chunks[len(chunks)-1]
	if final.Usage == nil || final.Usage.TotalTokens != 15 {
		t.Errorf("final usage = %+v, want 15 total", final.Usage)
	}
}

func TestCompleteStream_PreStreamErrorLeavesWriterUntouched(t *testing.T) {
	f := newFixture(t)
	bad := toolDef("x")
	bad.Function.Parameters = json.RawMessage(`not json`)
	rec := &chunkRecorder{}

	req := baseRequest(bad)
	apiErr := f.bridge.CompleteStream(context.Background(), req, rec)
	if apiErr == nil {
		t.Fatal("invalid schema accepted")
	}
	if len(rec.all()) != 0 {
		t.Error("chunks written before validation completed")
	}
}

func TestCompleteStream_CallIndexesDistinctAcrossTurns(t *testing.T) {
	f := newFixture(t, echoHandler("step", "ok"))
	f.client.streams = [][]native.Event{
		toolUseStream("step", `{"n":1}`),
		toolUseStream("step", `{"n":2}`),
		textStream("done"),
	}
	rec := &chunkRecorder{}

	if apiErr := f.bridge.CompleteStream(context.Background(), baseRequest(toolDef("step")), rec); apiErr != nil {
		t.Fatalf("CompleteStream failed: %v", apiErr)
	}

	indexes := map[int]bool{}
	for _, ch := range rec.all() {
		for _, choice := range ch.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				if tc.ID != "" {
					if indexes[tc.Index] {
						t.Errorf("call index %d reused across turns", tc.Index)
					}
					indexes[tc.Index] = true
				}
			}
		}
	}
	if len(indexes) != 2 {
		t.Errorf("announced calls = %d, want 2", len(indexes))
	}
}
