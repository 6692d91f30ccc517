package native

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// wireEvent is the envelope of a single SSE data payload from the
// messages endpoint. Only the fields for the given type are populated.
type wireEvent struct {
	Type string `json:"type"`

	Index        int           `json:"index"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	Delta *wireDelta `json:"delta,omitempty"`

	Message *Response `json:"message,omitempty"`
	Usage   *Usage    `json:"usage,omitempty"`

	Error *wireError `json:"error,omitempty"`
}

type wireDelta struct {
	Type        string     `json:"type"`
	Text        string     `json:"text,omitempty"`
	PartialJSON string     `json:"partial_json,omitempty"`
	StopReason  StopReason `json:"stop_reason,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// blockAccumulator rebuilds a complete content block from start and delta
// events so that EventBlockDone can carry the finished block.
type blockAccumulator struct {
	block ContentBlock
	input strings.Builder
}

// parseSSEStream reads SSE lines from the backend and emits Events on ch.
// It accumulates partial tool input JSON per block index so that each
// tool_use block is delivered whole on EventBlockDone. Returns when the
// stream ends, an error occurs, or the context is cancelled.
func parseSSEStream(ctx context.Context, body io.Reader, ch chan<- Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	blocks := make(map[int]*blockAccumulator)
	var stopReason StopReason
	var usage *Usage

	emit := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "event:") || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev wireEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			emit(Event{Type: EventError, Err: fmt.Errorf("malformed stream event: %w", err)})
			return
		}

		switch ev.Type {
		case "message_start":
			// Carries the message shell; nothing to surface yet.

		case "content_block_start":
			if ev.ContentBlock == nil {
				continue
			}
			acc := &blockAccumulator{block: *ev.ContentBlock}
			// The start event ships an empty input object for tool_use
			// blocks; the real input arrives via input_json_delta.
			acc.block.Input = nil
			blocks[ev.Index] = acc
			if acc.block.Type == BlockTypeToolUse {
				if !emit(Event{
					Type:       EventToolUseStart,
					BlockIndex: ev.Index,
					ToolUseID:  acc.block.ID,
					ToolName:   acc.block.Name,
				}) {
					return
				}
			}

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			acc := blocks[ev.Index]
			switch ev.Delta.Type {
			case "text_delta":
				if acc != nil {
					acc.block.Text += ev.Delta.Text
				}
				if !emit(Event{Type: EventTextDelta, BlockIndex: ev.Index, Delta: ev.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if acc != nil {
					acc.input.WriteString(ev.Delta.PartialJSON)
				}
				if !emit(Event{Type: EventInputJSONDelta, BlockIndex: ev.Index, Delta: ev.Delta.PartialJSON}) {
					return
				}
			}

		case "content_block_stop":
			acc := blocks[ev.Index]
			if acc == nil {
				continue
			}
			if acc.block.Type == BlockTypeToolUse {
				input := acc.input.String()
				if input == "" {
					input = "{}"
				}
				acc.block.Input = json.RawMessage(input)
			}
			done := acc.block
			delete(blocks, ev.Index)
			if !emit(Event{Type: EventBlockDone, BlockIndex: ev.Index, Block: &done}) {
				return
			}

		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
			if ev.Usage != nil {
				usage = ev.Usage
			}

		case "message_stop":
			emit(Event{Type: EventDone, StopReason: stopReason, Usage: usage})
			return

		case "error":
			msg := "backend stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			emit(Event{Type: EventError, Err: fmt.Errorf("%s", msg)})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		emit(Event{Type: EventError, Err: fmt.Errorf("stream read failed: %w", err)})
		return
	}

	// The body ended without message_stop. Surface what we know so the
	// caller does not hang waiting for a terminal event.
	emit(Event{Type: EventDone, StopReason: stopReason, Usage: usage})
}

// CollectResponse drains a stream into a complete Response. Useful for
// callers that need streaming transport but whole-response semantics.
func CollectResponse(ctx context.Context, events <-chan Event, model string) (*Response, error) {
	resp := &Response{
		Model: model,
		Role:  "assistant",
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return resp, nil
			}
			switch ev.Type {
			case EventBlockDone:
				if ev.Block != nil {
					resp.Content = append(resp.Content, *ev.Block)
				}
			case EventDone:
				resp.StopReason = ev.StopReason
				if ev.Usage != nil {
					resp.Usage = *ev.Usage
				}
			case EventError:
				return nil, ev.Err
			}
		}
	}
}
