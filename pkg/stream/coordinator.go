package stream

import (
	"sync"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
)

// ChunkWriter receives serialized chunks, typically the SSE writer.
type ChunkWriter interface {
	WriteChunk(chunk *api.ChatCompletionChunk) error
}

// CallEventKind classifies an event on a call's channel.
type CallEventKind int

const (
	// KindArgs carries an argument-text fragment.
	KindArgs CallEventKind = iota
	// KindArgsDone marks the call's arguments fully parsed.
	KindArgsDone
	// KindResult carries the execution result for the call.
	KindResult
	// KindError terminates the call's sub-stream with a typed error.
	KindError
)

// CallEvent is one item on a per-call channel.
type CallEvent struct {
	Kind      CallEventKind
	Fragment  string // KindArgs
	Status    string // KindResult terminal status
	Output    string // KindResult payload
	Truncated bool
	Err       *api.APIError // KindError
}

// Coordinator fans per-call channels and turn-level text into one
// ordered chunk stream. Construct with NewCoordinator, feed events,
// then call Finish exactly once.
type Coordinator struct {
	id      string
	model   string
	created int64
	w       ChunkWriter

	merged chan api.ChunkDelta
	runWG  sync.WaitGroup
	callWG sync.WaitGroup

	mu       sync.Mutex
	writeErr error
	sentRole bool
}

// NewCoordinator creates a coordinator and starts its multiplexer.
func NewCoordinator(completionID, model string, w ChunkWriter) *Coordinator {
	c := &Coordinator{
		id:      completionID,
		model:   model,
		created: time.Now().Unix(),
		w:       w,
		merged:  make(chan api.ChunkDelta, 32),
	}
	c.runWG.Add(1)
	go c.run()
	return c
}

// run serializes all chunk writes. Per-call order is preserved because
// each call's events arrive through one FIFO channel; interleaving
// across calls reflects arrival order at the merge point.
func (c *Coordinator) run() {
	defer c.runWG.Done()
	for delta := range c.merged {
		c.write(delta, nil, nil)
	}
}

func (c *Coordinator) write(delta api.ChunkDelta, finish *api.FinishReason, usage *api.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return
	}
	if !c.sentRole {
		delta.Role = api.RoleAssistant
		c.sentRole = true
	}
	chunk := &api.ChatCompletionChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: c.created,
		Model:   c.model,
		Choices: []api.ChunkChoice{{Delta: delta, FinishReason: finish}},
		Usage:   usage,
	}
	c.writeErr = c.w.WriteChunk(chunk)
}

// Err returns the first transport write error, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

// Text emits a turn-level text fragment.
func (c *Coordinator) Text(fragment string) {
	if fragment == "" {
		return
	}
	c.merged <- api.ChunkDelta{Content: fragment}
}

// OpenCall announces a call (id, name, index) and returns its event
// channel. The caller must close the channel when the call's stream
// ends; the coordinator drains it in the background.
func (c *Coordinator) OpenCall(index int, callID, name string) chan<- CallEvent {
	c.merged <- api.ChunkDelta{ToolCalls: []api.ToolCallDelta{{
		Index:    index,
		ID:       callID,
		Type:     "function",
		Function: api.FunctionCallDelta{Name: name},
	}}}

	ch := make(chan CallEvent, 16)
	c.callWG.Add(1)
	go func() {
		defer c.callWG.Done()
		for ev := range ch {
			c.merged <- c.callDelta(index, callID, ev)
			if ev.Kind == KindError {
				// Terminal for this call only; drain the remainder so
				// the producer never blocks.
				for range ch {
				}
				return
			}
		}
	}()
	return ch
}

func (c *Coordinator) callDelta(index int, callID string, ev CallEvent) api.ChunkDelta {
	switch ev.Kind {
	case KindArgs:
		return api.ChunkDelta{ToolCalls: []api.ToolCallDelta{{
			Index:    index,
			Function: api.FunctionCallDelta{Arguments: ev.Fragment},
		}}}
	case KindArgsDone:
		return api.ChunkDelta{ToolEvents: []api.ToolEvent{{
			Index:  index,
			CallID: callID,
			Status: "arguments_done",
		}}}
	case KindResult:
		return api.ChunkDelta{ToolEvents: []api.ToolEvent{{
			Index:     index,
			CallID:    callID,
			Status:    ev.Status,
			Output:    ev.Output,
			Truncated: ev.Truncated,
		}}}
	default: // KindError
		status := ev.Status
		if status == "" {
			status = "failed"
		}
		return api.ChunkDelta{ToolEvents: []api.ToolEvent{{
			Index:  index,
			CallID: callID,
			Status: status,
			Error:  ev.Err,
		}}}
	}
}

// Finish waits for every call channel to drain, emits the final chunk
// with the finish reason, and stops the multiplexer. Must be called
// exactly once, after all producers are done.
func (c *Coordinator) Finish(reason api.FinishReason, usage *api.Usage) error {
	c.callWG.Wait()
	close(c.merged)
	c.runWG.Wait()
	c.write(api.ChunkDelta{}, &reason, usage)
	return c.Err()
}
