package api

// ChatCompletionChunk is a single streaming response chunk, emitted as an
// SSE data payload. The final chunk carries a finish reason; the stream is
// terminated by a "data: [DONE]" sentinel after it.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice holds the incremental delta for one choice.
type ChunkChoice struct {
	Index        int           `json:"index"`
	Delta        ChunkDelta    `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason"`
}

// ChunkDelta is the incremental content of a chunk: a role announcement,
// a text fragment, or tool-call argument fragments.
type ChunkDelta struct {
	Role       MessageRole     `json:"role,omitempty"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []ToolCallDelta `json:"tool_calls,omitempty"`
	ToolEvents []ToolEvent     `json:"tool_events,omitempty"`
}

// ToolCallDelta is an incremental fragment of one tool call. Index is the
// call's position within the turn so clients can demultiplex interleaved
// calls; ID and the function name are only set on the first fragment for
// a given index.
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function FunctionCallDelta `json:"function"`
}

// FunctionCallDelta carries the function name (first fragment only) and an
// arguments text fragment.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolEvent reports execution progress for one call within the turn:
// an arguments-complete marker, a result once the call finished, or a
// terminal per-call error. Errors here end that call's sub-stream only;
// sibling calls and the turn continue.
type ToolEvent struct {
	Index     int       `json:"index"`
	CallID    string    `json:"call_id"`
	Status    string    `json:"status"` // arguments_done | completed | failed | timed_out | cancelled
	Output    string    `json:"output,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}
