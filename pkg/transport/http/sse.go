package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/bruecke-dev/bruecke/pkg/api"
)

// writerState tracks the lifecycle of an SSE response.
type writerState int

const (
	// writerStateIdle means no bytes have been written yet. Errors can
	// still be sent as plain JSON responses.
	writerStateIdle writerState = iota
	// writerStateStreaming means SSE headers and at least one chunk have
	// been written. Errors must now be delivered in-band.
	writerStateStreaming
	// writerStateCompleted means the terminating sentinel has been
	// written and no further output is accepted.
	writerStateCompleted
)

// SSEWriter serializes completion chunks as server-sent events in the
// chat-completions wire format: one "data:" line per chunk, terminated
// by a "data: [DONE]" sentinel. Headers are written lazily on the
// first chunk so that failures before any output can still produce a
// plain HTTP error response.
//
// SSEWriter implements stream.ChunkWriter.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	state   writerState
	onFirst func(completionID string)
}

// NewSSEWriter creates an SSEWriter over w. If onFirst is non-nil it is
// called exactly once, with the completion ID, just before the first
// chunk is written.
func NewSSEWriter(w http.ResponseWriter, onFirst func(completionID string)) *SSEWriter {
	return &SSEWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		onFirst: onFirst,
	}
}

// WriteChunk writes one chunk as an SSE data event and flushes it to
// the client.
func (s *SSEWriter) WriteChunk(chunk *api.ChatCompletionChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStateCompleted {
		return fmt.Errorf("write after stream completed")
	}
	if s.state == writerStateIdle {
		s.writeHeaders()
		if s.onFirst != nil {
			s.onFirst(chunk.ID)
		}
		s.state = writerStateStreaming
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshaling chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WriteError delivers an error in-band after streaming has started. It
// emits an error event in the ErrorResponse wrapper format. Callers
// that have not started streaming should send a plain HTTP error
// instead.
func (s *SSEWriter) WriteError(apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerStateStreaming {
		return fmt.Errorf("error event requires an active stream")
	}
	data, err := json.Marshal(api.ErrorResponse{Error: apiErr})
	if err != nil {
		return fmt.Errorf("marshaling error event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Done writes the terminating sentinel and marks the stream completed.
// Calling Done on an idle writer is a no-op so that pre-stream error
// paths stay plain HTTP.
func (s *SSEWriter) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerStateStreaming {
		return nil
	}
	s.state = writerStateCompleted
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Started reports whether SSE output has begun. Once true, errors can
// no longer be delivered as plain HTTP responses.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerStateIdle
}

func (s *SSEWriter) writeHeaders() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}
