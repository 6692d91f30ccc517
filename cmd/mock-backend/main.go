// Command mock-backend runs a deterministic native messages server for
// local development and conformance testing. It speaks the block
// protocol the bridge consumes: on the first turn of a request that
// carries tools it emits a tool_use block invoking the first tool;
// once the conversation contains tool results it answers with plain
// text summarizing them.
//
// Configuration:
//
//	MOCK_PORT - listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", handleMessages)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Wire types ---

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type messagesRequest struct {
	Model      string    `json:"model"`
	System     string    `json:"system,omitempty"`
	Messages   []message `json:"messages"`
	Tools      []tool    `json:"tools,omitempty"`
	ToolChoice *struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	} `json:"tool_choice,omitempty"`
	MaxTokens int  `json:"max_tokens"`
	Stream    bool `json:"stream"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

// --- Handler ---

var responseCounter int

func handleMessages(w http.ResponseWriter, r *http.Request) {
	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"type":"invalid_request_error","message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	responseCounter++
	resp := buildResponse(&req, fmt.Sprintf("msg_mock_%04d", responseCounter))

	if req.Stream {
		writeStreamed(w, resp)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// buildResponse decides the turn deterministically: tool results in
// the transcript end the conversation with text, otherwise available
// tools trigger a single tool_use call.
func buildResponse(req *messagesRequest, id string) *messagesResponse {
	resp := &messagesResponse{
		ID:    id,
		Model: req.Model,
		Role:  "assistant",
		Usage: usage{InputTokens: promptTokens(req), OutputTokens: 12},
	}

	if results := collectResults(req.Messages); len(results) > 0 {
		resp.StopReason = "end_turn"
		resp.Content = []contentBlock{{
			Type: "text",
			Text: "Based on the tool output: " + strings.Join(results, "; "),
		}}
		return resp
	}

	if len(req.Tools) > 0 {
		name := req.Tools[0].Name
		if req.ToolChoice != nil && req.ToolChoice.Type == "tool" {
			name = req.ToolChoice.Name
		}
		resp.StopReason = "tool_use"
		resp.Content = []contentBlock{{
			Type:  "tool_use",
			ID:    "toolu_mock_" + id,
			Name:  name,
			Input: json.RawMessage(`{"query":"mock input"}`),
		}}
		return resp
	}

	resp.StopReason = "end_turn"
	resp.Content = []contentBlock{{Type: "text", Text: "Hello from the mock backend."}}
	return resp
}

func collectResults(messages []message) []string {
	var results []string
	for _, m := range messages {
		for _, b := range m.Content {
			if b.Type == "tool_result" {
				out := b.Content
				if len(out) > 80 {
					out = out[:80]
				}
				results = append(results, out)
			}
		}
	}
	return results
}

func promptTokens(req *messagesRequest) int {
	n := len(req.System) / 4
	for _, m := range req.Messages {
		for _, b := range m.Content {
			n += (len(b.Text) + len(b.Content) + len(b.Input)) / 4
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// writeStreamed replays the response as messages-style SSE events:
// message_start, per-block start/delta/stop, message_delta with the
// stop reason, then message_stop.
func writeStreamed(w http.ResponseWriter, resp *messagesResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	emit := func(eventType string, payload map[string]any) {
		payload["type"] = eventType
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
		rc.Flush()
	}

	emit("message_start", map[string]any{
		"message": map[string]any{"id": resp.ID, "model": resp.Model, "role": "assistant"},
	})

	for i, block := range resp.Content {
		switch block.Type {
		case "text":
			emit("content_block_start", map[string]any{
				"index":         i,
				"content_block": map[string]any{"type": "text", "text": ""},
			})
			// Split the text to exercise delta reassembly.
			for _, chunk := range splitChunks(block.Text, 12) {
				emit("content_block_delta", map[string]any{
					"index": i,
					"delta": map[string]any{"type": "text_delta", "text": chunk},
				})
			}
		case "tool_use":
			emit("content_block_start", map[string]any{
				"index": i,
				"content_block": map[string]any{
					"type":  "tool_use",
					"id":    block.ID,
					"name":  block.Name,
					"input": map[string]any{},
				},
			})
			for _, chunk := range splitChunks(string(block.Input), 8) {
				emit("content_block_delta", map[string]any{
					"index": i,
					"delta": map[string]any{"type": "input_json_delta", "partial_json": chunk},
				})
			}
		}
		emit("content_block_stop", map[string]any{"index": i})
	}

	emit("message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": resp.StopReason},
		"usage": map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	})
	emit("message_stop", map[string]any{})
}

func splitChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"data": []map[string]string{
			{"id": "mock-small", "owned_by": "mock"},
			{"id": "mock-large", "owned_by": "mock"},
		},
	})
}
