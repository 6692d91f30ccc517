package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/stream"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubHandler scripts the bridge side of the adapter.
type stubHandler struct {
	mu sync.Mutex

	completeResp *api.ChatCompletionResponse
	completeErr  *api.APIError

	streamFn func(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError

	models    *api.ModelList
	modelsErr *api.APIError

	dropped []string
}

func (s *stubHandler) Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, *api.APIError) {
	return s.completeResp, s.completeErr
}

func (s *stubHandler) CompleteStream(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError {
	return s.streamFn(ctx, req, w)
}

func (s *stubHandler) ListModels(ctx context.Context) (*api.ModelList, *api.APIError) {
	return s.models, s.modelsErr
}

func (s *stubHandler) DropSession(ctx context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, sessionID)
}

type failingHealth struct{ err error }

func (h failingHealth) HealthCheck(ctx context.Context) error { return h.err }

func newTestAdapter(h *stubHandler) *Adapter {
	return NewAdapter(AdapterConfig{}, h, nil, discard)
}

func postCompletion(t *testing.T, a *Adapter, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, req)
	return rec
}

const validBody = `{"model":"small-1","messages":[{"role":"user","content":"hi"}]}`

func TestChatCompletion(t *testing.T) {
	h := &stubHandler{
		completeResp: &api.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  "small-1",
			Choices: []api.Choice{{
				Message:      api.ChatMessage{Role: api.RoleAssistant, Content: "hello"},
				FinishReason: api.FinishReasonStop,
			}},
		},
	}

	rec := postCompletion(t, newTestAdapter(h), validBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp api.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "chatcmpl-1" || len(resp.Choices) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestChatCompletionRejectsContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	newTestAdapter(&stubHandler{}).Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestChatCompletionRejectsBadJSON(t *testing.T) {
	rec := postCompletion(t, newTestAdapter(&stubHandler{}), `{"model":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletionRejectsOversizedBody(t *testing.T) {
	a := NewAdapter(AdapterConfig{MaxBodyBytes: 64}, &stubHandler{}, nil, discard)
	body := `{"model":"small-1","messages":[{"role":"user","content":"` + strings.Repeat("x", 256) + `"}]}`
	rec := postCompletion(t, a, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestChatCompletionValidationFailure(t *testing.T) {
	rec := postCompletion(t, newTestAdapter(&stubHandler{}), `{"model":"small-1","messages":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestChatCompletionHandlerError(t *testing.T) {
	h := &stubHandler{completeErr: api.NewTooManyRequestsError("rate limited")}
	rec := postCompletion(t, newTestAdapter(h), validBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestStreamingCompletion(t *testing.T) {
	stop := api.FinishReasonStop
	h := &stubHandler{
		streamFn: func(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError {
			for _, chunk := range []*api.ChatCompletionChunk{
				{ID: "chatcmpl-s1", Object: "chat.completion.chunk", Choices: []api.ChunkChoice{{Delta: api.ChunkDelta{Role: api.RoleAssistant, Content: "hel"}}}},
				{ID: "chatcmpl-s1", Object: "chat.completion.chunk", Choices: []api.ChunkChoice{{Delta: api.ChunkDelta{Content: "lo"}}}},
				{ID: "chatcmpl-s1", Object: "chat.completion.chunk", Choices: []api.ChunkChoice{{FinishReason: &stop}}},
			} {
				if err := w.WriteChunk(chunk); err != nil {
					return api.NewServerError(err.Error())
				}
			}
			return nil
		},
	}

	body := `{"model":"small-1","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := postCompletion(t, newTestAdapter(h), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %v", len(events), events)
	}
	if events[len(events)-1] != "[DONE]" {
		t.Errorf("last event = %q, want [DONE]", events[len(events)-1])
	}

	var text strings.Builder
	for _, ev := range events[:len(events)-1] {
		var chunk api.ChatCompletionChunk
		if err := json.Unmarshal([]byte(ev), &chunk); err != nil {
			t.Fatalf("unmarshal chunk %q: %v", ev, err)
		}
		for _, c := range chunk.Choices {
			text.WriteString(c.Delta.Content)
		}
	}
	if text.String() != "hello" {
		t.Errorf("assembled text = %q", text.String())
	}
}

func TestStreamingPreStreamError(t *testing.T) {
	h := &stubHandler{
		streamFn: func(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError {
			return api.NewModelError("backend unavailable")
		},
	}

	body := `{"model":"small-1","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := postCompletion(t, newTestAdapter(h), body)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want plain JSON error", ct)
	}
}

func TestStreamingMidStreamError(t *testing.T) {
	h := &stubHandler{
		streamFn: func(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError {
			w.WriteChunk(&api.ChatCompletionChunk{ID: "chatcmpl-s2", Object: "chat.completion.chunk"})
			return api.NewServerError("backend dropped mid-turn")
		},
	}

	body := `{"model":"small-1","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := postCompletion(t, newTestAdapter(h), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, SSE already started", rec.Code)
	}
	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events, want chunk, error, [DONE]: %v", len(events), events)
	}
	var errResp api.ErrorResponse
	if err := json.Unmarshal([]byte(events[1]), &errResp); err != nil {
		t.Fatalf("unmarshal error event: %v", err)
	}
	if errResp.Error == nil || errResp.Error.Type != api.ErrorTypeServerError {
		t.Errorf("error event = %+v", errResp.Error)
	}
	if events[2] != "[DONE]" {
		t.Errorf("stream not terminated with [DONE]")
	}
}

func TestDeleteCancelsInFlightStream(t *testing.T) {
	started := make(chan struct{})
	h := &stubHandler{}
	h.streamFn = func(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError {
		w.WriteChunk(&api.ChatCompletionChunk{ID: "chatcmpl-live", Object: "chat.completion.chunk"})
		close(started)
		<-ctx.Done()
		return nil
	}

	a := newTestAdapter(h)
	done := make(chan struct{})
	go func() {
		defer close(done)
		body := `{"model":"small-1","stream":true,"messages":[{"role":"user","content":"hi"}]}`
		postCompletion(t, a, body)
	}()

	<-started
	req := httptest.NewRequest(http.MethodDelete, "/v1/chat/completions/chatcmpl-live", nil)
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	<-done

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.dropped) != 0 {
		t.Errorf("DropSession called for in-flight cancellation: %v", h.dropped)
	}
}

func TestDeleteUnknownIDDropsSession(t *testing.T) {
	h := &stubHandler{}
	a := newTestAdapter(h)

	req := httptest.NewRequest(http.MethodDelete, "/v1/chat/completions/sess-42", nil)
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(h.dropped) != 1 || h.dropped[0] != "sess-42" {
		t.Errorf("dropped = %v, want [sess-42]", h.dropped)
	}
}

func TestListModels(t *testing.T) {
	h := &stubHandler{models: &api.ModelList{
		Object: "list",
		Data:   []api.ModelInfo{{ID: "small-1", Object: "model"}},
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	newTestAdapter(h).Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list api.ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "small-1" {
		t.Errorf("models = %+v", list)
	}
}

func TestHealthz(t *testing.T) {
	t.Run("ok without checker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		newTestAdapter(&stubHandler{}).Routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("degraded when checker fails", func(t *testing.T) {
		a := NewAdapter(AdapterConfig{}, &stubHandler{}, failingHealth{err: context.DeadlineExceeded}, discard)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		a.Routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	})
}

// parseSSE splits an SSE body into its data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			events = append(events, data)
		}
	}
	return events
}
