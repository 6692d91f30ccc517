package native

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bruecke-dev/bruecke/pkg/api"
)

func TestHTTPClient_Complete(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			ID:   "msg_1",
			Role: "assistant",
			Content: []ContentBlock{
				{Type: BlockTypeText, Text: "hi"},
			},
			StopReason: StopReasonEndTurn,
			Usage:      Usage{InputTokens: 4, OutputTokens: 2},
		})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	defer c.Close()

	resp, err := c.Complete(context.Background(), &Request{
		Model:    "m1",
		Messages: []Message{{Role: "user", Content: []ContentBlock{{Type: BlockTypeText, Text: "hello"}}}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.StopReason != StopReasonEndTurn {
		t.Errorf("stop reason = %s, want end_turn", resp.StopReason)
	}
	if gotReq.Stream {
		t.Error("Complete must force stream=false")
	}
	if gotReq.MaxTokens == 0 {
		t.Error("Complete must apply the default max_tokens")
	}
}

func TestHTTPClient_Complete_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown model"}}`))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(Config{BaseURL: srv.URL})
	defer c.Close()

	_, err := c.Complete(context.Background(), &Request{Model: "nope"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *api.APIError", err)
	}
	if apiErr.Type != api.ErrorTypeModelError {
		t.Errorf("type = %s, want model_error", apiErr.Type)
	}
}

func TestHTTPClient_Complete_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(Config{BaseURL: srv.URL})
	defer c.Close()

	_, err := c.Complete(context.Background(), &Request{Model: "m1"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable() {
		t.Errorf("err = %v, want retryable rate limit error", err)
	}
}

func TestHTTPClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("Stream must force stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hey"}}

data: {"type":"content_block_stop","index":0}

data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}

data: {"type":"message_stop"}

`))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(Config{BaseURL: srv.URL})
	defer c.Close()

	ch, err := c.Stream(context.Background(), &Request{Model: "m1"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var sawText, sawDone bool
	for ev := range ch {
		switch ev.Type {
		case EventTextDelta:
			sawText = true
		case EventDone:
			sawDone = true
		case EventError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}
	if !sawText || !sawDone {
		t.Errorf("sawText=%v sawDone=%v, want both", sawText, sawDone)
	}
}

func TestHTTPClient_Stream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(Config{BaseURL: srv.URL})
	defer c.Close()

	if _, err := c.Stream(context.Background(), &Request{Model: "m1"}); err == nil {
		t.Fatal("expected error on non-2xx stream response")
	}
}

func TestHTTPClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s, want /v1/models", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"m1"},{"id":"m2"}]}`))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(Config{BaseURL: srv.URL})
	defer c.Close()

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[0].ID != "m1" {
		t.Errorf("models = %+v, want [m1 m2]", models)
	}
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(Config{}); err == nil {
		t.Fatal("expected error for missing BaseURL")
	}
}
