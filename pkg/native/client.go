package native

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
)

// Config holds settings for the HTTP backend client.
type Config struct {
	// BaseURL is the backend base URL (required).
	BaseURL string

	// APIKey is sent as the x-api-key header when set.
	APIKey string

	// Timeout bounds non-streaming requests. Defaults to 120s.
	Timeout time.Duration

	// DefaultMaxTokens is used when a request does not set MaxTokens.
	// Defaults to 4096.
	DefaultMaxTokens int
}

// HTTPClient implements Client against a messages-style HTTP endpoint.
type HTTPClient struct {
	cfg    Config
	client *http.Client
}

// Ensure HTTPClient implements Client at compile time.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a backend client with the given configuration.
// Returns an error if the configuration is invalid.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("native: BaseURL is required")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.DefaultMaxTokens == 0 {
		cfg.DefaultMaxTokens = 4096
	}

	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the backend identifier.
func (c *HTTPClient) Name() string {
	return "native"
}

// Complete performs non-streaming inference against the messages endpoint.
func (c *HTTPClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	reqCopy := *req
	reqCopy.Stream = false
	if reqCopy.MaxTokens == 0 {
		reqCopy.MaxTokens = c.cfg.DefaultMaxTokens
	}

	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	return &resp, nil
}

// Stream performs streaming inference. It returns a channel of Events;
// the channel is closed when the stream completes, errors, or the context
// is cancelled.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (c *HTTPClient) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	reqCopy := *req
	reqCopy.Stream = true
	if reqCopy.MaxTokens == 0 {
		reqCopy.MaxTokens = c.cfg.DefaultMaxTokens
	}

	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: c.client.Transport}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	ch := make(chan Event, 16)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseSSEStream(ctx, httpResp.Body, ch)
	}()

	return ch, nil
}

// ListModels returns available models from the backend.
func (c *HTTPClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	c.setAuth(httpReq)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var list struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&list); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}
	return list.Data, nil
}

// Close releases client resources.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)
	return httpReq, nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}
}

// mapNetworkError converts a transport-level failure into an APIError.
func mapNetworkError(err error) *api.APIError {
	return api.NewServerError("backend unreachable: " + err.Error())
}

// mapHTTPError converts a non-2xx backend response into an APIError,
// preserving the backend's error message when it is parseable.
func mapHTTPError(resp *http.Response) *api.APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var backendErr struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &backendErr); err == nil && backendErr.Error.Message != "" {
		msg = backendErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(msg)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return api.NewModelError(fmt.Sprintf("backend rejected request (%d): %s", resp.StatusCode, msg))
	default:
		return api.NewServerError(fmt.Sprintf("backend error (%d): %s", resp.StatusCode, msg))
	}
}
