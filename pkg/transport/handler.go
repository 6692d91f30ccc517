package transport

import (
	"context"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/stream"
)

// CompletionHandler is the contract between the transport layer and the
// bridge core.
type CompletionHandler interface {
	// Complete handles a non-streaming chat completion.
	Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, *api.APIError)

	// CompleteStream handles a streaming chat completion, writing chunks
	// to w as they are produced. An error returned before the first
	// chunk means nothing was written and the transport may respond with
	// a plain HTTP error.
	CompleteStream(ctx context.Context, req *api.ChatCompletionRequest, w stream.ChunkWriter) *api.APIError

	// ListModels returns the models served through the bridge.
	ListModels(ctx context.Context) (*api.ModelList, *api.APIError)

	// DropSession tears down all per-session state.
	DropSession(ctx context.Context, sessionID string)
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
