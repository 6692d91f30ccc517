// Package native defines the model-side protocol: the block-structured
// message format the backend model actually speaks. Unlike the external
// surface in pkg/api, the native format carries tool invocations as
// typed content blocks (tool_use) with structured input objects, and
// tool results as tool_result blocks correlated by the tool_use id.
//
// The Client interface abstracts the backend; the HTTP implementation
// in this package talks to a messages-style endpoint with SSE streaming.
package native
