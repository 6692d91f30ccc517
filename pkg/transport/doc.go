// Package transport defines the handler contract and middleware chain
// for the bruecke HTTP/SSE transport layer.
//
// The transport layer sits between external clients and the bridge. It
// deserializes chat-completion requests into the types defined in
// pkg/api, dispatches them, and serializes responses back as JSON or as
// an SSE chunk stream.
//
// # Handler Contract
//
// CompletionHandler is the contract between the transport layer and the
// bridge: non-streaming completion, streaming completion against a
// chunk writer, model listing, and session teardown.
//
// # Middleware
//
// Middleware wraps http.Handler with cross-cutting concerns. Built-in
// middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Request metrics
// middleware lives in pkg/observability.
package transport
