// Package api defines the external wire types for the bruecke bridge:
// the chat-completion request/response shapes, the function-calling
// contract (tool definitions, tool_choice directives, tool_calls arrays),
// streaming chunk types, the error taxonomy, and request validation.
//
// These types mirror the widely used Chat Completions surface. The native
// model-side representation lives in pkg/native; conversion between the
// two is the job of pkg/schema.
package api
