// Package bridge implements the chat-completion gateway core: it
// translates the external function-calling surface into the native
// block protocol, runs the agentic turn loop against the model backend,
// dispatches extracted tool calls to the execution engine, and folds
// results back into the conversation.
package bridge
