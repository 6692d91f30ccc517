// Package schema validates external tool declarations and converts
// between the external function-schema shape and the native block
// protocol's tool shape. Declared parameter schemas are compiled once
// per request; the compiled set is reused to validate model-produced
// arguments before dispatch.
//
// The package also resolves tool_choice directives into an
// ExecutionPolicy that shapes the outbound model request and enforces
// pinned-choice semantics on the model's output.
package schema
