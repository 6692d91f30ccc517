package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/native"
)

// MaxTools is the maximum number of tool declarations per request.
const MaxTools = 128

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// CompiledTool pairs a tool declaration with its compiled parameter
// schema, ready for argument validation.
type CompiledTool struct {
	Def    api.ToolDefinition
	Schema *jsonschema.Schema
}

// Set is a validated, compiled collection of tool declarations for one
// request. A Set is immutable after Compile and safe for concurrent use.
type Set struct {
	byName map[string]*CompiledTool
	order  []string
}

// Compile validates the declarations and compiles each parameter schema.
// It checks name pattern and uniqueness, the per-request tool bound, and
// that each parameter schema is a well-formed object schema.
func Compile(defs []api.ToolDefinition) (*Set, *api.APIError) {
	if len(defs) > MaxTools {
		return nil, api.NewTooManyToolsError(len(defs), MaxTools)
	}

	set := &Set{byName: make(map[string]*CompiledTool, len(defs))}
	for i, def := range defs {
		param := fmt.Sprintf("tools[%d]", i)
		if def.Type != "function" {
			return nil, api.NewSchemaError(param+".type", fmt.Sprintf("unsupported tool type %q", def.Type))
		}
		name := def.Function.Name
		if !toolNamePattern.MatchString(name) {
			return nil, api.NewSchemaError(param+".function.name",
				"tool name must be 1-64 characters of a-z, A-Z, 0-9, underscore, or hyphen")
		}
		if _, dup := set.byName[name]; dup {
			return nil, api.NewDuplicateNameError(name)
		}

		compiled, apiErr := compileParameters(param, def.Function.Parameters)
		if apiErr != nil {
			return nil, apiErr
		}

		set.byName[name] = &CompiledTool{Def: def, Schema: compiled}
		set.order = append(set.order, name)
	}
	return set, nil
}

// Validate checks the declarations without retaining the compiled set.
func Validate(defs []api.ToolDefinition) *api.APIError {
	_, err := Compile(defs)
	return err
}

// compileParameters compiles a single parameter schema. A missing or
// empty schema is treated as an open object schema (tool takes any or
// no arguments).
func compileParameters(param string, raw json.RawMessage) (*jsonschema.Schema, *api.APIError) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}

	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, api.NewSchemaError(param+".function.parameters",
			"parameter schema must be a JSON object")
	}
	if t, ok := probe["type"]; ok && t != "object" {
		return nil, api.NewSchemaError(param+".function.parameters",
			"parameter schema must describe an object")
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, api.NewSchemaError(param+".function.parameters",
			"parameter schema must be a JSON object")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", doc); err != nil {
		return nil, api.NewSchemaError(param+".function.parameters",
			fmt.Sprintf("invalid parameter schema: %s", err.Error()))
	}
	compiled, err := compiler.Compile("tool.json")
	if err != nil {
		return nil, api.NewSchemaError(param+".function.parameters",
			fmt.Sprintf("invalid parameter schema: %s", err.Error()))
	}
	return compiled, nil
}

// Len returns the number of tools in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// Names returns tool names in declaration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Lookup returns the compiled tool for a name, or nil when undeclared.
func (s *Set) Lookup(name string) *CompiledTool {
	return s.byName[name]
}

// ToNative converts the set into native tool declarations, preserving
// declaration order. The external parameter schema becomes the native
// input_schema unchanged, so argument payloads round-trip losslessly.
func (s *Set) ToNative() []native.Tool {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]native.Tool, 0, len(s.order))
	for _, name := range s.order {
		ct := s.byName[name]
		params := ct.Def.Function.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, native.Tool{
			Name:        name,
			Description: ct.Def.Function.Description,
			InputSchema: params,
		})
	}
	return out
}

// ValidateArgs checks a parsed argument payload against the named
// tool's declared schema. Unknown names and schema violations return a
// tool_call_error, terminal for the call that produced the arguments.
func (s *Set) ValidateArgs(name string, rawArgs json.RawMessage) *api.APIError {
	ct := s.byName[name]
	if ct == nil {
		return &api.APIError{
			Type:    api.ErrorTypeModelError,
			Code:    api.CodeToolCallError,
			Message: fmt.Sprintf("model invoked undeclared tool %q", name),
		}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawArgs))
	if err != nil {
		return &api.APIError{
			Type:    api.ErrorTypeModelError,
			Code:    api.CodeToolCallError,
			Param:   name,
			Message: "tool arguments are not valid JSON",
		}
	}
	if err := ct.Schema.Validate(inst); err != nil {
		return &api.APIError{
			Type:    api.ErrorTypeModelError,
			Code:    api.CodeToolCallError,
			Param:   name,
			Message: fmt.Sprintf("tool arguments do not match the declared schema: %s", err.Error()),
		}
	}
	return nil
}

// FromNativeCall extracts the tool name and raw argument payload from a
// native tool_use block. The input object is the arguments; no
// structural transformation is applied, preserving round-trip fidelity.
func FromNativeCall(block native.ContentBlock) (string, json.RawMessage, error) {
	if block.Type != native.BlockTypeToolUse {
		return "", nil, fmt.Errorf("schema: block type %q is not tool_use", block.Type)
	}
	if block.Name == "" {
		return "", nil, fmt.Errorf("schema: tool_use block has no name")
	}
	input := block.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return block.Name, input, nil
}
