package api

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// toolNamePattern constrains function names to the characters the external
// surface accepts.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
	MaxTools       int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    1000,
		MaxContentSize: 10 * 1024 * 1024, // 10MB
		MaxTools:       128,
	}
}

// ValidateRequest checks a ChatCompletionRequest for validity. It returns
// an *APIError describing the first validation failure, or nil if the
// request is valid. Validation happens before any model call is issued.
func ValidateRequest(req *ChatCompletionRequest, cfg ValidationConfig) *APIError {
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}

	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must contain at least one entry")
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d entries", cfg.MaxMessages))
	}

	if cfg.MaxTools > 0 && len(req.Tools) > cfg.MaxTools {
		return NewTooManyToolsError(len(req.Tools), cfg.MaxTools)
	}

	if apiErr := validateTools(req.Tools); apiErr != nil {
		return apiErr
	}

	if apiErr := validateMessages(req.Messages, cfg); apiErr != nil {
		return apiErr
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if req.TopP != nil {
		if *req.TopP < 0.0 || *req.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}

	// A pinned tool_choice must reference a declared tool.
	if req.ToolChoice != nil {
		if apiErr := validateToolChoice(req.ToolChoice, req.Tools); apiErr != nil {
			return apiErr
		}
	}

	return nil
}

// validateTools checks name pattern, name uniqueness, and parameter schema
// shape for each declared tool.
func validateTools(tools []ToolDefinition) *APIError {
	seen := make(map[string]bool, len(tools))
	for i, t := range tools {
		param := fmt.Sprintf("tools[%d]", i)

		if t.Type != "" && t.Type != "function" {
			return NewInvalidRequestError(param,
				fmt.Sprintf("unsupported tool type %q", t.Type))
		}

		name := t.Function.Name
		if !toolNamePattern.MatchString(name) {
			return NewSchemaError(param,
				fmt.Sprintf("tool name %q must match %s", name, toolNamePattern.String()))
		}

		if seen[name] {
			return NewDuplicateNameError(name)
		}
		seen[name] = true

		// Parameters, when present, must at least parse as a JSON object.
		// Deep schema validation happens in pkg/schema before conversion.
		if len(t.Function.Parameters) > 0 {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(t.Function.Parameters, &obj); err != nil {
				return NewSchemaError(param,
					fmt.Sprintf("parameters for %q must be a JSON object schema", name))
			}
		}
	}
	return nil
}

// validateMessages checks structural constraints on the conversation.
func validateMessages(messages []ChatMessage, cfg ValidationConfig) *APIError {
	for i, m := range messages {
		param := fmt.Sprintf("messages[%d]", i)

		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return NewInvalidRequestError(param,
				fmt.Sprintf("invalid role %q", m.Role))
		}

		// Tool-result messages must correlate to a prior call.
		if m.Role == RoleTool && m.ToolCallID == "" {
			return NewInvalidRequestError(param,
				"tool messages require tool_call_id")
		}
		if m.Role != RoleTool && m.ToolCallID != "" {
			return NewInvalidRequestError(param,
				"tool_call_id is only valid on tool messages")
		}
		if m.Role != RoleAssistant && len(m.ToolCalls) > 0 {
			return NewInvalidRequestError(param,
				"tool_calls is only valid on assistant messages")
		}

		if cfg.MaxContentSize > 0 && len(m.Content) > cfg.MaxContentSize {
			return NewInvalidRequestError(param,
				fmt.Sprintf("content exceeds maximum of %d bytes", cfg.MaxContentSize))
		}
	}
	return nil
}

// validateToolChoice checks a tool_choice directive against the declared
// tool set. Rejects unknown string values and pinned references to
// undeclared functions.
func validateToolChoice(tc *ToolChoice, tools []ToolDefinition) *APIError {
	if tc.String != "" {
		if tc.String != "auto" && tc.String != "none" {
			return NewInvalidRequestError("tool_choice",
				fmt.Sprintf("tool_choice must be 'auto', 'none', or a function selection, got %q", tc.String))
		}
		return nil
	}

	if tc.Function == nil {
		return NewInvalidRequestError("tool_choice", "tool_choice object requires a function selection")
	}

	name := tc.Function.Function.Name
	for _, t := range tools {
		if t.Function.Name == name {
			return nil
		}
	}
	return NewInvalidRequestError("tool_choice",
		fmt.Sprintf("tool_choice references unknown tool %q", name))
}
