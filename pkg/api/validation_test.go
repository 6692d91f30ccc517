package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func validRequest() *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Model: "test-model",
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "hello"},
		},
	}
}

func toolDef(name string) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:       name,
			Parameters: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func TestValidateRequest_Valid(t *testing.T) {
	if apiErr := ValidateRequest(validRequest(), DefaultValidationConfig()); apiErr != nil {
		t.Errorf("unexpected error: %v", apiErr)
	}
}

func TestValidateRequest_MissingModel(t *testing.T) {
	req := validRequest()
	req.Model = ""
	apiErr := ValidateRequest(req, DefaultValidationConfig())
	if apiErr == nil || apiErr.Param != "model" {
		t.Errorf("expected model error, got %v", apiErr)
	}
}

func TestValidateRequest_EmptyMessages(t *testing.T) {
	req := validRequest()
	req.Messages = nil
	if apiErr := ValidateRequest(req, DefaultValidationConfig()); apiErr == nil {
		t.Error("expected error for empty messages")
	}
}

func TestValidateRequest_TooManyTools(t *testing.T) {
	req := validRequest()
	for i := 0; i < 129; i++ {
		req.Tools = append(req.Tools, toolDef("t"+itoa(i)))
	}

	apiErr := ValidateRequest(req, DefaultValidationConfig())
	if apiErr == nil || apiErr.Code != CodeTooManyTools {
		t.Errorf("expected too_many_tools, got %v", apiErr)
	}
}

func TestValidateRequest_DuplicateToolName(t *testing.T) {
	req := validRequest()
	req.Tools = []ToolDefinition{toolDef("search"), toolDef("search")}

	apiErr := ValidateRequest(req, DefaultValidationConfig())
	if apiErr == nil || apiErr.Code != CodeDuplicateName {
		t.Errorf("expected duplicate_name, got %v", apiErr)
	}
}

func TestValidateRequest_BadToolName(t *testing.T) {
	cases := []string{"", "has space", "überlang" + strings.Repeat("x", 64), "semi;colon"}
	for _, name := range cases {
		req := validRequest()
		req.Tools = []ToolDefinition{toolDef(name)}
		apiErr := ValidateRequest(req, DefaultValidationConfig())
		if apiErr == nil || apiErr.Code != CodeSchemaError {
			t.Errorf("name %q: expected schema_error, got %v", name, apiErr)
		}
	}
}

func TestValidateRequest_NonObjectParameters(t *testing.T) {
	req := validRequest()
	td := toolDef("search")
	td.Function.Parameters = json.RawMessage(`["not","an","object"]`)
	req.Tools = []ToolDefinition{td}

	apiErr := ValidateRequest(req, DefaultValidationConfig())
	if apiErr == nil || apiErr.Code != CodeSchemaError {
		t.Errorf("expected schema_error, got %v", apiErr)
	}
}

func TestValidateRequest_PinnedUnknownTool(t *testing.T) {
	req := validRequest()
	req.Tools = []ToolDefinition{toolDef("search")}
	tc := NewToolChoiceFunction("write_file")
	req.ToolChoice = &tc

	apiErr := ValidateRequest(req, DefaultValidationConfig())
	if apiErr == nil || apiErr.Param != "tool_choice" {
		t.Errorf("expected tool_choice error, got %v", apiErr)
	}
}

func TestValidateRequest_PinnedKnownTool(t *testing.T) {
	req := validRequest()
	req.Tools = []ToolDefinition{toolDef("search")}
	tc := NewToolChoiceFunction("search")
	req.ToolChoice = &tc

	if apiErr := ValidateRequest(req, DefaultValidationConfig()); apiErr != nil {
		t.Errorf("unexpected error: %v", apiErr)
	}
}

func TestValidateRequest_BadToolChoiceString(t *testing.T) {
	req := validRequest()
	req.ToolChoice = &ToolChoice{String: "required"}

	if apiErr := ValidateRequest(req, DefaultValidationConfig()); apiErr == nil {
		t.Error("expected error for unsupported tool_choice string")
	}
}

func TestValidateRequest_ToolMessageWithoutCallID(t *testing.T) {
	req := validRequest()
	req.Messages = append(req.Messages, ChatMessage{Role: RoleTool, Content: "result"})

	apiErr := ValidateRequest(req, DefaultValidationConfig())
	if apiErr == nil {
		t.Fatal("expected error for tool message without tool_call_id")
	}
}

func TestValidateRequest_ToolCallIDOnUserMessage(t *testing.T) {
	req := validRequest()
	req.Messages = []ChatMessage{
		{Role: RoleUser, Content: "hi", ToolCallID: "call_x"},
	}
	if apiErr := ValidateRequest(req, DefaultValidationConfig()); apiErr == nil {
		t.Fatal("expected error for tool_call_id on user message")
	}
}

func TestValidateRequest_InvalidRole(t *testing.T) {
	req := validRequest()
	req.Messages = []ChatMessage{{Role: "robot", Content: "hi"}}
	if apiErr := ValidateRequest(req, DefaultValidationConfig()); apiErr == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestValidateRequest_TemperatureBounds(t *testing.T) {
	for _, temp := range []float64{-0.1, 2.1} {
		req := validRequest()
		req.Temperature = &temp
		if apiErr := ValidateRequest(req, DefaultValidationConfig()); apiErr == nil {
			t.Errorf("expected error for temperature %v", temp)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
