package api

import (
	"encoding/json"
	"testing"
)

func TestToolChoice_MarshalString(t *testing.T) {
	data, err := json.Marshal(ToolChoiceAuto)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"auto"` {
		t.Errorf("Marshal = %s, want %q", data, `"auto"`)
	}
}

func TestToolChoice_MarshalFunction(t *testing.T) {
	tc := NewToolChoiceFunction("get_weather")
	data, err := json.Marshal(tc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != "function" {
		t.Errorf("type = %v, want function", decoded["type"])
	}
	fn, ok := decoded["function"].(map[string]any)
	if !ok || fn["name"] != "get_weather" {
		t.Errorf("function.name = %v, want get_weather", decoded["function"])
	}
}

func TestToolChoice_MarshalEmpty(t *testing.T) {
	var tc ToolChoice
	if _, err := json.Marshal(tc); err == nil {
		t.Error("expected error marshaling empty ToolChoice")
	}
}

func TestToolChoice_UnmarshalString(t *testing.T) {
	var tc ToolChoice
	if err := json.Unmarshal([]byte(`"none"`), &tc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if tc.String != "none" || tc.Function != nil {
		t.Errorf("got %+v, want string 'none'", tc)
	}
}

func TestToolChoice_UnmarshalFunction(t *testing.T) {
	raw := `{"type":"function","function":{"name":"search"}}`
	var tc ToolChoice
	if err := json.Unmarshal([]byte(raw), &tc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if tc.PinnedName() != "search" {
		t.Errorf("PinnedName() = %q, want %q", tc.PinnedName(), "search")
	}
}

func TestToolChoice_UnmarshalInvalid(t *testing.T) {
	var tc ToolChoice
	if err := json.Unmarshal([]byte(`42`), &tc); err == nil {
		t.Error("expected error unmarshaling numeric tool_choice")
	}
}

func TestToolChoice_RoundTrip(t *testing.T) {
	cases := []ToolChoice{
		ToolChoiceAuto,
		ToolChoiceNone,
		NewToolChoiceFunction("write_file"),
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		var back ToolChoice
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if back.String != tc.String || back.PinnedName() != tc.PinnedName() {
			t.Errorf("round trip mismatch: %+v != %+v", back, tc)
		}
	}
}

func TestChatMessage_ToolCallSerialization(t *testing.T) {
	msg := ChatMessage{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{
				ID:   "call_abc",
				Type: "function",
				Function: FunctionCall{
					Name:      "get_weather",
					Arguments: `{"city":"Paris"}`,
				},
			},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back ChatMessage
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(back.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(back.ToolCalls))
	}
	if back.ToolCalls[0].Function.Arguments != `{"city":"Paris"}` {
		t.Errorf("Arguments = %q", back.ToolCalls[0].Function.Arguments)
	}
}

func TestSession_FallsBackToUser(t *testing.T) {
	req := ChatCompletionRequest{User: "u1"}
	if got := req.Session(); got != "u1" {
		t.Errorf("Session() = %q, want u1", got)
	}
	req.SessionID = "s1"
	if got := req.Session(); got != "s1" {
		t.Errorf("Session() = %q, want s1", got)
	}
}
