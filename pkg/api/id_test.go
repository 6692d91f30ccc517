package api

import "testing"

func TestNewCallID_Format(t *testing.T) {
	id := NewCallID()
	if !ValidateCallID(id) {
		t.Errorf("NewCallID() = %q, does not match expected format", id)
	}
}

func TestNewCompletionID_Format(t *testing.T) {
	id := NewCompletionID()
	if !ValidateCompletionID(id) {
		t.Errorf("NewCompletionID() = %q, does not match expected format", id)
	}
}

func TestNewCallID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCallID()
		if seen[id] {
			t.Fatalf("duplicate call ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateCallID_Invalid(t *testing.T) {
	cases := []string{
		"",
		"call_",
		"call_short",
		"resp_abcdefghijklmnopqrstuvwx",
		"call_abcdefghijklmnopqrstuvw!",
		"call_abcdefghijklmnopqrstuvwxy", // 25 chars
	}
	for _, id := range cases {
		if ValidateCallID(id) {
			t.Errorf("ValidateCallID(%q) = true, want false", id)
		}
	}
}
