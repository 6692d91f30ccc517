package schema

import (
	"fmt"
	"log/slog"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/native"
)

// Mode classifies a resolved tool_choice directive.
type Mode int

const (
	// ModeAuto lets the model emit zero or more tool calls.
	ModeAuto Mode = iota
	// ModeDisabled suppresses tool use entirely.
	ModeDisabled
	// ModePinned constrains the turn to one named tool.
	ModePinned
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeDisabled:
		return "none"
	case ModePinned:
		return "pinned"
	default:
		return "unknown"
	}
}

// ExecutionPolicy is the resolved per-request tool policy. It shapes
// the outbound model request and enforces the directive on the model's
// output afterward.
type ExecutionPolicy struct {
	Mode       Mode
	PinnedName string
}

// ResolveChoice turns a tool_choice directive into an ExecutionPolicy.
// A nil choice defaults to auto when tools are declared and disabled
// otherwise. A pinned choice must reference a declared tool; this is
// checked before any model call is issued.
func ResolveChoice(choice *api.ToolChoice, set *Set) (ExecutionPolicy, *api.APIError) {
	if set == nil || set.Len() == 0 {
		return ExecutionPolicy{Mode: ModeDisabled}, nil
	}
	if choice == nil {
		return ExecutionPolicy{Mode: ModeAuto}, nil
	}

	if name := choice.PinnedName(); name != "" {
		if set.Lookup(name) == nil {
			return ExecutionPolicy{}, api.NewInvalidRequestError("tool_choice",
				fmt.Sprintf("tool_choice references undeclared tool %q", name))
		}
		return ExecutionPolicy{Mode: ModePinned, PinnedName: name}, nil
	}

	switch choice.String {
	case "", "auto":
		return ExecutionPolicy{Mode: ModeAuto}, nil
	case "none":
		return ExecutionPolicy{Mode: ModeDisabled}, nil
	default:
		return ExecutionPolicy{}, api.NewInvalidRequestError("tool_choice",
			fmt.Sprintf("unsupported tool_choice %q", choice.String))
	}
}

// Shape applies the policy to an outbound native request. Disabled
// suppresses tool use by omitting the tool declarations entirely rather
// than sending a choice value, which is how the native interface
// expresses "no tools this turn".
func (p ExecutionPolicy) Shape(req *native.Request, tools []native.Tool) {
	switch p.Mode {
	case ModeDisabled:
		req.Tools = nil
		req.ToolChoice = nil
	case ModePinned:
		req.Tools = tools
		req.ToolChoice = &native.ToolChoice{Type: "tool", Name: p.PinnedName}
	default:
		req.Tools = tools
		req.ToolChoice = &native.ToolChoice{Type: "auto"}
	}
}

// FilterBlocks applies the disabled directive to model output. Under
// ModeDisabled any tool_use block is a protocol violation: it is
// dropped with a logged warning, never surfaced as a call. Other modes
// pass the blocks through untouched.
func (p ExecutionPolicy) FilterBlocks(blocks []native.ContentBlock, logger *slog.Logger) []native.ContentBlock {
	if p.Mode != ModeDisabled {
		return blocks
	}
	kept := blocks[:0:0]
	for _, b := range blocks {
		if b.Type == native.BlockTypeToolUse {
			if logger != nil {
				logger.Warn("dropping tool_use block emitted under tool_choice=none",
					"tool", b.Name,
					"tool_use_id", b.ID)
			}
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// Enforce checks extracted call names against a pinned directive. A
// pinned turn with zero calls, or any call to a different name, is a
// choice violation surfaced to the caller as a retryable failure.
func (p ExecutionPolicy) Enforce(callNames []string) *api.APIError {
	if p.Mode != ModePinned {
		return nil
	}
	if len(callNames) == 0 {
		return api.NewChoiceViolationError(
			fmt.Sprintf("model emitted no call to pinned tool %q", p.PinnedName))
	}
	for _, name := range callNames {
		if name != p.PinnedName {
			return api.NewChoiceViolationError(
				fmt.Sprintf("model called %q while pinned to %q", name, p.PinnedName))
		}
	}
	return nil
}
