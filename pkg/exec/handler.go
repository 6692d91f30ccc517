package exec

import (
	"context"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/session"
)

// Class groups handlers by expected latency so the engine can apply
// distinct wall-clock budgets.
type Class int

const (
	// ClassFast covers quick I/O such as file reads and listings.
	ClassFast Class = iota
	// ClassCommand covers subprocess execution and other slow work.
	ClassCommand
)

// Handler executes one named tool. Implementations receive parsed
// arguments and a context carrying the cancellation signal and the
// per-call deadline; they must return promptly once the context ends.
type Handler interface {
	Name() string
	Class() Class
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Outcome is the result kind of an executed call.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Result is the immutable outcome of one tool call. It is created
// here and consumed exactly once by the result integrator.
type Result struct {
	CallID  string
	Name    string
	Outcome Outcome

	// Payload is the handler output (possibly truncated) on success,
	// or a short error description on failure.
	Payload string

	// Err is the typed error behind a failure outcome.
	Err *api.APIError

	// State is the terminal tracker state the call reached.
	State session.State

	Duration  time.Duration
	Truncated bool
}

// ErrorResult builds a failure Result from a typed error.
func ErrorResult(callID, name string, state session.State, apiErr *api.APIError, d time.Duration) Result {
	return Result{
		CallID:   callID,
		Name:     name,
		Outcome:  OutcomeError,
		Payload:  apiErr.Message,
		Err:      apiErr,
		State:    state,
		Duration: d,
	}
}
