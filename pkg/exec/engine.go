package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
	"github.com/bruecke-dev/bruecke/pkg/guard"
	"github.com/bruecke-dev/bruecke/pkg/session"
)

var (
	toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_tool_executions_total",
			Help: "Total tool executions",
		},
		[]string{"tool_name", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool_name"},
	)
)

func init() {
	prometheus.MustRegister(toolExecutions, toolDuration)
}

// Config bounds the engine.
type Config struct {
	// Workers caps concurrent executions per turn. Defaults to 4.
	Workers int

	// FastTimeout is the wall-clock budget for ClassFast handlers.
	// Defaults to 10s.
	FastTimeout time.Duration

	// CommandTimeout is the wall-clock budget for ClassCommand
	// handlers. Defaults to 60s.
	CommandTimeout time.Duration

	// MaxOutputBytes truncates larger handler output. Defaults to 256 KiB.
	MaxOutputBytes int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FastTimeout <= 0 {
		c.FastTimeout = 10 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 60 * time.Second
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = 256 << 10
	}
	return c
}

// Engine executes extracted tool calls. Safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *Registry
	guard    *guard.Guard
	tracker  *session.Tracker
	logger   *slog.Logger
}

// NewEngine creates an engine over the given handler registry, guard,
// and state tracker.
func NewEngine(cfg Config, registry *Registry, g *guard.Guard, tracker *session.Tracker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		registry: registry,
		guard:    g,
		tracker:  tracker,
		logger:   logger,
	}
}

// CanExecute reports whether a handler is registered for the tool.
func (e *Engine) CanExecute(name string) bool {
	return e.registry.Has(name)
}

// ExecuteTurn runs one turn's calls concurrently up to the worker bound,
// dispatching in submission order and queueing the remainder FIFO. The
// returned slice is indexed by submission order regardless of
// completion order. Context cancellation propagates into every
// outstanding call; each resolves to a cancelled result.
func (e *Engine) ExecuteTurn(ctx context.Context, sessionID string, turnCalls []calls.ToolCall) []Result {
	return e.ExecuteTurnFunc(ctx, sessionID, turnCalls, nil)
}

// ExecuteTurnFunc is ExecuteTurn with a per-call completion callback,
// invoked from worker goroutines as each call resolves. Streaming uses
// it to emit result chunks in completion order; onResult must be safe
// for concurrent use.
func (e *Engine) ExecuteTurnFunc(ctx context.Context, sessionID string, turnCalls []calls.ToolCall, onResult func(idx int, r Result)) []Result {
	results := make([]Result, len(turnCalls))

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup

	for i, call := range turnCalls {
		// Acquiring the slot before spawning keeps dispatch FIFO.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = e.cancelResult(sessionID, call)
			if onResult != nil {
				onResult(i, results[i])
			}
			continue
		}

		wg.Add(1)
		go func(i int, call calls.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.executeOne(ctx, sessionID, call)
			if onResult != nil {
				onResult(i, results[i])
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

// ExecuteSequential runs the turn's calls one at a time in submission
// order (parallel_tool_calls=false).
func (e *Engine) ExecuteSequential(ctx context.Context, sessionID string, turnCalls []calls.ToolCall) []Result {
	return e.ExecuteSequentialFunc(ctx, sessionID, turnCalls, nil)
}

// ExecuteSequentialFunc is ExecuteSequential with a per-call completion
// callback.
func (e *Engine) ExecuteSequentialFunc(ctx context.Context, sessionID string, turnCalls []calls.ToolCall, onResult func(idx int, r Result)) []Result {
	results := make([]Result, len(turnCalls))
	for i, call := range turnCalls {
		if ctx.Err() != nil {
			results[i] = e.cancelResult(sessionID, call)
		} else {
			results[i] = e.executeOne(ctx, sessionID, call)
		}
		if onResult != nil {
			onResult(i, results[i])
		}
	}
	return results
}

func (e *Engine) cancelResult(sessionID string, call calls.ToolCall) Result {
	e.tracker.Resolve(sessionID, call.ID, session.StateCancelled)
	return ErrorResult(call.ID, call.Name, session.StateCancelled,
		api.NewServerError("call cancelled before dispatch"), 0)
}

// executeOne runs a single call through guard checks, the tracker's
// executing guard, and the handler, producing a terminal Result.
func (e *Engine) executeOne(ctx context.Context, sessionID string, call calls.ToolCall) (res Result) {
	start := time.Now()

	fail := func(state session.State, apiErr *api.APIError, status string) Result {
		e.tracker.Resolve(sessionID, call.ID, state)
		toolExecutions.WithLabelValues(call.Name, status).Inc()
		return ErrorResult(call.ID, call.Name, state, apiErr, time.Since(start))
	}

	// Calls already marked invalid at extraction resolve directly.
	if call.Invalid != nil {
		return fail(session.StateFailed, call.Invalid, "invalid_args")
	}

	if apiErr := e.guard.CheckPayload(len(call.RawArgs)); apiErr != nil {
		return fail(session.StateFailed, apiErr, "security_policy")
	}
	if apiErr := e.guard.CheckBudget(sessionID, call.Name); apiErr != nil {
		return fail(session.StateFailed, apiErr, "security_policy")
	}

	handler := e.registry.Lookup(call.Name)
	if handler == nil {
		return fail(session.StateFailed, &api.APIError{
			Type:    api.ErrorTypeServerError,
			Code:    api.CodeToolCallError,
			Message: fmt.Sprintf("no handler registered for tool %q", call.Name),
		}, "no_handler")
	}

	if apiErr := e.tracker.Begin(sessionID, call.ID); apiErr != nil {
		e.logger.Error("dispatch guard rejected call",
			"session_id", sessionID, "call_id", call.ID, "error", apiErr)
		// Invariant violation: log, treat the call as failed, but do
		// not overwrite the winning execution's eventual state.
		toolExecutions.WithLabelValues(call.Name, "already_executing").Inc()
		return ErrorResult(call.ID, call.Name, session.StateFailed, apiErr, time.Since(start))
	}

	timeout := e.cfg.FastTimeout
	if handler.Class() == ClassCommand {
		timeout = e.cfg.CommandTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := e.runHandler(callCtx, handler, call.Args)
	duration := time.Since(start)
	toolDuration.WithLabelValues(call.Name).Observe(duration.Seconds())

	switch {
	case err == nil:
		payload, truncated := e.truncate(output)
		e.tracker.Resolve(sessionID, call.ID, session.StateCompleted)
		toolExecutions.WithLabelValues(call.Name, "success").Inc()
		return Result{
			CallID:    call.ID,
			Name:      call.Name,
			Outcome:   OutcomeSuccess,
			Payload:   payload,
			State:     session.StateCompleted,
			Duration:  duration,
			Truncated: truncated,
		}

	case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		apiErr := &api.APIError{
			Type:    api.ErrorTypeServerError,
			Code:    api.CodeExecutionTimeout,
			Message: fmt.Sprintf("tool %q exceeded its %s budget", call.Name, timeout),
		}
		e.tracker.Resolve(sessionID, call.ID, session.StateTimedOut)
		toolExecutions.WithLabelValues(call.Name, "timeout").Inc()
		return ErrorResult(call.ID, call.Name, session.StateTimedOut, apiErr, duration)

	case ctx.Err() != nil:
		e.tracker.Resolve(sessionID, call.ID, session.StateCancelled)
		toolExecutions.WithLabelValues(call.Name, "cancelled").Inc()
		return ErrorResult(call.ID, call.Name, session.StateCancelled,
			api.NewServerError("call cancelled"), duration)

	default:
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &api.APIError{
				Type:    api.ErrorTypeServerError,
				Code:    api.CodeToolCallError,
				Message: err.Error(),
			}
		}
		e.tracker.Resolve(sessionID, call.ID, session.StateFailed)
		toolExecutions.WithLabelValues(call.Name, "error").Inc()
		return ErrorResult(call.ID, call.Name, session.StateFailed, apiErr, duration)
	}
}

type handlerReturn struct {
	output string
	err    error
}

// runHandler invokes the handler with panic recovery. A panicking
// handler yields an error instead of crashing the process. The call's
// deadline is enforced here: a handler that ignores its context is
// abandoned once the context expires so the turn never blocks on it.
func (e *Engine) runHandler(ctx context.Context, h Handler, args map[string]any) (string, error) {
	done := make(chan handlerReturn, 1)
	go func() {
		var ret handlerReturn
		defer func() {
			if rec := recover(); rec != nil {
				e.logger.Error("tool handler panicked", "tool", h.Name(), "panic", rec)
				ret = handlerReturn{err: fmt.Errorf("internal error: tool %q panicked", h.Name())}
			}
			done <- ret
		}()
		ret.output, ret.err = h.Execute(ctx, args)
	}()

	select {
	case ret := <-done:
		return ret.output, ret.err
	case <-ctx.Done():
		// The abandoned goroutine's eventual result is discarded;
		// log it so stragglers stay visible.
		go func() {
			<-done
			e.logger.Warn("tool handler returned after abandonment", "tool", h.Name())
		}()
		return "", ctx.Err()
	}
}

func (e *Engine) truncate(output string) (string, bool) {
	if len(output) <= e.cfg.MaxOutputBytes {
		return output, false
	}
	// Back off to a rune boundary so the cut never emits invalid UTF-8.
	cut := e.cfg.MaxOutputBytes
	for cut > 0 && !utf8.RuneStart(output[cut]) {
		cut--
	}
	return output[:cut], true
}
