// Package exec dispatches tool calls to registered handlers under the
// security guard, per-class timeouts, and a bounded per-session worker
// pool. Every dispatched call resolves to a Result carrying either the
// handler output or a typed error; handler failures, timeouts, and
// panics never cross the engine boundary.
package exec
