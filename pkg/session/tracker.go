package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
)

// State is a tool call's lifecycle position.
type State string

const (
	StateCreated   State = "created"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// Entry is one tracked call within a session.
type Entry struct {
	ID        string
	Name      string
	TurnIndex int
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Config bounds tracker memory.
type Config struct {
	// MaxCallsPerSession caps tracked entries per session; beyond it the
	// oldest terminal entries are evicted first. Defaults to 256.
	MaxCallsPerSession int

	// MaxSessions caps concurrently tracked sessions. Defaults to 1024.
	MaxSessions int

	// IdleTTL expires sessions with no activity. Defaults to 30m.
	IdleTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxCallsPerSession <= 0 {
		c.MaxCallsPerSession = 256
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1024
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	return c
}

// Tracker maintains per-session call state. Safe for concurrent use.
type Tracker struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions *expirable.LRU[string, *sessionContext]
}

// sessionContext holds one conversation's call entries. All field
// access goes through mu; the per-session lock keeps cross-session
// traffic contention-free.
type sessionContext struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // insertion order, drives eviction
}

// NewTracker creates a tracker. The expirable LRU evicts idle sessions
// in the background and caps the session count.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{cfg: cfg, logger: logger}
	t.sessions = expirable.NewLRU[string, *sessionContext](cfg.MaxSessions, func(id string, _ *sessionContext) {
		logger.Debug("session context evicted", "session_id", id)
	}, cfg.IdleTTL)
	return t
}

// context returns the session's context, creating it on first use.
// Re-adding on every touch refreshes the idle TTL.
func (t *Tracker) context(sessionID string) *sessionContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	sc, ok := t.sessions.Get(sessionID)
	if !ok {
		sc = &sessionContext{entries: make(map[string]*Entry)}
	}
	t.sessions.Add(sessionID, sc)
	return sc
}

// Track records freshly extracted calls as created entries and evicts
// past the per-session cap.
func (t *Tracker) Track(sessionID string, extracted []calls.ToolCall) {
	if len(extracted) == 0 {
		return
	}
	sc := t.context(sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	now := time.Now()
	for _, c := range extracted {
		if _, exists := sc.entries[c.ID]; exists {
			// Ids are process-unique; a repeat indicates a caller bug.
			t.logger.Warn("duplicate call id tracked", "session_id", sessionID, "call_id", c.ID)
			continue
		}
		sc.entries[c.ID] = &Entry{
			ID:        c.ID,
			Name:      c.Name,
			TurnIndex: c.TurnIndex,
			State:     StateCreated,
			CreatedAt: c.CreatedAt,
			UpdatedAt: now,
		}
		sc.order = append(sc.order, c.ID)
	}
	t.evictLocked(sessionID, sc)
}

// evictLocked enforces the per-session cap, removing oldest terminal
// entries first. Live entries are never evicted; a session saturated
// with live calls may transiently exceed the cap until they resolve.
func (t *Tracker) evictLocked(sessionID string, sc *sessionContext) {
	over := len(sc.entries) - t.cfg.MaxCallsPerSession
	if over <= 0 {
		return
	}
	kept := sc.order[:0]
	for _, id := range sc.order {
		e := sc.entries[id]
		if over > 0 && e != nil && e.State.Terminal() {
			delete(sc.entries, id)
			over--
			continue
		}
		kept = append(kept, id)
	}
	sc.order = kept
	if over > 0 {
		t.logger.Warn("session call cap exceeded by live entries",
			"session_id", sessionID, "live_over_cap", over)
	}
}

// Begin transitions a call to executing. The transition fires at most
// once per call id; a second dispatch attempt is rejected with
// already_executing, and terminal entries reject with a plain invalid
// transition error.
func (t *Tracker) Begin(sessionID, callID string) *api.APIError {
	sc := t.context(sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	e, ok := sc.entries[callID]
	if !ok {
		return api.NewNotFoundError(fmt.Sprintf("unknown call id %q", callID))
	}
	switch e.State {
	case StateCreated:
		e.State = StateExecuting
		e.UpdatedAt = time.Now()
		return nil
	case StateExecuting:
		return &api.APIError{
			Type:    api.ErrorTypeServerError,
			Code:    api.CodeAlreadyExecuting,
			Message: fmt.Sprintf("call %s is already executing", callID),
		}
	default:
		return api.NewInvalidRequestError("", fmt.Sprintf("call %s is already %s", callID, e.State))
	}
}

// Resolve moves a call to a terminal state. Resolving an already
// terminal call is a no-op so late timeouts and cancellations do not
// overwrite a real outcome.
func (t *Tracker) Resolve(sessionID, callID string, terminal State) *api.APIError {
	if !terminal.Terminal() {
		return api.NewServerError(fmt.Sprintf("state %s is not terminal", terminal))
	}
	sc := t.context(sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	e, ok := sc.entries[callID]
	if !ok {
		return api.NewNotFoundError(fmt.Sprintf("unknown call id %q", callID))
	}
	if e.State.Terminal() {
		return nil
	}
	e.State = terminal
	e.UpdatedAt = time.Now()
	return nil
}

// Get returns a snapshot of a call's entry. Non-blocking aside from the
// brief per-session lock.
func (t *Tracker) Get(sessionID, callID string) (Entry, bool) {
	t.mu.Lock()
	sc, ok := t.sessions.Get(sessionID)
	t.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	e, ok := sc.entries[callID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len reports the number of tracked entries for a session.
func (t *Tracker) Len(sessionID string) int {
	t.mu.Lock()
	sc, ok := t.sessions.Get(sessionID)
	t.mu.Unlock()
	if !ok {
		return 0
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.entries)
}

// CancelOutstanding resolves every non-terminal entry of a turn to
// cancelled. Used when a turn-level cancellation propagates to its
// outstanding calls.
func (t *Tracker) CancelOutstanding(sessionID string, turnIndex int) int {
	t.mu.Lock()
	sc, ok := t.sessions.Get(sessionID)
	t.mu.Unlock()
	if !ok {
		return 0
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()

	n := 0
	now := time.Now()
	for _, e := range sc.entries {
		if e.TurnIndex == turnIndex && !e.State.Terminal() {
			e.State = StateCancelled
			e.UpdatedAt = now
			n++
		}
	}
	return n
}

// Drop removes a session's context entirely (session teardown).
func (t *Tracker) Drop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions.Remove(sessionID)
}
