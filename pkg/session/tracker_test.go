package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
)

func newTestTracker(cfg Config) *Tracker {
	return NewTracker(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testCalls(n int) []calls.ToolCall {
	out := make([]calls.ToolCall, n)
	now := time.Now()
	for i := range out {
		out[i] = calls.ToolCall{
			ID:        api.NewCallID(),
			Name:      "search",
			CreatedAt: now,
		}
	}
	return out
}

func trackOne(t *testing.T, tr *Tracker, sessionID, callID string) {
	t.Helper()
	tr.Track(sessionID, []calls.ToolCall{{ID: callID, Name: "search", CreatedAt: time.Now()}})
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")

	e, ok := tr.Get("s1", "call_1")
	if !ok || e.State != StateCreated {
		t.Fatalf("entry = %+v ok=%v, want created", e, ok)
	}

	if err := tr.Begin("s1", "call_1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if e, _ := tr.Get("s1", "call_1"); e.State != StateExecuting {
		t.Errorf("state = %s, want executing", e.State)
	}

	if err := tr.Resolve("s1", "call_1", StateCompleted); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if e, _ := tr.Get("s1", "call_1"); e.State != StateCompleted {
		t.Errorf("state = %s, want completed", e.State)
	}
}

func TestTracker_BeginFiresOnce(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")

	if err := tr.Begin("s1", "call_1"); err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	err := tr.Begin("s1", "call_1")
	if err == nil {
		t.Fatal("second Begin succeeded, want already_executing")
	}
	if err.Code != api.CodeAlreadyExecuting {
		t.Errorf("code = %s, want %s", err.Code, api.CodeAlreadyExecuting)
	}
}

func TestTracker_BeginConcurrent(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")

	const n = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.Begin("s1", "call_1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("%d Begin calls succeeded, want exactly 1", count)
	}
}

func TestTracker_ResolveTerminalIsSticky(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")
	tr.Begin("s1", "call_1")

	if err := tr.Resolve("s1", "call_1", StateCompleted); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// A late timeout must not overwrite the real outcome.
	if err := tr.Resolve("s1", "call_1", StateTimedOut); err != nil {
		t.Fatalf("second Resolve errored: %v", err)
	}
	if e, _ := tr.Get("s1", "call_1"); e.State != StateCompleted {
		t.Errorf("state = %s, want completed to stick", e.State)
	}
}

func TestTracker_ResolveRejectsNonTerminal(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")
	if err := tr.Resolve("s1", "call_1", StateExecuting); err == nil {
		t.Fatal("Resolve accepted a non-terminal state")
	}
}

func TestTracker_UnknownCall(t *testing.T) {
	tr := newTestTracker(Config{})
	if err := tr.Begin("s1", "call_missing"); err == nil {
		t.Fatal("Begin on unknown id succeeded")
	}
	if _, ok := tr.Get("s1", "call_missing"); ok {
		t.Fatal("Get on unknown id reported found")
	}
}

func TestTracker_CapEvictsOldestTerminal(t *testing.T) {
	tr := newTestTracker(Config{MaxCallsPerSession: 4})

	batch := testCalls(4)
	tr.Track("s1", batch)
	for _, c := range batch {
		tr.Begin("s1", c.ID)
		tr.Resolve("s1", c.ID, StateCompleted)
	}

	// Two more entries push the session past the cap; the two oldest
	// terminal entries must go.
	tr.Track("s1", []calls.ToolCall{
		{ID: "call_new1", Name: "search", CreatedAt: time.Now()},
		{ID: "call_new2", Name: "search", CreatedAt: time.Now()},
	})

	if n := tr.Len("s1"); n != 4 {
		t.Errorf("Len = %d, want cap of 4", n)
	}
	if _, ok := tr.Get("s1", batch[0].ID); ok {
		t.Error("oldest terminal entry survived eviction")
	}
	if _, ok := tr.Get("s1", batch[1].ID); ok {
		t.Error("second oldest terminal entry survived eviction")
	}
	if _, ok := tr.Get("s1", "call_new2"); !ok {
		t.Error("new entry missing after eviction")
	}
}

func TestTracker_EvictionSparesLiveEntries(t *testing.T) {
	tr := newTestTracker(Config{MaxCallsPerSession: 2})

	tr.Track("s1", []calls.ToolCall{
		{ID: "call_live", Name: "search", CreatedAt: time.Now()},
		{ID: "call_done", Name: "search", CreatedAt: time.Now()},
	})
	tr.Begin("s1", "call_live")
	tr.Begin("s1", "call_done")
	tr.Resolve("s1", "call_done", StateCompleted)

	trackOne(t, tr, "s1", "call_extra")

	if _, ok := tr.Get("s1", "call_live"); !ok {
		t.Error("live entry evicted")
	}
	if _, ok := tr.Get("s1", "call_done"); ok {
		t.Error("terminal entry survived while cap exceeded")
	}
}

func TestTracker_SessionsIsolated(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")
	if _, ok := tr.Get("s2", "call_1"); ok {
		t.Fatal("call visible across sessions")
	}
}

func TestTracker_CancelOutstanding(t *testing.T) {
	tr := newTestTracker(Config{})
	tr.Track("s1", []calls.ToolCall{
		{ID: "call_a", Name: "search", TurnIndex: 1, CreatedAt: time.Now()},
		{ID: "call_b", Name: "search", TurnIndex: 1, CreatedAt: time.Now()},
		{ID: "call_c", Name: "search", TurnIndex: 2, CreatedAt: time.Now()},
	})
	tr.Begin("s1", "call_a")
	tr.Begin("s1", "call_b")
	tr.Resolve("s1", "call_b", StateCompleted)

	n := tr.CancelOutstanding("s1", 1)
	if n != 1 {
		t.Errorf("cancelled = %d, want 1", n)
	}
	if e, _ := tr.Get("s1", "call_a"); e.State != StateCancelled {
		t.Errorf("call_a state = %s, want cancelled", e.State)
	}
	if e, _ := tr.Get("s1", "call_b"); e.State != StateCompleted {
		t.Errorf("call_b state = %s, completed must stick", e.State)
	}
	if e, _ := tr.Get("s1", "call_c"); e.State.Terminal() {
		t.Errorf("call_c state = %s, other turn must be untouched", e.State)
	}
}

func TestTracker_Drop(t *testing.T) {
	tr := newTestTracker(Config{})
	trackOne(t, tr, "s1", "call_1")
	tr.Drop("s1")
	if _, ok := tr.Get("s1", "call_1"); ok {
		t.Fatal("entry survived session drop")
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed, StateTimedOut, StateCancelled} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range []State{StateCreated, StateExecuting} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}
