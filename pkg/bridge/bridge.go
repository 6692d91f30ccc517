package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/calls"
	"github.com/bruecke-dev/bruecke/pkg/exec"
	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/schema"
	"github.com/bruecke-dev/bruecke/pkg/session"
	"github.com/bruecke-dev/bruecke/pkg/storage"
)

// Bridge wires the external surface to the native backend and the
// execution engine. Safe for concurrent use.
type Bridge struct {
	cfg     Config
	client  native.Client
	engine  *exec.Engine
	tracker *session.Tracker
	store   storage.TurnStore // nil disables transcript persistence
	logger  *slog.Logger
}

// New creates a bridge. The store may be nil; everything else is
// required.
func New(cfg Config, client native.Client, engine *exec.Engine, tracker *session.Tracker, store storage.TurnStore, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:     cfg.withDefaults(),
		client:  client,
		engine:  engine,
		tracker: tracker,
		store:   store,
		logger:  logger,
	}
}

// turnState is the per-request state shared by the streaming and
// non-streaming loops.
type turnState struct {
	sessionID string
	set       *schema.Set
	tools     []native.Tool
	policy    schema.ExecutionPolicy
	nativeReq *native.Request
	parallel  bool

	// persist enables transcript storage. Requests without a session key
	// have nothing to correlate a follow-up with, so nothing is stored.
	persist bool
}

// prepare validates and compiles the request's tool surface, resolves
// the tool_choice directive, translates the transcript, and re-associates
// any client-supplied tool results with their tracked calls.
func (b *Bridge) prepare(ctx context.Context, req *api.ChatCompletionRequest) (*turnState, *api.APIError) {
	set, apiErr := schema.Compile(req.Tools)
	if apiErr != nil {
		return nil, apiErr
	}

	policy, apiErr := schema.ResolveChoice(req.ToolChoice, set)
	if apiErr != nil {
		return nil, apiErr
	}

	system, msgs, apiErr := TranslateMessages(req.Messages)
	if apiErr != nil {
		return nil, apiErr
	}

	sessionID := req.Session()
	persist := b.store != nil && sessionID != ""
	if sessionID == "" {
		// No conversation correlation: state lives only for this request.
		sessionID = api.NewCompletionID()
	}

	// Client-executed calls come back as tool-role messages; mark their
	// tracked entries completed, accepting any arrival order. Unknown
	// ids are tolerated so a full-transcript replay against a fresh
	// process does not fail.
	for _, id := range toolResultIDs(req.Messages) {
		b.tracker.Resolve(sessionID, id, session.StateCompleted)
	}

	// A result-only transcript continues a prior surfaced turn; rebuild
	// the conversation from the stored history. Full transcripts are
	// self-contained; their messages seed the store only for a session
	// it has not seen yet, since replayed transcripts are authoritative
	// over whatever was stored before.
	if persist {
		hist, err := b.store.History(ctx, sessionID)
		switch {
		case isResultOnly(req.Messages) && err == nil:
			prepended := make([]native.Message, 0, len(hist)+len(msgs))
			prepended = append(prepended, hist...)
			if len(msgs) > 0 {
				b.persistTurn(ctx, sessionID, msgs)
			}
			msgs = append(prepended, msgs...)
		case isResultOnly(req.Messages):
			if !errors.Is(err, storage.ErrNotFound) {
				b.logger.Error("history lookup failed", "session_id", sessionID, "error", err)
				return nil, api.NewServerError("failed to load session history")
			}
			return nil, api.NewInvalidRequestError("messages",
				"tool results without conversation history; no stored session "+sessionID)
		case errors.Is(err, storage.ErrNotFound) && len(msgs) > 0:
			b.persistTurn(ctx, sessionID, msgs)
		}
	}

	nativeReq := &native.Request{
		Model:         req.Model,
		System:        system,
		Messages:      msgs,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
	if req.MaxTokens != nil {
		nativeReq.MaxTokens = *req.MaxTokens
	}

	parallel := true
	if req.ParallelToolCalls != nil {
		parallel = *req.ParallelToolCalls
	}

	return &turnState{
		sessionID: sessionID,
		set:       set,
		tools:     set.ToNative(),
		policy:    policy,
		nativeReq: nativeReq,
		parallel:  parallel,
		persist:   persist,
	}, nil
}

// execute runs one turn's calls through the engine, honoring the
// request's parallelism setting.
func (b *Bridge) execute(ctx context.Context, st *turnState, turnCalls []calls.ToolCall, onResult func(int, exec.Result)) []exec.Result {
	if st.parallel {
		return b.engine.ExecuteTurnFunc(ctx, st.sessionID, turnCalls, onResult)
	}
	return b.engine.ExecuteSequentialFunc(ctx, st.sessionID, turnCalls, onResult)
}

// appendTurn records the turn's native messages in the in-flight
// request and the transcript store.
func (b *Bridge) appendTurn(ctx context.Context, st *turnState, msgs ...native.Message) {
	st.nativeReq.Messages = append(st.nativeReq.Messages, msgs...)
	if st.persist {
		b.persistTurn(ctx, st.sessionID, msgs)
	}
}

// persistTurn writes one turn to the store. Store failures are logged,
// not fatal; the conversation continues from the in-memory copy.
func (b *Bridge) persistTurn(ctx context.Context, sessionID string, msgs []native.Message) {
	if err := b.store.AppendTurn(ctx, sessionID, msgs); err != nil {
		b.logger.Error("failed to persist turn", "session_id", sessionID, "error", err)
	}
}

// DropSession tears down all per-session state: tracked calls and the
// stored transcript.
func (b *Bridge) DropSession(ctx context.Context, sessionID string) {
	b.tracker.Drop(sessionID)
	if b.store != nil {
		if err := b.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			b.logger.Error("failed to delete session transcript", "session_id", sessionID, "error", err)
		}
	}
}

// ListModels proxies the backend's model listing onto the external shape.
func (b *Bridge) ListModels(ctx context.Context) (*api.ModelList, *api.APIError) {
	models, err := b.client.ListModels(ctx)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, api.NewServerError(err.Error())
	}
	list := &api.ModelList{Object: "list", Data: make([]api.ModelInfo, 0, len(models))}
	for _, m := range models {
		list.Data = append(list.Data, api.ModelInfo{ID: m.ID, Object: "model", OwnedBy: m.OwnedBy})
	}
	return list, nil
}

// asAPIError coerces a backend error into the external taxonomy.
func asAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewServerError(err.Error())
}
