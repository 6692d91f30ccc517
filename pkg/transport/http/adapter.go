package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/transport"
)

// Adapter translates HTTP requests into CompletionHandler calls. It
// owns request decoding, validation, SSE streaming, and in-flight
// cancellation.
type Adapter struct {
	handler    transport.CompletionHandler
	health     transport.HealthChecker
	inflight   *transport.InFlightRegistry
	validation api.ValidationConfig
	maxBody    int64
	logger     *slog.Logger
}

// AdapterConfig holds the adapter's tunable limits.
type AdapterConfig struct {
	// MaxBodyBytes limits the request body size. Zero means the
	// default of 10 MiB.
	MaxBodyBytes int64
	// Validation configures structural request limits. The zero value
	// means DefaultValidationConfig.
	Validation api.ValidationConfig
}

const defaultMaxBodyBytes = 10 << 20

// NewAdapter creates an Adapter dispatching to handler. health may be
// nil, in which case /healthz always reports ok.
func NewAdapter(cfg AdapterConfig, handler transport.CompletionHandler, health transport.HealthChecker, logger *slog.Logger) *Adapter {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Validation == (api.ValidationConfig{}) {
		cfg.Validation = api.DefaultValidationConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		handler:    handler,
		health:     health,
		inflight:   transport.NewInFlightRegistry(),
		validation: cfg.Validation,
		maxBody:    cfg.MaxBodyBytes,
		logger:     logger,
	}
}

// Routes returns the adapter's route table as an http.ServeMux.
func (a *Adapter) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletion)
	mux.HandleFunc("DELETE /v1/chat/completions/{id}", a.handleDelete)
	mux.HandleFunc("GET /v1/models", a.handleListModels)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (a *Adapter) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("", "request body too large"),
				http.StatusRequestEntityTooLarge)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("", "invalid JSON: "+err.Error()))
		return
	}

	if apiErr := api.ValidateRequest(&req, a.validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if req.Stream {
		a.streamCompletion(w, r, &req)
		return
	}

	resp, apiErr := a.handler.Complete(r.Context(), &req)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Adapter) streamCompletion(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	sw := NewSSEWriter(w, func(completionID string) {
		registeredID = completionID
		a.inflight.Register(completionID, cancel)
	})

	apiErr := a.handler.CompleteStream(ctx, req, sw)
	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}

	if apiErr != nil {
		if sw.Started() {
			if err := sw.WriteError(apiErr); err != nil {
				a.logger.Warn("writing stream error event",
					"error", err,
					"request_id", transport.RequestIDFromContext(r.Context()))
			}
		} else {
			transport.WriteAPIError(w, apiErr)
			return
		}
	}
	if err := sw.Done(); err != nil {
		a.logger.Warn("terminating stream",
			"error", err,
			"request_id", transport.RequestIDFromContext(r.Context()))
	}
}

// handleDelete cancels an in-flight streaming completion or, when no
// stream is running under the given ID, tears down the session state
// held for it. Teardown is idempotent.
func (a *Adapter) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "id is required"))
		return
	}
	if !a.inflight.Cancel(id) {
		a.handler.DropSession(r.Context(), id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, apiErr := a.handler.ListModels(r.Context())
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
