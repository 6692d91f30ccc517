package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/observability"
	"github.com/bruecke-dev/bruecke/pkg/transport"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// ReadTimeout bounds reading the request headers and body.
	ReadTimeout time.Duration
	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown once the context is
	// cancelled.
	ShutdownTimeout time.Duration
	// Adapter configures request decoding limits.
	Adapter AdapterConfig
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	return c
}

// Server is the HTTP front end. It wires the adapter behind the
// default middleware chain and manages graceful shutdown.
type Server struct {
	cfg     ServerConfig
	httpSrv *http.Server
	logger  *slog.Logger
}

// NewServer builds a Server around handler. extra middleware (such as
// authentication) is applied inside the default chain, after request
// ID assignment and recovery but before the route table.
func NewServer(cfg ServerConfig, handler transport.CompletionHandler, health transport.HealthChecker, logger *slog.Logger, extra ...transport.Middleware) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	adapter := NewAdapter(cfg.Adapter, handler, health, logger)

	chain := []transport.Middleware{
		transport.RequestID(),
		transport.Recovery(logger),
		transport.Logging(logger),
		observability.MetricsMiddleware,
	}
	chain = append(chain, extra...)
	root := transport.Chain(chain...)(adapter.Routes())

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpSrv: &http.Server{
			Addr:        cfg.Addr,
			Handler:     root,
			ReadTimeout: cfg.ReadTimeout,
			IdleTimeout: cfg.IdleTimeout,
			// WriteTimeout stays unset: streaming completions hold the
			// response open for the duration of the model turn.
		},
	}
}

// Handler returns the fully wrapped root handler, for tests that serve
// through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}
