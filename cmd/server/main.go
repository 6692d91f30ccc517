// Command server runs the bruecke tool-calling bridge.
//
// Configuration is loaded from a YAML file (-config flag,
// BRUECKE_CONFIG, ./config.yaml, or /etc/bruecke/config.yaml) with
// BRUECKE_ environment variable overrides. At minimum the backend URL
// must be set:
//
//	BRUECKE_BACKEND_URL  - native messages backend URL (required)
//	BRUECKE_PORT         - listen port (default: 8080)
//	BRUECKE_STORAGE      - "memory" or "postgres" (default: "memory")
//	BRUECKE_AUTH_TYPE    - "none", "apikey", or "jwt" (default: "none")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bruecke-dev/bruecke/pkg/auth"
	"github.com/bruecke-dev/bruecke/pkg/auth/apikey"
	authjwt "github.com/bruecke-dev/bruecke/pkg/auth/jwt"
	"github.com/bruecke-dev/bruecke/pkg/bridge"
	"github.com/bruecke-dev/bruecke/pkg/config"
	"github.com/bruecke-dev/bruecke/pkg/exec"
	"github.com/bruecke-dev/bruecke/pkg/exec/mcp"
	"github.com/bruecke-dev/bruecke/pkg/guard"
	"github.com/bruecke-dev/bruecke/pkg/native"
	"github.com/bruecke-dev/bruecke/pkg/session"
	"github.com/bruecke-dev/bruecke/pkg/storage"
	"github.com/bruecke-dev/bruecke/pkg/storage/memory"
	"github.com/bruecke-dev/bruecke/pkg/storage/postgres"
	"github.com/bruecke-dev/bruecke/pkg/transport"
	transporthttp "github.com/bruecke-dev/bruecke/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backend client.
	client, err := native.NewHTTPClient(native.Config{
		BaseURL:          cfg.Backend.BaseURL,
		APIKey:           cfg.Backend.APIKey,
		Timeout:          cfg.Backend.Timeout,
		DefaultMaxTokens: cfg.Backend.DefaultMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}
	defer client.Close()

	// Execution guard and tool handlers.
	g, err := guard.New(guard.Config{
		AllowedRoot:    cfg.Guard.AllowedRoot,
		DeniedCommands: cfg.Guard.DeniedCommands,
		MaxArgBytes:    cfg.Guard.MaxArgBytes,
		CallsPerMinute: cfg.Guard.CallsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("creating guard: %w", err)
	}

	registry := exec.NewRegistry()
	exec.RegisterBuiltins(registry, g)

	// MCP tool servers.
	var mcpClients []*mcp.Client
	for _, srv := range cfg.MCP.Servers {
		c := mcp.NewClient(mcp.ServerConfig{
			Name:      srv.Name,
			URL:       srv.URL,
			Transport: srv.Transport,
			Headers:   srv.Headers,
		})
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := c.Connect(connectCtx)
		cancel()
		if err != nil {
			logger.Warn("mcp server unavailable", "name", srv.Name, "error", err)
			continue
		}
		mcpClients = append(mcpClients, c)
		defer c.Close()
	}
	if len(mcpClients) > 0 {
		defs := mcp.RegisterTools(ctx, registry, logger, mcpClients...)
		logger.Info("mcp tools registered", "servers", len(mcpClients), "tools", len(defs))
	}

	tracker := session.NewTracker(session.Config{
		MaxSessions:        cfg.Session.MaxSessions,
		MaxCallsPerSession: cfg.Session.MaxCallsPerSession,
		IdleTTL:            cfg.Session.IdleTTL,
	}, logger)

	engine := exec.NewEngine(exec.Config{
		Workers:        cfg.Exec.Workers,
		FastTimeout:    cfg.Exec.FastTimeout,
		CommandTimeout: cfg.Exec.CommandTimeout,
		MaxOutputBytes: cfg.Exec.MaxOutputBytes,
	}, registry, g, tracker, logger)

	// Transcript store.
	var store storage.TurnStore
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		store = pg
		logger.Info("storage enabled", "type", "postgres")
	default:
		store = memory.New(cfg.Storage.MaxSize)
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
	}
	defer store.Close()

	b := bridge.New(bridge.Config{
		MaxTurns: cfg.Bridge.MaxTurns,
	}, client, engine, tracker, store, logger)

	authMiddleware, err := buildAuth(cfg, logger)
	if err != nil {
		return err
	}

	srv := transporthttp.NewServer(transporthttp.ServerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Adapter: transporthttp.AdapterConfig{
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
		},
	}, b, store, logger, authMiddleware)

	logger.Info("bruecke starting",
		"port", cfg.Server.Port,
		"backend", cfg.Backend.BaseURL,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type)

	return srv.ListenAndServe(ctx)
}

// buildAuth assembles the auth middleware from configuration.
func buildAuth(cfg *config.Config, logger *slog.Logger) (transport.Middleware, error) {
	chain := &auth.Chain{AllowAnonymous: cfg.Auth.Type == "none"}

	switch cfg.Auth.Type {
	case "none":
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entry := apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
				},
			}
			if k.TenantID != "" {
				entry.Identity.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, entry)
		}
		chain.Authenticators = append(chain.Authenticators, apikey.New(entries))
	case "jwt":
		chain.Authenticators = append(chain.Authenticators, authjwt.New(authjwt.Config{
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			JWKSURL:     cfg.Auth.JWT.JWKSURL,
			UserClaim:   cfg.Auth.JWT.UserClaim,
			TenantClaim: cfg.Auth.JWT.TenantClaim,
			ScopesClaim: cfg.Auth.JWT.ScopesClaim,
		}))
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if cfg.Auth.RateLimit.DefaultRPM > 0 || len(cfg.Auth.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.Auth.RateLimit.Tiers))
		for name, rpm := range cfg.Auth.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.Auth.RateLimit.DefaultRPM)
	}

	return auth.Middleware(chain, limiter, logger, auth.DefaultBypassEndpoints), nil
}
