package mcp

import (
	"context"
	"log/slog"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/exec"
)

// toolHandler adapts one discovered MCP tool to the engine's Handler
// interface. MCP calls go over the network, so they get the command
// timeout budget.
type toolHandler struct {
	name   string
	client *Client
}

func (h *toolHandler) Name() string      { return h.name }
func (h *toolHandler) Class() exec.Class { return exec.ClassCommand }

func (h *toolHandler) Execute(ctx context.Context, args map[string]any) (string, error) {
	return h.client.Call(ctx, h.name, args)
}

// RegisterTools discovers each client's tools and registers them as
// handlers. Name conflicts resolve first-come, first-served, matching
// registry semantics; discovery failure on one server skips it without
// blocking the rest. Returns the merged discovered declarations.
func RegisterTools(ctx context.Context, registry *exec.Registry, logger *slog.Logger, clients ...*Client) []api.ToolDefinition {
	if logger == nil {
		logger = slog.Default()
	}
	var all []api.ToolDefinition
	for _, c := range clients {
		defs, err := c.DiscoverTools(ctx)
		if err != nil {
			logger.Error("MCP tool discovery failed", "server", c.cfg.Name, "error", err)
			continue
		}
		for _, def := range defs {
			registry.Register(&toolHandler{name: def.Function.Name, client: c})
		}
		all = append(all, defs...)
		logger.Info("discovered MCP tools", "server", c.cfg.Name, "count", len(defs))
	}
	return all
}
