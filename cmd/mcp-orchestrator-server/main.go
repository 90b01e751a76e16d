// Command mcp-orchestrator-server exposes the orchestrator's admin operations
// as MCP tools over stdio.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/adminclient"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/config"
)

const serverVersion = "v1.0.0"

func main() {
	// stdout carries the MCP stream
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "mcp-orchestrator").Logger()

	_ = godotenv.Load()
	cfg, err := config.LoadClient()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load client configuration")
	}
	logger.Info().Str("orchestrator_url", cfg.BaseURL).Str("version", serverVersion).Msg("starting orchestrator MCP server")

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "orchestrator-admin",
		Version: serverVersion,
	}, nil)
	registerTools(server, newToolset(adminclient.New(cfg), logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

func registerTools(server *mcp.Server, ts *toolset) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "orchestrator_state",
		Description: "Show processed request count, cooldown window and projects currently in cooldown",
	}, ts.HandleState)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "project_status",
		Description: "Show whether a project has a live session, its cooldown and its scheduled phase transitions",
	}, ts.HandleProjectStatus)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reschedule_phase",
		Description: "Replace a project's pending phase transition with one that fires after delay_minutes",
	}, ts.HandleReschedule)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cleanup_state",
		Description: "Remove dedup, cooldown and run records older than the given number of days",
	}, ts.HandleCleanup)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_phases",
		Description: "List the phase plan with each phase's duration and start offset",
	}, ts.HandleListPhases)
}
