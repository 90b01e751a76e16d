package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/adminclient"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

// adminAPI is the subset of adminclient.Client the tools call.
type adminAPI interface {
	State(ctx context.Context) (state.Snapshot, error)
	Status(ctx context.Context, project string) (adminclient.Status, error)
	Reschedule(ctx context.Context, project string, phaseNum int, delayMinutes float64) (phase.Transition, error)
	Cleanup(ctx context.Context, days int) (adminclient.CleanupResult, error)
	Phases(ctx context.Context) ([]phase.Offset, error)
}

// NoParams is the input of tools that take no arguments.
type NoParams struct{}

// ProjectStatusParams is the project_status input.
type ProjectStatusParams struct {
	ProjectName string `json:"project_name" jsonschema:"Normalized project name, e.g. my-cool-app"`
}

// RescheduleParams is the reschedule_phase input.
type RescheduleParams struct {
	ProjectName  string  `json:"project_name" jsonschema:"Normalized project name"`
	Phase        int     `json:"phase" jsonschema:"Phase number to re-deliver (2 or later)"`
	DelayMinutes float64 `json:"delay_minutes" jsonschema:"Minutes from now until the phase message is sent"`
}

// CleanupParams is the cleanup_state input.
type CleanupParams struct {
	Days int `json:"days,omitempty" jsonschema:"Retention in days; omit to use the server default"`
}

type toolset struct {
	api    adminAPI
	logger zerolog.Logger
}

func newToolset(api adminAPI, logger zerolog.Logger) *toolset {
	return &toolset{api: api, logger: logger}
}

// HandleState handles orchestrator_state.
func (ts *toolset) HandleState(ctx context.Context, _ *mcp.CallToolRequest, _ NoParams) (*mcp.CallToolResult, any, error) {
	snap, err := ts.api.State(ctx)
	return ts.result("orchestrator_state", snap, err)
}

// HandleProjectStatus handles project_status.
func (ts *toolset) HandleProjectStatus(ctx context.Context, _ *mcp.CallToolRequest, params ProjectStatusParams) (*mcp.CallToolResult, any, error) {
	project := strings.TrimSpace(params.ProjectName)
	if project == "" {
		return nil, nil, fmt.Errorf("project_name parameter is required")
	}
	st, err := ts.api.Status(ctx, project)
	return ts.result("project_status", st, err)
}

// HandleReschedule handles reschedule_phase.
func (ts *toolset) HandleReschedule(ctx context.Context, _ *mcp.CallToolRequest, params RescheduleParams) (*mcp.CallToolResult, any, error) {
	project := strings.TrimSpace(params.ProjectName)
	switch {
	case project == "":
		return nil, nil, fmt.Errorf("project_name parameter is required")
	case params.Phase < 1:
		return nil, nil, fmt.Errorf("phase must be a positive phase number")
	case params.DelayMinutes < 0 || params.DelayMinutes > phase.MaxRescheduleDelay.Minutes():
		return nil, nil, fmt.Errorf("delay_minutes must be between 0 and %.0f", phase.MaxRescheduleDelay.Minutes())
	}
	t, err := ts.api.Reschedule(ctx, project, params.Phase, params.DelayMinutes)
	return ts.result("reschedule_phase", t, err)
}

// HandleCleanup handles cleanup_state.
func (ts *toolset) HandleCleanup(ctx context.Context, _ *mcp.CallToolRequest, params CleanupParams) (*mcp.CallToolResult, any, error) {
	if params.Days < 0 || params.Days > state.MaxRetentionDays {
		return nil, nil, fmt.Errorf("days must be between 0 and %d", state.MaxRetentionDays)
	}
	res, err := ts.api.Cleanup(ctx, params.Days)
	return ts.result("cleanup_state", res, err)
}

// HandleListPhases handles list_phases.
func (ts *toolset) HandleListPhases(ctx context.Context, _ *mcp.CallToolRequest, _ NoParams) (*mcp.CallToolResult, any, error) {
	phases, err := ts.api.Phases(ctx)
	return ts.result("list_phases", map[string]any{"phases": phases}, err)
}

// result reports API failures as tool errors so the model sees them, and
// successes as indented JSON text.
func (ts *toolset) result(tool string, v any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		ts.logger.Error().Err(err).Str("tool", tool).Msg("admin API call failed")
		return errorResult(err), nil, nil
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	ts.logger.Info().Str("tool", tool).Msg("tool call succeeded")
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}
