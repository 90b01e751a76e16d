package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/adminclient"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

type fakeAdmin struct {
	err error

	rescheduled []RescheduleParams
	cleanupDays []int
	statusFor   []string
}

func (f *fakeAdmin) State(context.Context) (state.Snapshot, error) {
	return state.Snapshot{ProcessedRequests: 2, CooldownMinutes: 5, ActiveCooldowns: map[string]float64{"demo": 4}}, f.err
}

func (f *fakeAdmin) Status(_ context.Context, project string) (adminclient.Status, error) {
	f.statusFor = append(f.statusFor, project)
	return adminclient.Status{ProjectName: project, InCooldown: true}, f.err
}

func (f *fakeAdmin) Reschedule(_ context.Context, project string, n int, delay float64) (phase.Transition, error) {
	f.rescheduled = append(f.rescheduled, RescheduleParams{ProjectName: project, Phase: n, DelayMinutes: delay})
	return phase.Transition{Project: project, Phase: n, Kind: phase.KindPhase}, f.err
}

func (f *fakeAdmin) Cleanup(_ context.Context, days int) (adminclient.CleanupResult, error) {
	f.cleanupDays = append(f.cleanupDays, days)
	return adminclient.CleanupResult{Status: "cleaned", Days: days}, f.err
}

func (f *fakeAdmin) Phases(context.Context) ([]phase.Offset, error) {
	return phase.DefaultPlan().Offsets(), f.err
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestHandleState(t *testing.T) {
	ts := newToolset(&fakeAdmin{}, zerolog.Nop())

	res, _, err := ts.HandleState(context.Background(), nil, NoParams{})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var snap state.Snapshot
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &snap))
	assert.Equal(t, 2, snap.ProcessedRequests)
	assert.Equal(t, 4.0, snap.ActiveCooldowns["demo"])
}

func TestHandleProjectStatus(t *testing.T) {
	api := &fakeAdmin{}
	ts := newToolset(api, zerolog.Nop())

	_, _, err := ts.HandleProjectStatus(context.Background(), nil, ProjectStatusParams{ProjectName: "  "})
	require.Error(t, err)

	res, _, err := ts.HandleProjectStatus(context.Background(), nil, ProjectStatusParams{ProjectName: " demo "})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), `"in_cooldown": true`)
	assert.Equal(t, []string{"demo"}, api.statusFor)
}

func TestHandleReschedule_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params RescheduleParams
	}{
		{"missing project", RescheduleParams{Phase: 3, DelayMinutes: 5}},
		{"zero phase", RescheduleParams{ProjectName: "demo", DelayMinutes: 5}},
		{"negative delay", RescheduleParams{ProjectName: "demo", Phase: 3, DelayMinutes: -1}},
		{"delay beyond maximum", RescheduleParams{ProjectName: "demo", Phase: 3, DelayMinutes: 1e300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAdmin{}
			ts := newToolset(api, zerolog.Nop())
			_, _, err := ts.HandleReschedule(context.Background(), nil, tt.params)
			require.Error(t, err)
			assert.Empty(t, api.rescheduled)
		})
	}
}

func TestHandleReschedule(t *testing.T) {
	api := &fakeAdmin{}
	ts := newToolset(api, zerolog.Nop())

	res, _, err := ts.HandleReschedule(context.Background(), nil, RescheduleParams{ProjectName: "demo", Phase: 4, DelayMinutes: 2.5})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []RescheduleParams{{ProjectName: "demo", Phase: 4, DelayMinutes: 2.5}}, api.rescheduled)
}

func TestHandleCleanup(t *testing.T) {
	api := &fakeAdmin{}
	ts := newToolset(api, zerolog.Nop())

	_, _, err := ts.HandleCleanup(context.Background(), nil, CleanupParams{Days: -2})
	require.Error(t, err)
	_, _, err = ts.HandleCleanup(context.Background(), nil, CleanupParams{Days: 200000})
	require.Error(t, err)
	assert.Empty(t, api.cleanupDays)

	res, _, err := ts.HandleCleanup(context.Background(), nil, CleanupParams{})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), `"status": "cleaned"`)
	assert.Equal(t, []int{0}, api.cleanupDays)
}

func TestHandleListPhases(t *testing.T) {
	ts := newToolset(&fakeAdmin{}, zerolog.Nop())

	res, _, err := ts.HandleListPhases(context.Background(), nil, NoParams{})
	require.NoError(t, err)

	var body struct {
		Phases []phase.Offset `json:"phases"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &body))
	require.Len(t, body.Phases, phase.DefaultPlan().Len())
	assert.Equal(t, 0, body.Phases[0].StartOffsetMinutes)
}

func TestAPIErrorsBecomeToolErrors(t *testing.T) {
	ts := newToolset(&fakeAdmin{err: &adminclient.APIError{StatusCode: 401, Message: "invalid token"}}, zerolog.Nop())

	res, _, err := ts.HandleState(context.Background(), nil, NoParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "invalid token")

	res, _, err = ts.HandleListPhases(context.Background(), nil, NoParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	assert.NotPanics(t, func() { registerTools(server, newToolset(&fakeAdmin{}, zerolog.Nop())) })
}
