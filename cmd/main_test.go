package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/delayed"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/session"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	commands []delayed.Command
}

func (f *fakeSubmitter) Submit(_ context.Context, c delayed.Command) (delayed.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, c)
	return delayed.Handle{PID: 1000 + len(f.commands), FireAt: time.Now().Add(c.Delay), Marker: c.Marker}, nil
}

func (f *fakeSubmitter) Cancel(delayed.Handle) error { return nil }

func (f *fakeSubmitter) Pending(delayed.Handle) bool { return true }

func (f *fakeSubmitter) submitted() []delayed.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delayed.Command(nil), f.commands...)
}

// stubCollaborators swaps the process-spawning constructors for fakes.
func stubCollaborators(t *testing.T) (*session.MockCommandRunner, *fakeSubmitter) {
	t.Helper()
	runner := session.NewMockCommandRunner()
	submitter := &fakeSubmitter{}

	prevRunner, prevSubmitter, prevDotEnv := newRunner, newSubmitter, loadDotEnv
	newRunner = func() session.CommandRunner { return runner }
	newSubmitter = func(zerolog.Logger) delayed.Submitter { return submitter }
	loadDotEnv = func(...string) error { return nil }
	t.Cleanup(func() {
		newRunner, newSubmitter, loadDotEnv = prevRunner, prevSubmitter, prevDotEnv
	})
	return runner, submitter
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STATE_DIR", t.TempDir())
	t.Setenv("WEBHOOK_HOST", "127.0.0.1")
	t.Setenv("WEBHOOK_PORT", "4321")
	t.Setenv("SESSION_LAUNCHER", "/opt/launch.sh")
	t.Setenv("MESSAGE_SENDER", "/opt/send.sh")
	t.Setenv("TESTING_HOOK", "none")
	t.Setenv("SETTLE_DELAY", "0s")
	t.Setenv("DISPATCHER_WORKERS", "1")
	t.Setenv("DISPATCHER_QUEUE_SIZE", "4")
	t.Setenv("LOG_LEVEL", "disabled")
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("PHASE_PLAN_FILE", "")
	t.Setenv("TEMPLATE_CATALOG", "")
}

func TestRun_StartsServerWithValidConfig(t *testing.T) {
	setRequiredEnv(t)
	runner, submitter := stubCollaborators(t)

	var servedAddr string
	serve := func(addr string, handler http.Handler) error {
		servedAddr = addr

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"healthy"`)

		rec = httptest.NewRecorder()
		body := strings.NewReader(`{"project_name":"Demo App","requirements_summary":"build a blog","timestamp":"t1"}`)
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", body))
		assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "orchestrator_webhook_requests_total")
		return nil
	}

	require.NoError(t, run(context.Background(), serve))
	assert.Equal(t, "127.0.0.1:4321", servedAddr)

	// run drains the dispatcher before returning
	calls := runner.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "/opt/launch.sh", calls[0].Name)
	require.NotEmpty(t, calls[0].Args)
	assert.Equal(t, "demo-app", calls[0].Args[0])

	var delays []time.Duration
	for _, c := range submitter.submitted() {
		delays = append(delays, c.Delay)
	}
	assert.Equal(t, []time.Duration{15 * time.Minute, 45 * time.Minute, 75 * time.Minute, 95 * time.Minute}, delays)
}

func TestRun_ReturnsErrorWhenServeFails(t *testing.T) {
	setRequiredEnv(t)
	stubCollaborators(t)

	expected := errors.New("listen failed")
	err := run(context.Background(), func(string, http.Handler) error {
		return expected
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, expected)
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"zero cooldown", "COOLDOWN_MINUTES", "0", "failed to load configuration"},
		{"unknown selector", "TEMPLATE_SELECTOR", "llm", "failed to load configuration"},
		{"missing phase plan", "PHASE_PLAN_FILE", "/nonexistent/phases.yaml", "failed to load phase plan"},
		{"missing catalog", "TEMPLATE_CATALOG", "/nonexistent/templates.yaml", "failed to load template catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			stubCollaborators(t)
			t.Setenv(tt.key, tt.value)

			called := false
			err := run(context.Background(), func(string, http.Handler) error {
				called = true
				return nil
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.False(t, called, "serve should not be called when setup fails")
		})
	}
}
