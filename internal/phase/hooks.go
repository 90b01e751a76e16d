package phase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/delayed"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/prompt"
)

// TestingHook runs alongside the phase 2 transition.
type TestingHook interface {
	Name() string
	// Schedule submits the hook to fire after delay. at is the scheduling
	// instant and keys the unit's marker.
	Schedule(ctx context.Context, project string, delay time.Duration, at time.Time) (delayed.Handle, bool, error)
}

// NewTestingHook builds the hook named by kind ("log" or "none").
func NewTestingHook(kind string, submitter delayed.Submitter, logPath string) (TestingHook, error) {
	switch strings.ToLower(kind) {
	case "", "log":
		return &LogHook{submitter: submitter, logPath: logPath}, nil
	case "none":
		return NoopHook{}, nil
	default:
		return nil, fmt.Errorf("unknown testing hook %q", kind)
	}
}

// LogHook submits a delayed echo announcing the testing server.
type LogHook struct {
	submitter delayed.Submitter
	logPath   string
}

// Name implements TestingHook.
func (h *LogHook) Name() string { return "log" }

// Schedule implements TestingHook.
func (h *LogHook) Schedule(ctx context.Context, project string, delay time.Duration, at time.Time) (delayed.Handle, bool, error) {
	handle, err := h.submitter.Submit(ctx, delayed.Command{
		Delay:   delay,
		Name:    "echo",
		Args:    []string{prompt.Render(prompt.TestingHookMessage, prompt.Vars{prompt.KeyProjectName: project})},
		Marker:  marker(project, 2, KindTestingHook, at),
		LogPath: h.logPath,
	})
	if err != nil {
		return delayed.Handle{}, false, err
	}
	return handle, true, nil
}

// NoopHook does nothing.
type NoopHook struct{}

// Name implements TestingHook.
func (NoopHook) Name() string { return "none" }

// Schedule implements TestingHook.
func (NoopHook) Schedule(context.Context, string, time.Duration, time.Time) (delayed.Handle, bool, error) {
	return delayed.Handle{}, false, nil
}

func marker(project string, phase int, kind string, at time.Time) string {
	return delayed.SanitizeMarker(fmt.Sprintf("ideabrow-%s:%s:%d:%d", kind, project, phase, at.UnixNano()))
}
