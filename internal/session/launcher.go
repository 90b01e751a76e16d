package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CommandLauncher runs the external session launcher:
//
//	<path> <project_name> <template_path> <params_file>
type CommandLauncher struct {
	runner  CommandRunner
	path    string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCommandLauncher creates a CommandLauncher.
func NewCommandLauncher(runner CommandRunner, path string, timeout time.Duration, logger zerolog.Logger) *CommandLauncher {
	return &CommandLauncher{
		runner:  runner,
		path:    path,
		timeout: timeout,
		logger:  logger.With().Str("component", "session.launcher").Logger(),
	}
}

// Launch starts the session and returns ErrLaunchFailed on non-zero exit or
// timeout.
func (l *CommandLauncher) Launch(ctx context.Context, project, templatePath, paramsFile string) error {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	l.logger.Info().Str("project", project).Str("template_path", templatePath).Msg("executing session launcher")
	out, err := l.runner.Run(ctx, l.path, project, templatePath, paramsFile)
	if err != nil {
		return commandError(ctx, ErrLaunchFailed, err, out)
	}
	l.logger.Debug().Str("project", project).Str("output", strings.TrimSpace(string(out))).Msg("session launcher finished")
	return nil
}

// CommandMessenger delivers text to a running session:
//
//	<path> <target> <message>
type CommandMessenger struct {
	runner  CommandRunner
	path    string
	timeout time.Duration
}

// NewCommandMessenger creates a CommandMessenger.
func NewCommandMessenger(runner CommandRunner, path string, timeout time.Duration) *CommandMessenger {
	return &CommandMessenger{runner: runner, path: path, timeout: timeout}
}

// Send delivers message to target and returns ErrSendFailed on failure.
func (m *CommandMessenger) Send(ctx context.Context, target, message string) error {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.runner.Run(ctx, m.path, target, message)
	if err != nil {
		return commandError(ctx, ErrSendFailed, err, out)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func commandError(ctx context.Context, kind error, err error, out []byte) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %v", kind, err)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		return fmt.Errorf("%w: %v: %s", kind, err, msg)
	}
	return fmt.Errorf("%w: %v", kind, err)
}
