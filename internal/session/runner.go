package session

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// CommandRunner executes external commands.
type CommandRunner interface {
	// Run executes name with args and returns the combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. The context bounds the run.
type ExecRunner struct{}

// Run executes a command using os/exec.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// children that inherit the output pipe must not outlive the deadline
	cmd.WaitDelay = time.Second
	return cmd.CombinedOutput()
}

// MockCommandRunner records invocations and returns canned responses.
type MockCommandRunner struct {
	// RunFunc is called when Run is invoked
	RunFunc func(name string, args ...string) ([]byte, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation.
type MockCall struct {
	Name string
	Args []string
}

// NewMockCommandRunner creates a mock that succeeds with empty output.
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{}
}

// Run records the call and delegates to RunFunc.
func (m *MockCommandRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Name: name, Args: append([]string(nil), args...)})
	fn := m.RunFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(name, args...)
	}
	return []byte(""), nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockCommandRunner) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
