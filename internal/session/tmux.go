package session

import "context"

// TmuxProber asks tmux whether a session exists.
type TmuxProber struct {
	runner CommandRunner
	bin    string
}

// NewTmuxProber creates a TmuxProber. An empty bin means "tmux".
func NewTmuxProber(runner CommandRunner, bin string) *TmuxProber {
	if bin == "" {
		bin = "tmux"
	}
	return &TmuxProber{runner: runner, bin: bin}
}

// HasSession reports whether `tmux has-session -t name` succeeds.
func (p *TmuxProber) HasSession(ctx context.Context, name string) bool {
	_, err := p.runner.Run(ctx, p.bin, "has-session", "-t", name)
	return err == nil
}
