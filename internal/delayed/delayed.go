// Package delayed runs an external command after a delay in a detached process
// that outlives the submitting process.
package delayed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotRunning is returned by Cancel when the unit already fired or is gone.
	ErrNotRunning = errors.New("delayed command is not running")
	// ErrUnsupported is returned on platforms without process sessions.
	ErrUnsupported = errors.New("detached commands are not supported on this platform")
)

var markerUnsafe = regexp.MustCompile(`[^A-Za-z0-9._:#-]+`)

// Command is one unit of delayed work.
type Command struct {
	Delay  time.Duration
	Name   string
	Args   []string
	Marker string
	// LogPath receives the command's output; empty discards it.
	LogPath string
}

// Handle identifies a submitted unit.
type Handle struct {
	PID    int       `json:"pid"`
	FireAt time.Time `json:"fire_at"`
	Marker string    `json:"marker"`
}

// Submitter submits, inspects and cancels delayed commands.
type Submitter interface {
	Submit(ctx context.Context, cmd Command) (Handle, error)
	Cancel(h Handle) error
	Pending(h Handle) bool
}

// Spawner starts each command as its own session leader running
// `sleep N && exec cmd args...`.
type Spawner struct {
	shell  string
	now    func() time.Time
	logger zerolog.Logger
}

// Option customises a Spawner.
type Option func(*Spawner)

// WithShell overrides the shell used to wrap the delay (default /bin/sh).
func WithShell(shell string) Option {
	return func(s *Spawner) {
		if shell != "" {
			s.shell = shell
		}
	}
}

// WithClock overrides the clock used for FireAt.
func WithClock(now func() time.Time) Option {
	return func(s *Spawner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSpawner creates a Spawner.
func NewSpawner(logger zerolog.Logger, opts ...Option) *Spawner {
	s := &Spawner{
		shell:  "/bin/sh",
		now:    time.Now,
		logger: logger.With().Str("component", "delayed").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SanitizeMarker strips characters that are unsafe inside a quoted shell word.
func SanitizeMarker(marker string) string {
	return markerUnsafe.ReplaceAllString(marker, "_")
}

// Script returns the shell program used for a command. $0 and $@ carry the
// target command so its arguments never pass through shell parsing.
func Script(marker string, delay time.Duration) string {
	return fmt.Sprintf(": '%s'; sleep %d && exec \"$0\" \"$@\"", SanitizeMarker(marker), delaySeconds(delay))
}

// Submit starts the detached unit and returns immediately.
func (s *Spawner) Submit(ctx context.Context, c Command) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return Handle{}, errors.New("delayed command: name is required")
	}

	marker := SanitizeMarker(c.Marker)
	args := append([]string{"-c", Script(marker, c.Delay), c.Name}, c.Args...)
	cmd := exec.Command(s.shell, args...)

	attr, err := sysProcAttr()
	if err != nil {
		return Handle{}, err
	}
	cmd.SysProcAttr = attr

	var logFile *os.File
	if c.LogPath != "" {
		logFile, err = os.OpenFile(c.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Handle{}, fmt.Errorf("open delayed command log: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	fireAt := s.now().Add(time.Duration(delaySeconds(c.Delay)) * time.Second)
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return Handle{}, fmt.Errorf("start delayed command: %w", err)
	}
	if logFile != nil {
		logFile.Close()
	}

	// Reap the child if we are still alive when it exits; otherwise init adopts it.
	go func() { _ = cmd.Wait() }()

	h := Handle{PID: cmd.Process.Pid, FireAt: fireAt, Marker: marker}
	s.logger.Debug().
		Int("pid", h.PID).
		Str("marker", marker).
		Dur("delay", c.Delay).
		Time("fire_at", fireAt).
		Msg("delayed command submitted")
	return h, nil
}

// Cancel terminates a pending unit. The process group is signalled only when
// its command line still carries the handle's marker, so a recycled pid is
// never touched.
func (s *Spawner) Cancel(h Handle) error {
	if h.PID <= 0 || h.Marker == "" {
		return ErrNotRunning
	}
	cmdline, err := commandLine(h.PID)
	if err != nil || !strings.Contains(cmdline, h.Marker) {
		return ErrNotRunning
	}
	if err := terminateGroup(h.PID); err != nil {
		return fmt.Errorf("terminate delayed command %d: %w", h.PID, err)
	}
	s.logger.Debug().Int("pid", h.PID).Str("marker", h.Marker).Msg("delayed command cancelled")
	return nil
}

// Pending reports whether the unit behind h is still waiting or running.
func (s *Spawner) Pending(h Handle) bool {
	if h.PID <= 0 || h.Marker == "" {
		return false
	}
	cmdline, err := commandLine(h.PID)
	return err == nil && strings.Contains(cmdline, h.Marker)
}

func delaySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
