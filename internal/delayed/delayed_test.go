//go:build unix

package delayed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScript(t *testing.T) {
	script := Script("proj:phase2", 15*time.Minute)
	assert.Equal(t, `: 'proj:phase2'; sleep 900 && exec "$0" "$@"`, script)

	assert.Contains(t, Script("x", 1500*time.Millisecond), "sleep 2 ")
	assert.Contains(t, Script("x", -time.Second), "sleep 0 ")
}

func TestSanitizeMarker(t *testing.T) {
	assert.Equal(t, "demo:phase_2", SanitizeMarker("demo:phase 2"))
	assert.Equal(t, "a_b", SanitizeMarker("a';b"))
}

func TestSubmit_RequiresName(t *testing.T) {
	s := NewSpawner(zerolog.Nop())
	_, err := s.Submit(context.Background(), Command{Delay: time.Second})
	require.Error(t, err)
}

func TestSubmit_CancelledContext(t *testing.T) {
	s := NewSpawner(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, Command{Name: "true"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmit_FiresCommandWithArgs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "fired.txt")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSpawner(zerolog.Nop(), WithClock(func() time.Time { return now }))

	h, err := s.Submit(context.Background(), Command{
		Delay:  0,
		Name:   "/bin/sh",
		Args:   []string{"-c", `printf '%s' "$1" > "$2"`, "sh", "hello world; $(not run)", out},
		Marker: "test:fire",
	})
	require.NoError(t, err)
	assert.Greater(t, h.PID, 0)
	assert.Equal(t, now, h.FireAt)
	assert.Equal(t, "test:fire", h.Marker)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && string(data) == "hello world; $(not run)"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSubmit_WritesLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "delayed.log")
	s := NewSpawner(zerolog.Nop())

	_, err := s.Submit(context.Background(), Command{
		Name:    "echo",
		Args:    []string{"Starting testing server for demo"},
		Marker:  "test:log",
		LogPath: logPath,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), "Starting testing server for demo")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCancel_TerminatesPendingUnit(t *testing.T) {
	s := NewSpawner(zerolog.Nop())
	h, err := s.Submit(context.Background(), Command{
		Delay:  time.Hour,
		Name:   "true",
		Marker: "test:cancel",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Pending(h) }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Cancel(h))

	assert.Eventually(t, func() bool { return !s.Pending(h) }, 5*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, s.Cancel(h), ErrNotRunning)
}

func TestCancel_WrongMarkerLeavesProcessAlone(t *testing.T) {
	s := NewSpawner(zerolog.Nop())
	h, err := s.Submit(context.Background(), Command{
		Delay:  time.Hour,
		Name:   "true",
		Marker: "test:keep",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Cancel(h) })

	require.Eventually(t, func() bool { return s.Pending(h) }, 5*time.Second, 20*time.Millisecond)

	other := Handle{PID: h.PID, Marker: "test:someone-else"}
	assert.ErrorIs(t, s.Cancel(other), ErrNotRunning)
	assert.True(t, s.Pending(h))
}

func TestCancel_InvalidHandle(t *testing.T) {
	s := NewSpawner(zerolog.Nop())
	assert.ErrorIs(t, s.Cancel(Handle{}), ErrNotRunning)
	assert.False(t, s.Pending(Handle{PID: 1}))
}
