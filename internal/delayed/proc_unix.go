//go:build unix

package delayed

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func sysProcAttr() (*syscall.SysProcAttr, error) {
	return &syscall.SysProcAttr{Setsid: true}, nil
}

// commandLine reads the argv of pid from /proc, falling back to ps where /proc
// is unavailable.
func commandLine(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err == nil {
		return string(bytes.ReplaceAll(data, []byte{0}, []byte{' '})), nil
	}
	if _, statErr := os.Stat("/proc/self"); statErr == nil {
		return "", err
	}
	out, psErr := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "command=").Output()
	if psErr != nil {
		return "", psErr
	}
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", ErrNotRunning
	}
	return line, nil
}

func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
