package executor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Invocation describes one child process to launch inside a workspace.
type Invocation struct {
	WorkDir string
	// Args are relative to WorkDir; a "./" prefix on Args[0] names a workspace file.
	Args []string
	// Timeout is the wall-clock budget the executor enforces. Backends may
	// pass it on as a coarse secondary limit.
	Timeout time.Duration
	// MemoryLimitKB is zero when no memory cap applies.
	MemoryLimitKB int
}

// Backend turns an invocation into a runnable command. Backends are
// stateless and shared by every run.
type Backend interface {
	Name() string

	// Command builds the process to start. Process-group setup, I/O and
	// waiting are handled by the executor.
	Command(inv Invocation) *exec.Cmd

	// Inspect separates backend diagnostics from the program's stderr and
	// reports whether the process was killed for exceeding its memory cap.
	Inspect(rawStderr string, exitCode int) (stderr string, oomKilled bool)
}

// NewBackend selects a backend by name: "native" or "nsjail".
func NewBackend(name, nsjailPath, nsjailConfig string) (Backend, error) {
	switch strings.ToLower(name) {
	case "native", "":
		return NewNativeBackend(), nil
	case "nsjail":
		return NewNsjailBackend(nsjailPath, nsjailConfig), nil
	default:
		return nil, fmt.Errorf("executor: unknown backend %q", name)
	}
}

// NativeBackend runs programs as plain host child processes.
type NativeBackend struct{}

// NewNativeBackend creates a NativeBackend.
func NewNativeBackend() *NativeBackend {
	return &NativeBackend{}
}

func (b *NativeBackend) Name() string { return "native" }

func (b *NativeBackend) Command(inv Invocation) *exec.Cmd {
	name := inv.Args[0]
	if isWorkspacePath(name) {
		name = filepath.Join(inv.WorkDir, name)
	}
	cmd := exec.Command(name, inv.Args[1:]...)
	cmd.Dir = inv.WorkDir
	return cmd
}

func (b *NativeBackend) Inspect(rawStderr string, _ int) (string, bool) {
	return rawStderr, false
}

func isWorkspacePath(name string) bool {
	return strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../")
}
