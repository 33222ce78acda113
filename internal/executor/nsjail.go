package executor

import (
	"fmt"
	"math"
	"os/exec"
	"path"
	"strings"
)

// jailWorkDir is where the workspace is mounted inside the jail.
const jailWorkDir = "/tmp/work"

// NsjailBackend runs programs inside an nsjail sandbox. The config file
// supplies mounts, uid mapping and rlimits; the backend adds the workspace
// bind mount and per-invocation limits.
type NsjailBackend struct {
	nsjailPath string
	configPath string
}

// NewNsjailBackend creates a backend using the nsjail binary and config at the given paths.
func NewNsjailBackend(nsjailPath, configPath string) *NsjailBackend {
	return &NsjailBackend{
		nsjailPath: nsjailPath,
		configPath: configPath,
	}
}

func (b *NsjailBackend) Name() string { return "nsjail" }

func (b *NsjailBackend) Command(inv Invocation) *exec.Cmd {
	cmd := exec.Command(b.nsjailPath, b.args(inv)...)
	cmd.Dir = inv.WorkDir
	return cmd
}

func (b *NsjailBackend) args(inv Invocation) []string {
	args := []string{
		"--config", b.configPath,
		"--bindmount", inv.WorkDir + ":" + jailWorkDir,
		"--cwd", jailWorkDir,
		"--time_limit", fmt.Sprintf("%d", int(math.Ceil(inv.Timeout.Seconds()))+1),
	}
	if inv.MemoryLimitKB > 0 {
		args = append(args, "--cgroup_mem_max", fmt.Sprintf("%d", inv.MemoryLimitKB*1024))
	}
	args = append(args, "--")

	// nsjail execs argv[0] directly, so it must be an absolute path.
	name := inv.Args[0]
	switch {
	case isWorkspacePath(name):
		name = path.Join(jailWorkDir, name)
	case !path.IsAbs(name):
		if resolved, err := exec.LookPath(name); err == nil {
			name = resolved
		}
	}
	args = append(args, name)
	return append(args, inv.Args[1:]...)
}

func (b *NsjailBackend) Inspect(rawStderr string, exitCode int) (string, bool) {
	progStderr, nsjailLog := separateNsjailLogs(rawStderr)
	return progStderr, isOOMKill(exitCode, nsjailLog)
}

// separateNsjailLogs splits nsjail log lines from the user program's stderr.
// nsjail logs are prefixed with bracketed tags like [I], [W], [E], [F], [D].
func separateNsjailLogs(rawStderr string) (programStderr, nsjailLogs string) {
	if rawStderr == "" {
		return "", ""
	}

	var progLines, logLines []string
	for _, line := range strings.Split(rawStderr, "\n") {
		if isNsjailLogLine(strings.TrimSpace(line)) {
			logLines = append(logLines, line)
		} else {
			progLines = append(progLines, line)
		}
	}

	return strings.Join(progLines, "\n"), strings.Join(logLines, "\n")
}

func isNsjailLogLine(line string) bool {
	for _, prefix := range []string{"[I]", "[W]", "[E]", "[F]", "[D]"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// isOOMKill reports whether the jailed process was killed by the memory
// cgroup. A SIGKILL exit alone is not enough: the program may have killed
// itself, so nsjail must also have logged the cgroup event.
func isOOMKill(exitCode int, nsjailLog string) bool {
	if exitCode == 0 {
		return false
	}
	lowerLog := strings.ToLower(nsjailLog)
	return strings.Contains(lowerLog, "oom") ||
		strings.Contains(lowerLog, "memory cgroup") ||
		strings.Contains(lowerLog, "cgroup_mem")
}
