package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// waitDelay bounds how long Wait keeps copying output after the process
// group has been killed.
const waitDelay = 2 * time.Second

// exitStatus is what a bounded wait observed about one child process.
type exitStatus struct {
	exitCode int
	elapsed  time.Duration
	timedOut bool
	// maxRSSKB is the peak resident set size reported by wait4.
	maxRSSKB int64
}

// runBounded starts cmd in its own process group and waits at most timeout
// for it. On timeout or ctx cancellation the whole group is killed and the
// wait is drained before returning, so no child outlives the call.
// A non-nil error means the process could not be started, was canceled, or
// its I/O failed.
func runBounded(ctx context.Context, cmd *exec.Cmd, timeout time.Duration) (exitStatus, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return exitStatus{}, fmt.Errorf("start process: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		elapsed := time.Since(start)
		// Reap stragglers the program left in its group.
		killGroup(cmd)
		return collectExit(cmd, err, elapsed)
	case <-timer.C:
		killGroup(cmd)
		<-waitCh
		return exitStatus{timedOut: true, elapsed: timeout, exitCode: -1}, nil
	case <-ctx.Done():
		killGroup(cmd)
		<-waitCh
		return exitStatus{}, ctx.Err()
	}
}

func collectExit(cmd *exec.Cmd, waitErr error, elapsed time.Duration) (exitStatus, error) {
	st := exitStatus{elapsed: elapsed}
	if cmd.ProcessState != nil {
		if ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok && ru != nil {
			st.maxRSSKB = int64(ru.Maxrss) // kilobytes on Linux
		}
	}

	if waitErr == nil {
		return st, nil
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		st.exitCode = cmd.ProcessState.ExitCode()
		return st, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return st, fmt.Errorf("wait process: %w", waitErr)
	}

	st.exitCode = exitErr.ExitCode()
	// Killed by a signal: report it the way a shell does (128 + signal).
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.exitCode = 128 + int(ws.Signal())
	}
	return st, nil
}

// killGroup sends SIGKILL to the process group led by cmd.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
