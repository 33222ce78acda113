// Package executor runs untrusted programs in per-run scratch workspaces
// under a wall-clock deadline. Isolation is delegated to a Backend.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/language"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
)

const (
	// DefaultBuildTimeout bounds compilation independently of the run limit.
	DefaultBuildTimeout = 10 * time.Second

	// timeoutExitCode is reported for runs killed at the deadline.
	timeoutExitCode = 124

	// fallbackRunTimeout applies when a request carries no positive time limit.
	fallbackRunTimeout = 5 * time.Second
)

// Executor compiles and runs one program against one input. It is safe for
// concurrent use; every call owns its own workspace and process group.
type Executor struct {
	backend      Backend
	table        *language.Table
	logger       *zap.Logger
	workRoot     string
	buildTimeout time.Duration
	maxStdout    int
	slots        *semaphore.Weighted
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkRoot sets the directory under which workspaces are created.
// Empty means the system temp directory.
func WithWorkRoot(dir string) Option {
	return func(e *Executor) {
		e.workRoot = dir
	}
}

// WithMaxConcurrent bounds simultaneous executions. Non-positive values
// fall back to the number of CPUs.
func WithMaxConcurrent(n int) Option {
	return func(e *Executor) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		e.slots = semaphore.NewWeighted(int64(n))
	}
}

// WithBuildTimeout overrides DefaultBuildTimeout.
func WithBuildTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.buildTimeout = d
		}
	}
}

// WithMaxStdout overrides DefaultMaxStdoutBytes.
func WithMaxStdout(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxStdout = n
		}
	}
}

// NewExecutor creates an Executor over the given backend and language table.
func NewExecutor(backend Backend, table *language.Table, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		backend:      backend,
		table:        table,
		logger:       logger,
		buildTimeout: DefaultBuildTimeout,
		maxStdout:    DefaultMaxStdoutBytes,
		slots:        semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute builds (if needed) and runs req. It never fails: compile errors,
// timeouts and infrastructure faults are all reported in the result.
func (e *Executor) Execute(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult {
	res := e.execute(ctx, req)
	metrics.ExecutionsTotal.WithLabelValues(string(req.Language), outcomeLabel(res)).Inc()
	return res
}

func (e *Executor) execute(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult {
	profile, err := e.table.Lookup(req.Language)
	if err != nil {
		return executionError(err)
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return executionError(fmt.Errorf("wait for sandbox slot: %w", err))
	}
	defer e.slots.Release(1)
	metrics.SandboxInFlight.Inc()
	defer metrics.SandboxInFlight.Dec()

	workDir, err := os.MkdirTemp(e.workRoot, fmt.Sprintf("judge-%s-*", req.ID.String()))
	if err != nil {
		metrics.SandboxFailures.Inc()
		return executionError(fmt.Errorf("create workspace: %w", err))
	}
	defer e.removeWorkspace(workDir)

	srcPath := filepath.Join(workDir, profile.SourceFile)
	if err := os.WriteFile(srcPath, []byte(req.SourceCode), 0o644); err != nil {
		metrics.SandboxFailures.Inc()
		return executionError(fmt.Errorf("write source: %w", err))
	}

	if profile.HasBuild() {
		if res := e.build(ctx, req, profile, workDir); res != nil {
			return res
		}
	}

	return e.run(ctx, req, profile, workDir)
}

// build compiles the workspace source. A nil result means the artifact is ready.
func (e *Executor) build(ctx context.Context, req *domain.ExecutionRequest, profile language.Profile, workDir string) *domain.ExecutionResult {
	args, err := profile.BuildArgs()
	if err != nil {
		return executionError(err)
	}

	cmd := e.backend.Command(Invocation{WorkDir: workDir, Args: args, Timeout: e.buildTimeout})
	// One buffer for both streams keeps compiler diagnostics in order.
	output := newLimitedBuffer(maxOutputBytes)
	cmd.Stdout = output
	cmd.Stderr = output

	st, err := runBounded(ctx, cmd, e.buildTimeout)
	if err != nil {
		return executionError(fmt.Errorf("build: %w", err))
	}
	if st.timedOut {
		e.logger.Info("Compilation timed out",
			zap.String("request_id", req.ID.String()),
			zap.String("language", string(req.Language)),
			zap.Duration("build_timeout", e.buildTimeout),
		)
		return &domain.ExecutionResult{Stderr: "Compilation timeout", ExitCode: 1, CompileFailed: true}
	}

	diagnostics, _ := e.backend.Inspect(output.Output(), st.exitCode)
	if st.exitCode != 0 {
		return &domain.ExecutionResult{Stderr: diagnostics, ExitCode: st.exitCode, CompileFailed: true}
	}

	if profile.Artifact != "" {
		if _, err := os.Stat(filepath.Join(workDir, profile.Artifact)); err != nil {
			return &domain.ExecutionResult{
				Stderr:        "Compilation succeeded but executable not found: " + profile.Artifact,
				ExitCode:      1,
				CompileFailed: true,
			}
		}
	}
	return nil
}

func (e *Executor) run(ctx context.Context, req *domain.ExecutionRequest, profile language.Profile, workDir string) *domain.ExecutionResult {
	args, err := profile.RunArgs()
	if err != nil {
		return executionError(err)
	}

	deadline := req.Deadline()
	if deadline <= 0 {
		deadline = fallbackRunTimeout
	}

	cmd := e.backend.Command(Invocation{
		WorkDir:       workDir,
		Args:          args,
		Timeout:       deadline,
		MemoryLimitKB: req.MemoryLimitKB,
	})
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}
	stdout, stderr := newLimitedBuffer(e.maxStdout), newLimitedBuffer(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	st, err := runBounded(ctx, cmd, deadline)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			metrics.SandboxFailures.Inc()
		}
		return executionError(err)
	}
	if st.timedOut {
		return &domain.ExecutionResult{
			Stderr:     "Time Limit Exceeded",
			TimeUsedMs: deadline.Milliseconds(),
			ExitCode:   timeoutExitCode,
			TimedOut:   true,
		}
	}

	progStderr, oomKilled := e.backend.Inspect(stderr.String(), st.exitCode)
	res := &domain.ExecutionResult{
		Stdout:       stdout.Output(),
		Stderr:       truncateOutput(progStderr, stderr.truncated),
		TimeUsedMs:   st.elapsed.Milliseconds(),
		MemoryUsedKB: st.maxRSSKB,
		ExitCode:     st.exitCode,
	}
	// Peak RSS is a measurement only; the limit is enforced by the sandbox.
	res.MemoryExceeded = oomKilled

	e.logger.Debug("Execution completed",
		zap.String("request_id", req.ID.String()),
		zap.String("backend", e.backend.Name()),
		zap.Int64("time_ms", res.TimeUsedMs),
		zap.Int64("memory_kb", res.MemoryUsedKB),
		zap.Int("exit_code", res.ExitCode),
	)
	return res
}

func (e *Executor) removeWorkspace(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Debug("Failed to remove workspace", zap.String("dir", dir), zap.Error(err))
	}
}

func executionError(err error) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		Stderr:   "Execution error: " + err.Error(),
		ExitCode: 1,
	}
}

func outcomeLabel(res *domain.ExecutionResult) string {
	switch {
	case res.CompileFailed:
		return "compile_error"
	case res.TimedOut:
		return "timeout"
	case res.MemoryExceeded:
		return "memory_exceeded"
	case res.ExitCode == 0:
		return "ok"
	case strings.HasPrefix(res.Stderr, "Execution error: "):
		return "internal_error"
	default:
		return "runtime_error"
	}
}
