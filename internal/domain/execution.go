package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionRequest is passed to the sandbox executor, one per (submission, test case).
type ExecutionRequest struct {
	ID               uuid.UUID
	Language         Language
	SourceCode       string
	Stdin            string
	TimeLimitSeconds float64
	// MemoryLimitKB is advisory; zero disables the memory-exceeded check.
	MemoryLimitKB int
}

// Deadline converts the fractional time limit to a duration with millisecond precision.
func (r *ExecutionRequest) Deadline() time.Duration {
	return time.Duration(r.TimeLimitSeconds*1000) * time.Millisecond
}

// ExecutionResult is returned by the sandbox executor after execution completes.
// At most one of TimedOut and CompileFailed is set.
type ExecutionResult struct {
	Stdout         string
	Stderr         string
	TimeUsedMs     int64
	MemoryUsedKB   int64
	ExitCode       int
	TimedOut       bool
	MemoryExceeded bool
	CompileFailed  bool
}
