// Package grader drives the sandbox across a problem's test cases and folds
// the per-case results into a single verdict.
package grader

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
)

// Executor runs one program against one input. It never fails; every
// failure is encoded in the returned result.
type Executor interface {
	Execute(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult
}

// Merger produces the final source for a submission.
type Merger interface {
	Merge(ctx context.Context, userCode string, lang domain.Language, problemID int64) (string, error)
}

// Grader implements the grading pipeline. It holds no per-run state.
type Grader struct {
	executor      Executor
	merger        Merger
	logger        *zap.Logger
	limitVerdicts bool
}

// Option configures a Grader.
type Option func(*Grader)

// WithLimitVerdicts selects how limit violations are reported. When on, a
// timed-out case pins TLE and a memory-exceeded case pins MLE. When off,
// both surface as RE like any other abnormal exit.
func WithLimitVerdicts(on bool) Option {
	return func(g *Grader) {
		g.limitVerdicts = on
	}
}

// NewGrader creates a Grader. Limit verdicts are on by default.
func NewGrader(exec Executor, merger Merger, logger *zap.Logger, opts ...Option) *Grader {
	g := &Grader{
		executor:      exec,
		merger:        merger,
		logger:        logger,
		limitVerdicts: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grade runs testCases in order against the submission and returns its verdict.
//
// An empty test case list is accepted without running anything. A compile
// failure stops the run immediately. Runtime errors and wrong answers do not
// stop it, so the report covers every case. If ctx is canceled the remaining
// cases are skipped and the partial verdict is returned together with an
// error wrapping domain.ErrGradingCanceled.
func (g *Grader) Grade(ctx context.Context, sub *domain.Submission, problem *domain.Problem, testCases []domain.TestCase) (*domain.Verdict, error) {
	total := len(testCases)
	if total == 0 {
		// TODO: confirm with problem setters whether an empty case list should still auto-accept.
		g.logger.Warn("Problem has no test cases, auto-accepting",
			zap.Int64("problem_id", problem.ID),
			zap.String("submission_id", sub.ID.String()),
		)
		return &domain.Verdict{Status: domain.StatusAccepted, CaseOutcomes: []domain.CaseOutcome{}}, nil
	}

	source, err := g.merger.Merge(ctx, sub.Code, sub.Language, problem.ID)
	if err != nil {
		return nil, fmt.Errorf("merge template: %w", err)
	}

	v := &domain.Verdict{
		TotalCases:   total,
		CaseOutcomes: make([]domain.CaseOutcome, 0, total),
	}
	var pinned domain.SubmissionStatus
	var canceled error

	for i, tc := range testCases {
		if err := ctx.Err(); err != nil {
			canceled = err
			break
		}
		num := i + 1

		req := &domain.ExecutionRequest{
			ID:               uuid.New(),
			Language:         sub.Language,
			SourceCode:       source,
			Stdin:            tc.Input,
			TimeLimitSeconds: problem.TimeLimitSeconds,
			MemoryLimitKB:    problem.MemoryLimitKB(),
		}
		res := g.executor.Execute(ctx, req)
		metrics.CaseDuration.WithLabelValues(string(sub.Language)).Observe(float64(res.TimeUsedMs) / 1000)

		if res.TimeUsedMs > v.MaxTimeMs {
			v.MaxTimeMs = res.TimeUsedMs
		}

		if res.CompileFailed {
			metrics.CaseOutcomes.WithLabelValues(string(sub.Language), "CE").Inc()
			g.logger.Info("Compilation failed",
				zap.String("submission_id", sub.ID.String()),
				zap.String("language", string(sub.Language)),
			)
			return &domain.Verdict{
				Status:       domain.StatusCompilationError,
				TotalCases:   total,
				MaxTimeMs:    v.MaxTimeMs,
				ErrorMessage: res.Stderr,
				CaseOutcomes: []domain.CaseOutcome{},
			}, nil
		}

		outcome := domain.CaseOutcome{TestCase: num, Hidden: tc.Hidden}
		switch {
		case res.ExitCode != 0:
			outcome.Status = domain.OutcomeRuntimeError
			if pinned == "" {
				pinned = g.failureStatus(res)
				v.ErrorMessage = res.Stderr
			}
		case NormalizeOutput(res.Stdout) != NormalizeOutput(tc.ExpectedOutput):
			outcome.Status = domain.OutcomeFail
			if pinned == "" {
				pinned = domain.StatusWrongAnswer
			}
		default:
			outcome.Status = domain.OutcomePass
			v.CasesPassed++
		}
		v.CaseOutcomes = append(v.CaseOutcomes, outcome)
		metrics.CaseOutcomes.WithLabelValues(string(sub.Language), string(outcome.Status)).Inc()

		g.logger.Debug("Test case finished",
			zap.String("submission_id", sub.ID.String()),
			zap.Int("case", num),
			zap.String("outcome", string(outcome.Status)),
			zap.Int64("time_ms", res.TimeUsedMs),
			zap.Int("exit_code", res.ExitCode),
		)
	}

	switch {
	case v.CasesPassed == total:
		v.Status = domain.StatusAccepted
	case pinned != "":
		v.Status = pinned
	case canceled != nil:
		v.Status = domain.StatusRuntimeError
		v.ErrorMessage = "Execution error: " + canceled.Error()
	default:
		v.Status = domain.StatusWrongAnswer
	}
	v.Score = int(math.Round(float64(v.CasesPassed) * 100 / float64(total)))

	metrics.Verdicts.WithLabelValues(string(sub.Language), string(v.Status)).Inc()

	if canceled != nil {
		return v, fmt.Errorf("%w after %d of %d cases: %v", domain.ErrGradingCanceled, len(v.CaseOutcomes), total, canceled)
	}
	return v, nil
}

func (g *Grader) failureStatus(res *domain.ExecutionResult) domain.SubmissionStatus {
	if g.limitVerdicts {
		if res.TimedOut {
			return domain.StatusTimeLimitExceeded
		}
		if res.MemoryExceeded {
			return domain.StatusMemoryLimitExceeded
		}
	}
	return domain.StatusRuntimeError
}

// NormalizeOutput strips trailing line terminators only. Interior and
// trailing spaces are significant.
func NormalizeOutput(s string) string {
	return strings.TrimRight(s, "\r\n")
}
