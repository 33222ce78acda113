package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

const (
	defaultMaxSourceBytes = 1 << 20 // 1 MB
	defaultLockTTL        = 5 * time.Minute
	defaultBuildTimeout   = 10 * time.Second

	// Per-case allowances used to size the judging lock: the executor's
	// fallback deadline for problems without a time limit, and the time it
	// may spend draining output after killing a process group.
	fallbackCaseTimeout = 5 * time.Second
	caseOverhead        = 2 * time.Second

	// cancelGrace bounds how long a canceled caller waits for the grading
	// goroutine to kill its sandbox and report the partial verdict.
	cancelGrace = 5 * time.Second
)

// Grader turns a submission and its problem into a verdict.
type Grader interface {
	Grade(ctx context.Context, sub *domain.Submission, problem *domain.Problem, testCases []domain.TestCase) (*domain.Verdict, error)
}

// JudgeService runs submissions through the grader and records their
// lifecycle in the submission store.
type JudgeService struct {
	problems    repository.ProblemStore
	submissions repository.SubmissionStore
	lock        repository.JudgingLock
	grader      Grader
	publisher   repository.JobPublisher
	logger      *zap.Logger

	lockTTL        time.Duration
	buildTimeout   time.Duration
	maxSourceBytes int
}

// Option configures a JudgeService.
type Option func(*JudgeService)

// WithLockTTL sets how long a judging lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *JudgeService) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithBuildTimeout tells the service how long one build may take, so the
// judging lock outlives the slowest possible run.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *JudgeService) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

// WithMaxSourceBytes caps the accepted source size.
func WithMaxSourceBytes(n int) Option {
	return func(s *JudgeService) {
		if n > 0 {
			s.maxSourceBytes = n
		}
	}
}

// WithPublisher enables Enqueue. Without it Enqueue fails with ErrPublishFailed.
func WithPublisher(p repository.JobPublisher) Option {
	return func(s *JudgeService) {
		s.publisher = p
	}
}

// NewJudgeService creates a JudgeService.
func NewJudgeService(
	problems repository.ProblemStore,
	submissions repository.SubmissionStore,
	lock repository.JudgingLock,
	grader Grader,
	logger *zap.Logger,
	opts ...Option,
) *JudgeService {
	s := &JudgeService{
		problems:       problems,
		submissions:    submissions,
		lock:           lock,
		grader:         grader,
		logger:         logger,
		lockTTL:        defaultLockTTL,
		buildTimeout:   defaultBuildTimeout,
		maxSourceBytes: defaultMaxSourceBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JudgeService) validate(code string, lang domain.Language) error {
	if !lang.IsValid() {
		return domain.ErrUnsupportedLanguage
	}
	if strings.TrimSpace(code) == "" {
		return domain.ErrEmptySourceCode
	}
	if len(code) > s.maxSourceBytes {
		return domain.ErrPayloadTooLarge
	}
	return nil
}

// GradeSubmission grades code synchronously and stores the result as the
// user's submission for the problem, replacing any previous one.
//
// When ctx is canceled mid-run the partial verdict is still stored and
// returned along with an error wrapping domain.ErrGradingCanceled.
func (s *JudgeService) GradeSubmission(ctx context.Context, userID, problemID int64, code string, lang domain.Language) (*domain.Submission, error) {
	if err := s.validate(code, lang); err != nil {
		return nil, err
	}

	problem, err := s.problems.GetProblem(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}

	release, err := s.acquire(ctx, userID, problem)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.prepare(ctx, userID, problemID, code, lang)
	if err != nil {
		return nil, err
	}
	if err := s.submissions.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}

	return s.judge(ctx, sub, problem)
}

// TestCode grades code exactly like GradeSubmission but stores nothing and
// takes no lock.
func (s *JudgeService) TestCode(ctx context.Context, userID, problemID int64, code string, lang domain.Language) (*domain.Submission, error) {
	if err := s.validate(code, lang); err != nil {
		return nil, err
	}

	problem, err := s.problems.GetProblem(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}

	sub, err := domain.NewSubmission(userID, problemID, code, lang)
	if err != nil {
		return nil, err
	}
	if err := sub.StartJudging(); err != nil {
		return nil, err
	}

	verdict, gradeErr := s.runGrader(ctx, sub, problem)
	if err := sub.Complete(verdict); err != nil {
		return nil, err
	}

	s.logger.Info("Dry run judged",
		zap.String("submission_id", sub.ID.String()),
		zap.Int64("problem_id", problemID),
		zap.String("status", string(verdict.Status)),
	)
	return sub, gradeErr
}

// Enqueue stores a PENDING submission and publishes a job for the worker
// fleet. The caller polls GetSubmission for the verdict.
func (s *JudgeService) Enqueue(ctx context.Context, userID, problemID int64, code string, lang domain.Language) (*domain.Submission, error) {
	if err := s.validate(code, lang); err != nil {
		return nil, err
	}
	if s.publisher == nil {
		return nil, domain.ErrPublishFailed
	}

	if _, err := s.problems.GetProblem(ctx, problemID); err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}

	existing, err := s.submissions.FindByUserAndProblem(ctx, userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	if existing != nil && existing.Status == domain.StatusJudging {
		return nil, domain.ErrAlreadyJudging
	}

	sub, err := s.fresh(existing, userID, problemID, code, lang)
	if err != nil {
		return nil, err
	}
	if err := s.submissions.Save(ctx, sub); err != nil {
		s.logger.Error("Failed to save submission", zap.Error(err), zap.String("submission_id", sub.ID.String()))
		return nil, fmt.Errorf("save submission: %w", err)
	}

	job := &domain.GradeJob{
		SubmissionID: sub.ID,
		UserID:       userID,
		ProblemID:    problemID,
		Language:     lang,
		EnqueuedAt:   time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		s.logger.Error("Failed to publish grade job", zap.Error(err), zap.String("submission_id", sub.ID.String()))
		s.failUnpublished(ctx, sub)
		return nil, domain.ErrPublishFailed
	}

	s.logger.Info("Submission queued",
		zap.String("submission_id", sub.ID.String()),
		zap.Int64("problem_id", problemID),
		zap.String("language", string(lang)),
	)
	return sub, nil
}

// failUnpublished finishes a submission whose job never reached the broker,
// so it does not sit in PENDING forever.
func (s *JudgeService) failUnpublished(ctx context.Context, sub *domain.Submission) {
	v := &domain.Verdict{
		Status:       domain.StatusRuntimeError,
		ErrorMessage: "Execution error: " + domain.ErrPublishFailed.Error(),
		CaseOutcomes: []domain.CaseOutcome{},
	}
	if err := s.submissions.SetVerdict(context.WithoutCancel(ctx), sub.ID, v); err != nil {
		s.logger.Warn("Failed to mark unpublished submission", zap.Error(err), zap.String("submission_id", sub.ID.String()))
	}
}

// ProcessJob grades a queued submission. It reports skipped=true when the
// job needs no work: the submission is gone, already has a verdict, or is
// being judged elsewhere.
func (s *JudgeService) ProcessJob(ctx context.Context, job *domain.GradeJob) (bool, error) {
	sub, err := s.submissions.GetByID(ctx, job.SubmissionID)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		s.logger.Info("Queued submission no longer exists, skipping", zap.String("submission_id", job.SubmissionID.String()))
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get submission: %w", err)
	}
	if sub.Status.IsTerminal() {
		s.logger.Info("Duplicate grade job detected, skipping",
			zap.String("submission_id", sub.ID.String()),
			zap.String("status", string(sub.Status)),
		)
		return true, nil
	}

	problem, err := s.problems.GetProblem(ctx, sub.ProblemID)
	if err != nil {
		return false, fmt.Errorf("get problem: %w", err)
	}

	release, err := s.acquire(ctx, sub.UserID, problem)
	if errors.Is(err, domain.ErrAlreadyJudging) {
		s.logger.Info("Submission is being judged elsewhere, skipping", zap.String("submission_id", sub.ID.String()))
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer release()

	// A crashed worker can leave the row in JUDGING; we hold the lock now,
	// so restart it from PENDING.
	if sub.Status == domain.StatusJudging {
		sub.Status = domain.StatusPending
	}

	if _, err := s.judge(ctx, sub, problem); err != nil {
		return false, err
	}
	return false, nil
}

// GetSubmission returns a stored submission.
func (s *JudgeService) GetSubmission(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		s.logger.Debug("Submission not found", zap.String("submission_id", id.String()), zap.Error(err))
		return nil, err
	}
	return sub, nil
}

// GetUserSubmission returns the user's submission for a problem.
func (s *JudgeService) GetUserSubmission(ctx context.Context, userID, problemID int64) (*domain.Submission, error) {
	sub, err := s.submissions.FindByUserAndProblem(ctx, userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

// ListUserSubmissions returns the user's submissions, newest first.
func (s *JudgeService) ListUserSubmissions(ctx context.Context, userID int64) ([]*domain.Submission, error) {
	subs, err := s.submissions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if subs == nil {
		subs = []*domain.Submission{}
	}
	return subs, nil
}

// acquire takes the judging lock for the pair and returns its release func.
func (s *JudgeService) acquire(ctx context.Context, userID int64, problem *domain.Problem) (func(), error) {
	problemID := problem.ID
	token, ok, err := s.lock.Acquire(ctx, userID, problemID, s.lockTTLFor(problem))
	if err != nil {
		return nil, fmt.Errorf("acquire judging lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrAlreadyJudging
	}
	return func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), userID, problemID, token); err != nil {
			s.logger.Warn("Failed to release judging lock",
				zap.Int64("user_id", userID),
				zap.Int64("problem_id", problemID),
				zap.Error(err),
			)
		}
	}, nil
}

// lockTTLFor sizes the lock for the slowest possible run of problem: every
// case builds and then runs to its full deadline. The configured TTL is a floor.
func (s *JudgeService) lockTTLFor(problem *domain.Problem) time.Duration {
	perCase := time.Duration(problem.TimeLimitSeconds * float64(time.Second))
	if perCase <= 0 {
		perCase = fallbackCaseTimeout
	}
	worst := time.Duration(len(problem.TestCases))*(s.buildTimeout+perCase+caseOverhead) + cancelGrace
	return max(s.lockTTL, worst)
}

// prepare returns the PENDING submission for a new attempt. Must be called
// with the judging lock held.
func (s *JudgeService) prepare(ctx context.Context, userID, problemID int64, code string, lang domain.Language) (*domain.Submission, error) {
	existing, err := s.submissions.FindByUserAndProblem(ctx, userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	// Holding the lock means a JUDGING row was abandoned by a crashed run.
	if existing != nil && existing.Status == domain.StatusJudging {
		s.logger.Warn("Replacing abandoned submission", zap.String("submission_id", existing.ID.String()))
		existing = nil
	}
	return s.fresh(existing, userID, problemID, code, lang)
}

func (s *JudgeService) fresh(existing *domain.Submission, userID, problemID int64, code string, lang domain.Language) (*domain.Submission, error) {
	if existing == nil {
		return domain.NewSubmission(userID, problemID, code, lang)
	}
	if err := existing.Reset(code, lang); err != nil {
		return nil, err
	}
	return existing, nil
}

// judge drives a PENDING submission through JUDGING to its verdict and
// stores every transition.
func (s *JudgeService) judge(ctx context.Context, sub *domain.Submission, problem *domain.Problem) (*domain.Submission, error) {
	if err := sub.StartJudging(); err != nil {
		return nil, err
	}
	if err := s.submissions.UpdateStatus(ctx, sub.ID, domain.StatusJudging); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	start := time.Now()
	verdict, gradeErr := s.runGrader(ctx, sub, problem)
	if err := sub.Complete(verdict); err != nil {
		return nil, err
	}

	// The verdict is stored even if the caller has gone away.
	if err := s.submissions.SetVerdict(context.WithoutCancel(ctx), sub.ID, verdict); err != nil {
		s.logger.Error("Failed to store verdict", zap.Error(err), zap.String("submission_id", sub.ID.String()))
		return nil, fmt.Errorf("store verdict: %w", err)
	}

	metrics.GradingDuration.WithLabelValues(string(sub.Language)).Observe(time.Since(start).Seconds())

	s.logger.Info("Submission judged",
		zap.String("submission_id", sub.ID.String()),
		zap.Int64("problem_id", sub.ProblemID),
		zap.String("language", string(sub.Language)),
		zap.String("status", string(verdict.Status)),
		zap.Int("score", verdict.Score),
		zap.Int64("time_ms", verdict.MaxTimeMs),
	)
	return sub, gradeErr
}

type gradeResult struct {
	verdict *domain.Verdict
	err     error
}

// runGrader grades on its own goroutine and waits for it or for ctx. It
// always returns a verdict; the error is non-nil when the verdict is
// partial or synthesized.
func (s *JudgeService) runGrader(ctx context.Context, sub *domain.Submission, problem *domain.Problem) (*domain.Verdict, error) {
	done := make(chan gradeResult, 1)
	go func() {
		v, err := s.grader.Grade(ctx, sub, problem, problem.TestCases)
		done <- gradeResult{verdict: v, err: err}
	}()

	var res gradeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		select {
		case res = <-done:
		case <-time.After(cancelGrace):
			res.err = fmt.Errorf("%w: %v", domain.ErrGradingCanceled, ctx.Err())
		}
	}

	if res.err == nil {
		return res.verdict, nil
	}
	if res.verdict != nil {
		return res.verdict, res.err
	}

	s.logger.Error("Grading failed",
		zap.String("submission_id", sub.ID.String()),
		zap.Error(res.err),
	)
	return &domain.Verdict{
		Status:       domain.StatusRuntimeError,
		TotalCases:   len(problem.TestCases),
		ErrorMessage: "Execution error: " + res.err.Error(),
		CaseOutcomes: []domain.CaseOutcome{},
	}, fmt.Errorf("grade submission: %w", res.err)
}
