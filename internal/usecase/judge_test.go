package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/grader"
	"github.com/Harsh-BH/sentinel-judge/internal/repository/mock"
	"github.com/Harsh-BH/sentinel-judge/internal/template"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

const (
	testUser    int64 = 7
	testProblem int64 = 42
)

type fixture struct {
	problems    *mock.ProblemStore
	snippets    *mock.SnippetStore
	submissions *mock.SubmissionStore
	lock        *mock.JudgingLock
	exec        *mock.Executor
	publisher   *mock.JobPublisher
	svc         *usecase.JudgeService
}

// newFixture wires a JudgeService over in-memory stores and a real grader.
// The default executor echoes stdin, so the echo problem is accepted.
func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()
	f := &fixture{
		problems: mock.NewProblemStore(&domain.Problem{
			ID:               testProblem,
			TimeLimitSeconds: 1,
			MemoryLimitMB:    256,
			TestCases: []domain.TestCase{
				{ID: 1, Input: "1\n", ExpectedOutput: "1\n"},
				{ID: 2, Input: "2\n", ExpectedOutput: "2\n", Hidden: true},
			},
		}),
		snippets:    mock.NewSnippetStore(),
		submissions: mock.NewSubmissionStore(),
		lock:        mock.NewJudgingLock(),
		exec:        &mock.Executor{},
		publisher:   &mock.JobPublisher{},
	}
	logger := zap.NewNop()
	g := grader.NewGrader(f.exec, template.NewMerger(f.snippets, logger), logger)
	opts = append([]usecase.Option{usecase.WithPublisher(f.publisher)}, opts...)
	f.svc = usecase.NewJudgeService(f.problems, f.submissions, f.lock, g, logger, opts...)
	return f
}

func assertHistory(t *testing.T, store *mock.SubmissionStore, want ...domain.SubmissionStatus) {
	t.Helper()
	got := store.History()
	if len(got) != len(want) {
		t.Fatalf("status history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status history = %v, want %v", got, want)
		}
	}
}

// ──────────────────────────────────────────────────────────────
// GradeSubmission
// ──────────────────────────────────────────────────────────────

func TestGradeSubmission_Accepted(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.GradeSubmission(context.Background(), testUser, testProblem, "print(input())", domain.LangPython)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.StatusAccepted || sub.Verdict == nil || sub.Verdict.Score != 100 {
		t.Fatalf("expected AC with score 100, got %s %+v", sub.Status, sub.Verdict)
	}

	assertHistory(t, f.submissions, domain.StatusPending, domain.StatusJudging, domain.StatusAccepted)

	stored, err := f.submissions.GetByID(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Verdict == nil || stored.Verdict.CasesPassed != 2 || !stored.Verdict.CaseOutcomes[1].Hidden {
		t.Errorf("unexpected stored verdict: %+v", stored.Verdict)
	}

	if f.lock.Held(testUser, testProblem) {
		t.Error("judging lock must be released")
	}
	if f.exec.Calls() != 2 {
		t.Errorf("expected 2 executions, got %d", f.exec.Calls())
	}
}

func TestGradeSubmission_Validation(t *testing.T) {
	tests := []struct {
		name string
		code string
		lang domain.Language
		want error
	}{
		{"unsupported language", "print(1)", domain.Language("ruby"), domain.ErrUnsupportedLanguage},
		{"empty code", "   \n\t", domain.LangPython, domain.ErrEmptySourceCode},
		{"too large", strings.Repeat("x", 65), domain.LangPython, domain.ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, usecase.WithMaxSourceBytes(64))
			_, err := f.svc.GradeSubmission(context.Background(), testUser, testProblem, tt.code, tt.lang)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(f.submissions.History()) != 0 || f.exec.Calls() != 0 {
				t.Error("rejected submissions must not be stored or run")
			}
		})
	}
}

func TestGradeSubmission_ProblemNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GradeSubmission(context.Background(), testUser, 999, "print(1)", domain.LangPython)
	if !errors.Is(err, domain.ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound, got %v", err)
	}
}

func TestGradeSubmission_AlreadyJudging(t *testing.T) {
	f := newFixture(t)
	if _, ok, _ := f.lock.Acquire(context.Background(), testUser, testProblem, time.Minute); !ok {
		t.Fatal("pre-acquire failed")
	}

	_, err := f.svc.GradeSubmission(context.Background(), testUser, testProblem, "print(1)", domain.LangPython)
	if !errors.Is(err, domain.ErrAlreadyJudging) {
		t.Fatalf("expected ErrAlreadyJudging, got %v", err)
	}
	if len(f.submissions.History()) != 0 {
		t.Error("nothing should be stored while the pair is locked")
	}
}

func TestGradeSubmission_ResubmissionReusesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GradeSubmission(ctx, testUser, testProblem, "print(input())", domain.LangPython)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	f.exec.ExecuteFn = func(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult {
		return &domain.ExecutionResult{Stdout: "nope\n", TimeUsedMs: 3}
	}
	second, err := f.svc.GradeSubmission(ctx, testUser, testProblem, "print('nope')", domain.LangPython)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("resubmission should reuse id %s, got %s", first.ID, second.ID)
	}
	if second.Status != domain.StatusWrongAnswer || second.Code != "print('nope')" {
		t.Errorf("expected WA with new code, got %s %q", second.Status, second.Code)
	}

	list, _ := f.svc.ListUserSubmissions(ctx, testUser)
	if len(list) != 1 {
		t.Errorf("expected one stored submission for the pair, got %d", len(list))
	}
}

func TestGradeSubmission_ReplacesAbandonedJudging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, _ := domain.NewSubmission(testUser, testProblem, "print(0)", domain.LangPython)
	_ = stale.StartJudging()
	_ = f.submissions.Save(ctx, stale)

	sub, err := f.svc.GradeSubmission(ctx, testUser, testProblem, "print(input())", domain.LangPython)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ID == stale.ID {
		t.Error("abandoned JUDGING submission must not be reused")
	}
	if _, err := f.submissions.GetByID(ctx, stale.ID); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Errorf("abandoned row should be replaced, got %v", err)
	}
}

func TestGradeSubmission_GradingFailureStoresRE(t *testing.T) {
	f := newFixture(t)
	f.snippets.FindTemplateFn = func(ctx context.Context, problemID int64, lang domain.Language) (string, bool, error) {
		return "", false, errors.New("snippet store offline")
	}

	sub, err := f.svc.GradeSubmission(context.Background(), testUser, testProblem, "print(1)", domain.LangPython)
	if err == nil {
		t.Fatal("expected grading error")
	}
	if sub == nil || sub.Status != domain.StatusRuntimeError {
		t.Fatalf("expected RE submission, got %+v", sub)
	}
	if !strings.HasPrefix(sub.Verdict.ErrorMessage, "Execution error: ") {
		t.Errorf("unexpected error message %q", sub.Verdict.ErrorMessage)
	}
	assertHistory(t, f.submissions, domain.StatusPending, domain.StatusJudging, domain.StatusRuntimeError)
	if f.exec.Calls() != 0 {
		t.Error("nothing should run when the merge fails")
	}
}

func TestGradeSubmission_CanceledStoresPartialVerdict(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.exec.ExecuteFn = func(_ context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult {
		cancel()
		return &domain.ExecutionResult{Stdout: req.Stdin, TimeUsedMs: 5}
	}

	sub, err := f.svc.GradeSubmission(ctx, testUser, testProblem, "print(input())", domain.LangPython)
	if !errors.Is(err, domain.ErrGradingCanceled) {
		t.Fatalf("expected ErrGradingCanceled, got %v", err)
	}
	if sub == nil || !sub.Status.IsTerminal() {
		t.Fatalf("expected a terminal partial result, got %+v", sub)
	}
	if f.exec.Calls() != 1 {
		t.Errorf("remaining cases must be skipped, got %d executions", f.exec.Calls())
	}

	stored, _ := f.submissions.GetByID(context.Background(), sub.ID)
	if stored == nil || !stored.Status.IsTerminal() {
		t.Errorf("partial verdict must be stored, got %+v", stored)
	}
	if f.lock.Held(testUser, testProblem) {
		t.Error("judging lock must be released after cancellation")
	}
}

func TestGradeSubmission_StoreVerdictFailure(t *testing.T) {
	f := newFixture(t)
	f.submissions.SetVerdictFn = func(ctx context.Context, id uuid.UUID, verdict *domain.Verdict) error {
		return errors.New("db down")
	}

	if _, err := f.svc.GradeSubmission(context.Background(), testUser, testProblem, "print(1)", domain.LangPython); err == nil {
		t.Fatal("expected store error")
	}
	if f.lock.Held(testUser, testProblem) {
		t.Error("judging lock must be released on failure")
	}
}

func TestGradeSubmission_LockCoversSlowestRun(t *testing.T) {
	cases := make([]domain.TestCase, 40)
	for i := range cases {
		cases[i] = domain.TestCase{ID: int64(i + 1), Input: "1\n", ExpectedOutput: "1\n"}
	}

	tests := []struct {
		name    string
		problem *domain.Problem
		want    time.Duration
	}{
		{
			name:    "configured floor",
			problem: &domain.Problem{ID: testProblem, TimeLimitSeconds: 1, TestCases: cases[:2]},
			want:    5 * time.Minute,
		},
		{
			// 40 cases x (10s build + 10s run + 2s drain) + 5s grace
			name:    "many slow cases",
			problem: &domain.Problem{ID: testProblem, TimeLimitSeconds: 10, TestCases: cases},
			want:    885 * time.Second,
		},
		{
			name:    "no time limit",
			problem: &domain.Problem{ID: testProblem, TestCases: cases},
			want:    685 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, usecase.WithBuildTimeout(10*time.Second))
			f.problems.GetProblemFn = func(ctx context.Context, id int64) (*domain.Problem, error) {
				return tt.problem, nil
			}
			var got time.Duration
			f.lock.AcquireFn = func(ctx context.Context, userID, problemID int64, ttl time.Duration) (string, bool, error) {
				got = ttl
				return "token", true, nil
			}

			if _, err := f.svc.GradeSubmission(context.Background(), testUser, testProblem, "print(1)", domain.LangPython); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("lock ttl = %v, want %v", got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────────────────
// TestCode
// ──────────────────────────────────────────────────────────────

func TestTestCode_DoesNotPersist(t *testing.T) {
	f := newFixture(t)
	f.lock.AcquireFn = func(ctx context.Context, userID, problemID int64, ttl time.Duration) (string, bool, error) {
		t.Error("dry runs must not take the judging lock")
		return "", false, nil
	}

	sub, err := f.svc.TestCode(context.Background(), testUser, testProblem, "print(input())", domain.LangPython)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.StatusAccepted || sub.Verdict.TotalCases != 2 {
		t.Errorf("expected AC over both cases, got %s %+v", sub.Status, sub.Verdict)
	}
	if len(f.submissions.History()) != 0 {
		t.Error("dry runs must not touch the submission store")
	}
}

func TestTestCode_CompileError(t *testing.T) {
	f := newFixture(t)
	f.exec.ExecuteFn = func(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult {
		return &domain.ExecutionResult{Stderr: "main.cpp:1: error", ExitCode: 1, CompileFailed: true}
	}

	sub, err := f.svc.TestCode(context.Background(), testUser, testProblem, "int main(", domain.LangCpp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.StatusCompilationError || sub.Verdict.ErrorMessage != "main.cpp:1: error" {
		t.Errorf("expected CE with diagnostics, got %s %+v", sub.Status, sub.Verdict)
	}
}

// ──────────────────────────────────────────────────────────────
// Enqueue / ProcessJob
// ──────────────────────────────────────────────────────────────

func TestEnqueue_PublishesJob(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Enqueue(context.Background(), testUser, testProblem, "print(input())", domain.LangPython)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.StatusPending {
		t.Errorf("expected PENDING, got %s", sub.Status)
	}
	if len(f.publisher.Published) != 1 {
		t.Fatalf("expected 1 published job, got %d", len(f.publisher.Published))
	}
	job := f.publisher.Published[0]
	if job.SubmissionID != sub.ID || job.ProblemID != testProblem || job.Language != domain.LangPython {
		t.Errorf("unexpected job: %+v", job)
	}
	if f.exec.Calls() != 0 {
		t.Error("enqueue must not grade")
	}
}

func TestEnqueue_PublishFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.PublishFn = func(ctx context.Context, job *domain.GradeJob) error {
		return errors.New("broker down")
	}

	_, err := f.svc.Enqueue(context.Background(), testUser, testProblem, "print(1)", domain.LangPython)
	if !errors.Is(err, domain.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	assertHistory(t, f.submissions, domain.StatusPending, domain.StatusRuntimeError)
}

func TestEnqueue_NoPublisher(t *testing.T) {
	f := newFixture(t, usecase.WithPublisher(nil))

	if _, err := f.svc.Enqueue(context.Background(), testUser, testProblem, "print(1)", domain.LangPython); !errors.Is(err, domain.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
}

func TestEnqueue_RejectsWhileJudging(t *testing.T) {
	f := newFixture(t)
	running, _ := domain.NewSubmission(testUser, testProblem, "print(0)", domain.LangPython)
	_ = running.StartJudging()
	_ = f.submissions.Save(context.Background(), running)

	if _, err := f.svc.Enqueue(context.Background(), testUser, testProblem, "print(1)", domain.LangPython); !errors.Is(err, domain.ErrAlreadyJudging) {
		t.Fatalf("expected ErrAlreadyJudging, got %v", err)
	}
}

func TestProcessJob_GradesQueuedSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Enqueue(ctx, testUser, testProblem, "print(input())", domain.LangPython)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	skipped, err := f.svc.ProcessJob(ctx, f.publisher.Published[0])
	if err != nil || skipped {
		t.Fatalf("process: skipped=%v err=%v", skipped, err)
	}

	got, _ := f.svc.GetSubmission(ctx, sub.ID)
	if got.Status != domain.StatusAccepted {
		t.Errorf("expected AC, got %s", got.Status)
	}

	// Redelivery of the same job is a no-op.
	skipped, err = f.svc.ProcessJob(ctx, f.publisher.Published[0])
	if err != nil || !skipped {
		t.Errorf("duplicate delivery: skipped=%v err=%v", skipped, err)
	}
	if f.exec.Calls() != 2 {
		t.Errorf("duplicate must not re-run cases, got %d executions", f.exec.Calls())
	}
}

func TestProcessJob_Skips(t *testing.T) {
	t.Run("unknown submission", func(t *testing.T) {
		f := newFixture(t)
		skipped, err := f.svc.ProcessJob(context.Background(), &domain.GradeJob{SubmissionID: uuid.New()})
		if err != nil || !skipped {
			t.Errorf("skipped=%v err=%v", skipped, err)
		}
	})

	t.Run("pair locked elsewhere", func(t *testing.T) {
		f := newFixture(t)
		sub, _ := f.svc.Enqueue(context.Background(), testUser, testProblem, "print(1)", domain.LangPython)
		_, _, _ = f.lock.Acquire(context.Background(), testUser, testProblem, time.Minute)

		skipped, err := f.svc.ProcessJob(context.Background(), &domain.GradeJob{SubmissionID: sub.ID})
		if err != nil || !skipped {
			t.Errorf("skipped=%v err=%v", skipped, err)
		}
		if f.exec.Calls() != 0 {
			t.Error("locked pair must not be graded")
		}
	})
}

func TestProcessJob_RestartsAbandonedRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, _ := f.svc.Enqueue(ctx, testUser, testProblem, "print(input())", domain.LangPython)
	_ = f.submissions.UpdateStatus(ctx, sub.ID, domain.StatusJudging)

	skipped, err := f.svc.ProcessJob(ctx, &domain.GradeJob{SubmissionID: sub.ID})
	if err != nil || skipped {
		t.Fatalf("skipped=%v err=%v", skipped, err)
	}
	got, _ := f.svc.GetSubmission(ctx, sub.ID)
	if got.Status != domain.StatusAccepted {
		t.Errorf("expected AC, got %s", got.Status)
	}
}

func TestProcessJob_StoreError(t *testing.T) {
	f := newFixture(t)
	sub, _ := f.svc.Enqueue(context.Background(), testUser, testProblem, "print(1)", domain.LangPython)
	f.submissions.UpdateStatusFn = func(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
		return errors.New("db down")
	}

	skipped, err := f.svc.ProcessJob(context.Background(), &domain.GradeJob{SubmissionID: sub.ID})
	if err == nil || skipped {
		t.Errorf("expected failure, got skipped=%v err=%v", skipped, err)
	}
}

// ──────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.ListUserSubmissions(ctx, testUser)
	if err != nil || list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v %v", list, err)
	}
	if _, err := f.svc.GetUserSubmission(ctx, testUser, testProblem); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Errorf("expected ErrSubmissionNotFound, got %v", err)
	}
	if _, err := f.svc.GetSubmission(ctx, uuid.New()); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Errorf("expected ErrSubmissionNotFound, got %v", err)
	}

	sub, _ := f.svc.GradeSubmission(ctx, testUser, testProblem, "print(input())", domain.LangPython)
	got, err := f.svc.GetUserSubmission(ctx, testUser, testProblem)
	if err != nil || got.ID != sub.ID {
		t.Errorf("expected %s, got %+v %v", sub.ID, got, err)
	}
}
