//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./internal/repository/postgres/
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set — skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return pool
}

func seedProblem(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := pool.QueryRow(ctx,
		`INSERT INTO problems (title, time_limit_seconds, memory_limit_mb) VALUES ('Square', 1.5, 128) RETURNING id`,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert problem: %v", err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM problems WHERE id = $1`, id) })

	for _, tc := range []struct {
		in, out string
		hidden  bool
	}{{"5\n", "25\n", false}, {"3\n", "9\n", true}} {
		if _, err := pool.Exec(ctx,
			`INSERT INTO test_cases (problem_id, input, expected_output, hidden) VALUES ($1, $2, $3, $4)`,
			id, tc.in, tc.out, tc.hidden); err != nil {
			t.Fatalf("insert test case: %v", err)
		}
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO code_snippets (problem_id, language, solution_template) VALUES ($1, 'python', '# USER_CODE_PLACEHOLDER')`,
		id); err != nil {
		t.Fatalf("insert snippet: %v", err)
	}
	return id
}

func TestIntegration_ProblemAndSnippet(t *testing.T) {
	pool := newTestPool(t)
	id := seedProblem(t, pool)
	ctx := context.Background()

	p, err := NewPostgresProblemStore(pool).GetProblem(ctx, id)
	if err != nil {
		t.Fatalf("get problem: %v", err)
	}
	if p.TimeLimitSeconds != 1.5 || p.MemoryLimitMB != 128 || len(p.TestCases) != 2 {
		t.Errorf("unexpected problem: %+v", p)
	}
	if p.TestCases[0].Input != "5\n" || !p.TestCases[1].Hidden {
		t.Errorf("test cases out of order: %+v", p.TestCases)
	}

	if _, err := NewPostgresProblemStore(pool).GetProblem(ctx, -1); !errors.Is(err, domain.ErrProblemNotFound) {
		t.Errorf("expected ErrProblemNotFound, got %v", err)
	}

	snippets := NewPostgresSnippetStore(pool)
	tpl, found, err := snippets.FindTemplate(ctx, id, domain.LangPython)
	if err != nil || !found || tpl != "# USER_CODE_PLACEHOLDER" {
		t.Errorf("python template: %q %v %v", tpl, found, err)
	}
	if _, found, _ := snippets.FindTemplate(ctx, id, domain.LangJava); found {
		t.Error("expected no java template")
	}
}

func TestIntegration_SubmissionLifecycle(t *testing.T) {
	pool := newTestPool(t)
	problemID := seedProblem(t, pool)
	ctx := context.Background()
	store := NewPostgresSubmissionStore(pool)

	sub, _ := domain.NewSubmission(4242, problemID, "print(1)", domain.LangPython)
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.UpdateStatus(ctx, sub.ID, domain.StatusJudging); err != nil {
		t.Fatalf("update status: %v", err)
	}

	v := &domain.Verdict{
		Status:       domain.StatusWrongAnswer,
		CasesPassed:  1,
		TotalCases:   2,
		MaxTimeMs:    17,
		Score:        50,
		CaseOutcomes: []domain.CaseOutcome{{TestCase: 1, Status: domain.OutcomePass}, {TestCase: 2, Status: domain.OutcomeFail, Hidden: true}},
	}
	if err := store.SetVerdict(ctx, sub.ID, v); err != nil {
		t.Fatalf("set verdict: %v", err)
	}

	got, err := store.GetByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusWrongAnswer || got.Verdict == nil || got.Verdict.Score != 50 || len(got.Verdict.CaseOutcomes) != 2 {
		t.Errorf("unexpected stored submission: %+v (verdict %+v)", got, got.Verdict)
	}

	// Resubmission replaces the row for the pair.
	next, _ := domain.NewSubmission(4242, problemID, "print(2)", domain.LangPython)
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("resave: %v", err)
	}
	found, err := store.FindByUserAndProblem(ctx, 4242, problemID)
	if err != nil || found == nil || found.ID != next.ID || found.Verdict != nil {
		t.Errorf("unexpected pair lookup: %+v %v", found, err)
	}
	if _, err := store.GetByID(ctx, sub.ID); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Errorf("old id should be gone, got %v", err)
	}

	list, err := store.ListByUser(ctx, 4242)
	if err != nil || len(list) != 1 {
		t.Errorf("list: %d %v", len(list), err)
	}
}
