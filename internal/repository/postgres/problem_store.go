package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

var (
	_ repository.ProblemStore = (*pgProblemStore)(nil)
	_ repository.SnippetStore = (*pgSnippetStore)(nil)
)

type pgProblemStore struct {
	pool *pgxpool.Pool
}

// NewPostgresProblemStore creates a PostgreSQL-backed problem store.
func NewPostgresProblemStore(pool *pgxpool.Pool) repository.ProblemStore {
	return &pgProblemStore{pool: pool}
}

func (r *pgProblemStore) GetProblem(ctx context.Context, id int64) (*domain.Problem, error) {
	query := `
		SELECT id, title, time_limit_seconds, memory_limit_mb
		FROM problems
		WHERE id = $1`

	p := &domain.Problem{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Title, &p.TimeLimitSeconds, &p.MemoryLimitMB)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, fmt.Errorf("postgres: get problem: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, input, expected_output, hidden
		FROM test_cases
		WHERE problem_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: query test cases: %w", err)
	}
	p.TestCases, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TestCase, error) {
		var tc domain.TestCase
		err := row.Scan(&tc.ID, &tc.Input, &tc.ExpectedOutput, &tc.Hidden)
		return tc, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan test cases: %w", err)
	}
	return p, nil
}

type pgSnippetStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSnippetStore creates a PostgreSQL-backed snippet store.
func NewPostgresSnippetStore(pool *pgxpool.Pool) repository.SnippetStore {
	return &pgSnippetStore{pool: pool}
}

func (r *pgSnippetStore) FindTemplate(ctx context.Context, problemID int64, lang domain.Language) (string, bool, error) {
	query := `SELECT solution_template FROM code_snippets WHERE problem_id = $1 AND language = $2`

	var tpl string
	err := r.pool.QueryRow(ctx, query, problemID, string(lang)).Scan(&tpl)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("postgres: find template: %w", err)
	}
	return tpl, true, nil
}
