package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// Ensure pgSubmissionStore implements repository.SubmissionStore.
var _ repository.SubmissionStore = (*pgSubmissionStore)(nil)

const submissionColumns = `
	id, user_id, problem_id, code, language, status,
	test_cases_passed, total_test_cases, time_consumed_ms, score, error_message,
	test_case_details, submitted_at, updated_at`

type pgSubmissionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSubmissionStore creates a PostgreSQL-backed submission store.
func NewPostgresSubmissionStore(pool *pgxpool.Pool) repository.SubmissionStore {
	return &pgSubmissionStore{pool: pool}
}

// Save upserts on (user_id, problem_id): a resubmission replaces the row,
// including its id, and clears the previous verdict.
func (r *pgSubmissionStore) Save(ctx context.Context, sub *domain.Submission) error {
	v := sub.Verdict
	if v == nil {
		v = &domain.Verdict{}
	}
	details, err := marshalOutcomes(v.CaseOutcomes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, problem_id) DO UPDATE SET
			id = EXCLUDED.id,
			code = EXCLUDED.code,
			language = EXCLUDED.language,
			status = EXCLUDED.status,
			test_cases_passed = EXCLUDED.test_cases_passed,
			total_test_cases = EXCLUDED.total_test_cases,
			time_consumed_ms = EXCLUDED.time_consumed_ms,
			score = EXCLUDED.score,
			error_message = EXCLUDED.error_message,
			test_case_details = EXCLUDED.test_case_details,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		sub.ID, sub.UserID, sub.ProblemID, sub.Code, sub.Language, sub.Status,
		v.CasesPassed, v.TotalCases, v.MaxTimeMs, v.Score, v.ErrorMessage,
		details, sub.SubmittedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save submission: %w", err)
	}
	return nil
}

func (r *pgSubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	sub, err := scanSubmission(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("postgres: get submission by id: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionStore) FindByUserAndProblem(ctx context.Context, userID, problemID int64) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE user_id = $1 AND problem_id = $2`

	sub, err := scanSubmission(r.pool.QueryRow(ctx, query, userID, problemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: find submission: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionStore) ListByUser(ctx context.Context, userID int64) ([]*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE user_id = $1 ORDER BY submitted_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list submissions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Submission, error) {
		return scanSubmission(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan submissions: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	query := `UPDATE submissions SET status = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

func (r *pgSubmissionStore) SetVerdict(ctx context.Context, id uuid.UUID, v *domain.Verdict) error {
	details, err := marshalOutcomes(v.CaseOutcomes)
	if err != nil {
		return err
	}

	query := `
		UPDATE submissions
		SET status = $1, test_cases_passed = $2, total_test_cases = $3, time_consumed_ms = $4,
		    score = $5, error_message = $6, test_case_details = $7, updated_at = $8
		WHERE id = $9`

	tag, err := r.pool.Exec(ctx, query,
		v.Status, v.CasesPassed, v.TotalCases, v.MaxTimeMs,
		v.Score, v.ErrorMessage, details, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set verdict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

func marshalOutcomes(outcomes []domain.CaseOutcome) ([]byte, error) {
	if outcomes == nil {
		outcomes = []domain.CaseOutcome{}
	}
	details, err := json.Marshal(outcomes)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal case outcomes: %w", err)
	}
	return details, nil
}

// scanSubmission reads one row selected with submissionColumns. The verdict
// is only attached once the submission reached a terminal status.
func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	sub := &domain.Submission{}
	v := &domain.Verdict{}
	var details []byte

	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Code, &sub.Language, &sub.Status,
		&v.CasesPassed, &v.TotalCases, &v.MaxTimeMs, &v.Score, &v.ErrorMessage,
		&details, &sub.SubmittedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sub.Status.IsTerminal() {
		if err := json.Unmarshal(details, &v.CaseOutcomes); err != nil {
			return nil, fmt.Errorf("unmarshal case outcomes: %w", err)
		}
		v.Status = sub.Status
		sub.Verdict = v
	}
	return sub, nil
}
