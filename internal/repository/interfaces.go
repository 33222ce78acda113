package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// ProblemStore supplies problems with their test cases in insertion order.
type ProblemStore interface {
	// GetProblem returns domain.ErrProblemNotFound when the id is unknown.
	GetProblem(ctx context.Context, id int64) (*domain.Problem, error)
}

// SnippetStore supplies per-(problem, language) solution templates.
type SnippetStore interface {
	// FindTemplate returns found=false when no template is stored.
	FindTemplate(ctx context.Context, problemID int64, lang domain.Language) (tpl string, found bool, err error)
}

// SubmissionStore persists submissions and their verdicts.
// Implementations must be safe for concurrent use.
type SubmissionStore interface {
	// Save inserts or replaces the submission for its (user, problem) pair.
	Save(ctx context.Context, sub *domain.Submission) error

	// GetByID returns domain.ErrSubmissionNotFound when the id is unknown.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// FindByUserAndProblem returns (nil, nil) when the pair has no submission yet.
	FindByUserAndProblem(ctx context.Context, userID, problemID int64) (*domain.Submission, error)

	// ListByUser returns the user's submissions, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Submission, error)

	// UpdateStatus atomically updates the status of a submission.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error

	// SetVerdict stores the verdict and its terminal status.
	SetVerdict(ctx context.Context, id uuid.UUID, verdict *domain.Verdict) error
}

// JudgingLock serializes judging runs per (user, problem) pair across processes.
type JudgingLock interface {
	// Acquire returns a release token, or acquired=false when the pair is already locked.
	Acquire(ctx context.Context, userID, problemID int64, ttl time.Duration) (token string, acquired bool, err error)

	// Release drops the lock if it is still held with token.
	Release(ctx context.Context, userID, problemID int64, token string) error
}

// JobPublisher hands grade jobs to the worker fleet.
type JobPublisher interface {
	Publish(ctx context.Context, job *domain.GradeJob) error
	Close() error
}
