package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Submission tracks one user's code for one problem through its lifecycle:
// PENDING -> JUDGING -> exactly one terminal status.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	UserID      int64            `json:"user_id"`
	ProblemID   int64            `json:"problem_id"`
	Code        string           `json:"code"`
	Language    Language         `json:"language"`
	Status      SubmissionStatus `json:"status"`
	Verdict     *Verdict         `json:"verdict,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewSubmission creates a submission in PENDING with a time-ordered id.
func NewSubmission(userID, problemID int64, code string, lang Language) (*Submission, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}
	now := time.Now().UTC()
	return &Submission{
		ID:          id,
		UserID:      userID,
		ProblemID:   problemID,
		Code:        code,
		Language:    lang,
		Status:      StatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}, nil
}

// StartJudging moves a PENDING submission to JUDGING.
func (s *Submission) StartJudging() error {
	return s.transition(StatusJudging)
}

// Complete records the verdict and moves JUDGING to the verdict's terminal status.
func (s *Submission) Complete(v *Verdict) error {
	if v == nil {
		return fmt.Errorf("%w: nil verdict", ErrInvalidTransition)
	}
	if err := s.transition(v.Status); err != nil {
		return err
	}
	s.Verdict = v
	return nil
}

// Reset reuses a stored submission for a new attempt on the same problem.
// A submission that is currently JUDGING cannot be reset.
func (s *Submission) Reset(code string, lang Language) error {
	if s.Status == StatusJudging {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusPending)
	}
	s.Code = code
	s.Language = lang
	s.Status = StatusPending
	s.Verdict = nil
	s.SubmittedAt = time.Now().UTC()
	s.UpdatedAt = s.SubmittedAt
	return nil
}

func (s *Submission) transition(next SubmissionStatus) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}
