package domain

import (
	"time"

	"github.com/google/uuid"
)

// GradeJob is the queue message asking a worker to grade a stored submission.
type GradeJob struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	Language     Language  `json:"language"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// JobMessage wraps a GradeJob with the broker acknowledgement callbacks.
// The worker pool calls exactly one of Ack or Nack after processing.
type JobMessage struct {
	Job  *GradeJob
	Ack  func() error
	Nack func(requeue bool) error
}
