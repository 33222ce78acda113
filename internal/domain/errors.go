package domain

import "errors"

var (
	// ErrUnsupportedLanguage is returned when a language id is not in the profile table.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrProblemNotFound is returned when the problem store has no such problem.
	ErrProblemNotFound = errors.New("problem not found")

	// ErrSubmissionNotFound is returned when a submission cannot be found.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrEmptySourceCode is returned when source code is empty.
	ErrEmptySourceCode = errors.New("source code cannot be empty")

	// ErrPayloadTooLarge is returned when the source code exceeds the size limit.
	ErrPayloadTooLarge = errors.New("source code payload exceeds maximum size")

	// ErrAlreadyJudging is returned when the same (user, problem) pair is already being judged.
	ErrAlreadyJudging = errors.New("submission is already being judged")

	// ErrInvalidTransition is returned when a submission status change is not allowed.
	ErrInvalidTransition = errors.New("invalid submission status transition")

	// ErrGradingCanceled is returned together with a partial verdict when the caller cancels grading.
	ErrGradingCanceled = errors.New("grading canceled")

	// ErrPublishFailed is returned when the message broker publish fails.
	ErrPublishFailed = errors.New("failed to publish job to message queue")
)
