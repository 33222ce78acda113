package domain

// SubmissionStatus represents the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "PENDING"
	StatusJudging SubmissionStatus = "JUDGING"

	StatusAccepted            SubmissionStatus = "AC"
	StatusWrongAnswer         SubmissionStatus = "WA"
	StatusTimeLimitExceeded   SubmissionStatus = "TLE"
	StatusRuntimeError        SubmissionStatus = "RE"
	StatusCompilationError    SubmissionStatus = "CE"
	StatusMemoryLimitExceeded SubmissionStatus = "MLE"
)

// IsTerminal returns true if the status represents a final verdict.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusRuntimeError, StatusCompilationError, StatusMemoryLimitExceeded:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s SubmissionStatus) IsValid() bool {
	return s == StatusPending || s == StatusJudging || s.IsTerminal()
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusJudging
	case StatusJudging:
		return next.IsTerminal()
	}
	return false
}
