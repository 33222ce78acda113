package domain

// OutcomeTag classifies a single test case run.
type OutcomeTag string

const (
	OutcomePass         OutcomeTag = "PASS"
	OutcomeFail         OutcomeTag = "FAIL"
	OutcomeRuntimeError OutcomeTag = "RE"
)

// CaseOutcome is the per-case entry of a verdict report.
type CaseOutcome struct {
	TestCase int        `json:"testCase"`
	Status   OutcomeTag `json:"status"`
	Hidden   bool       `json:"hidden"`
}

// Verdict is the terminal artifact of one grading run.
type Verdict struct {
	Status       SubmissionStatus `json:"status"`
	CasesPassed  int              `json:"test_cases_passed"`
	TotalCases   int              `json:"total_test_cases"`
	MaxTimeMs    int64            `json:"time_consumed"`
	Score        int              `json:"score"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CaseOutcomes []CaseOutcome    `json:"test_case_details"`
}
