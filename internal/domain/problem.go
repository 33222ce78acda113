package domain

// TestCase is one (input, expected output, hidden) triple. Order inside a
// Problem is insertion order and drives case numbering in reports.
type TestCase struct {
	ID             int64  `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden"`
}

// Problem carries what the grader needs from the problem store.
type Problem struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	TimeLimitSeconds float64    `json:"time_limit"`
	MemoryLimitMB    int        `json:"memory_limit_mb"`
	TestCases        []TestCase `json:"-"`
}

// MemoryLimitKB converts the advisory memory limit.
func (p *Problem) MemoryLimitKB() int {
	return p.MemoryLimitMB * 1024
}
