package model

// Problem is the judge-facing view of a contest problem.
type Problem struct {
	ID             string `json:"id"`
	ContestID      string `json:"contest_id"`
	Letter         string `json:"letter"`
	Title          string `json:"title"`
	TimeLimitMs    int64  `json:"time_limit_ms"`
	MemoryLimitMB  int64  `json:"memory_limit_mb"`
	TestCasesKey   string `json:"test_cases_key"`
	DescriptionKey string `json:"description_key"`
}

// TestCase is one input / expected output pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}
