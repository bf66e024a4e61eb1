package model

import "time"

// Execution records how a judged submission ran. Written once per verdict.
type Execution struct {
	ID                string    `json:"id"`
	SubmissionID      string    `json:"submission_id"`
	Answer            Answer    `json:"answer"`
	TotalTestCases    int       `json:"total_test_cases"`
	LastTestCase      int       `json:"last_test_case"` // -1 when nothing ran
	ApprovedTestCases int       `json:"approved_test_cases"`
	OutputKey         string    `json:"output_key,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// Diagnostics of the failing step; stored compressed under OutputKey.
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}
