package controller

import "contestjudge/internal/judge/model"

// SubmissionResponse is the submission payload. Execution is set once a
// verdict has been recorded.
type SubmissionResponse struct {
	Submission *model.Submission `json:"submission"`
	Execution  *model.Execution  `json:"execution,omitempty"`
}
