package model

import (
	"time"

	"contestjudge/internal/judge/sandbox/profile"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusJudging Status = "JUDGING"
	StatusJudged  Status = "JUDGED"
	StatusFailed  Status = "FAILED"
)

// Answer is the verdict assigned to a judged submission.
type Answer string

const (
	AnswerNoAnswer            Answer = "NO_ANSWER"
	AnswerAccepted            Answer = "ACCEPTED"
	AnswerWrongAnswer         Answer = "WRONG_ANSWER"
	AnswerCompilationError    Answer = "COMPILATION_ERROR"
	AnswerRuntimeError        Answer = "RUNTIME_ERROR"
	AnswerTimeLimitExceeded   Answer = "TIME_LIMIT_EXCEEDED"
	AnswerMemoryLimitExceeded Answer = "MEMORY_LIMIT_EXCEEDED"
)

// Submission is the permanent record of one contestant attempt.
// Answer stays NO_ANSWER while Status is JUDGING.
type Submission struct {
	ID           string           `json:"id"`
	ContestID    string           `json:"contest_id"`
	MemberID     string           `json:"member_id"`
	ProblemID    string           `json:"problem_id"`
	Language     profile.Language `json:"language"`
	Status       Status           `json:"status"`
	Answer       Answer           `json:"answer"`
	CodeKey      string           `json:"code_key"`
	CodeFilename string           `json:"code_filename"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Version      int64            `json:"version"`
}

// IsTerminal reports whether the submission left JUDGING.
func (s *Submission) IsTerminal() bool {
	return s.Status != StatusJudging
}
