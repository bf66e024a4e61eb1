package model

import (
	"time"

	judgemodel "contestjudge/internal/judge/model"
)

// WrongSubmissionPenaltyMinutes is charged per wrong attempt before acceptance.
const WrongSubmissionPenaltyMinutes = 20

// Leaderboard is derived from submissions on every request and never stored.
type Leaderboard struct {
	ContestID string    `json:"contest_id"`
	Slug      string    `json:"slug"`
	StartAt   time.Time `json:"start_at"`
	IsFrozen  bool      `json:"is_frozen"`
	IssuedAt  time.Time `json:"issued_at"`
	Rows      []Row     `json:"rows"`
}

// Row is one contestant's standing.
type Row struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Penalty  int64  `json:"penalty"`
	Cells    []Cell `json:"cells"`
}

// Cell is one contestant's result on one problem.
type Cell struct {
	ProblemID        string     `json:"problem_id"`
	Letter           string     `json:"letter"`
	IsAccepted       bool       `json:"is_accepted"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	WrongSubmissions int        `json:"wrong_submissions"`
	Penalty          int64      `json:"penalty"`
}

// Partial is a single recomputed cell, used for incremental updates.
type Partial struct {
	ContestID string `json:"contest_id"`
	MemberID  string `json:"member_id"`
	Cell
}

// UnfreezeResult carries what a freeze hid: the submissions created during the
// frozen window and the leaderboard that includes them.
type UnfreezeResult struct {
	Leaderboard *Leaderboard             `json:"leaderboard"`
	Submissions []*judgemodel.Submission `json:"submissions"`
}
