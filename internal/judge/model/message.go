package model

import "time"

// JudgeMessage is the queue payload for both the submission and failure queues.
type JudgeMessage struct {
	SubmissionID string `json:"submission_id"`
}

// Event types published on the event topic.
const (
	EventSubmissionUpdated   = "submission.updated"
	EventLeaderboardPartial  = "leaderboard.partial"
	EventLeaderboardFrozen   = "leaderboard.frozen"
	EventLeaderboardUnfrozen = "leaderboard.unfrozen"
)

// Event is the envelope on the event topic. Payload depends on Type.
type Event struct {
	Type      string      `json:"type"`
	ContestID string      `json:"contest_id"`
	IssuedAt  time.Time   `json:"issued_at"`
	Payload   interface{} `json:"payload"`
}
