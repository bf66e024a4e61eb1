// Package model holds contest membership and the derived leaderboard.
package model

import (
	"time"

	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
)

// MemberType is a member's role in a contest.
type MemberType string

const (
	MemberContestant MemberType = "CONTESTANT"
	MemberJudge      MemberType = "JUDGE"
	MemberAdmin      MemberType = "ADMIN"
)

// Member is a contest participant. Only contestants are ranked.
type Member struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type MemberType `json:"type"`
}

// Contest is the leaderboard's view of a contest.
type Contest struct {
	ID           string               `json:"id"`
	Slug         string               `json:"slug"`
	Title        string               `json:"title"`
	Languages    []profile.Language   `json:"languages"`
	StartAt      time.Time            `json:"start_at"`
	EndAt        time.Time            `json:"end_at"`
	AutoFreezeAt *time.Time           `json:"auto_freeze_at,omitempty"`
	FrozenAt     *time.Time           `json:"frozen_at,omitempty"`
	Members      []Member             `json:"members"`
	Problems     []judgemodel.Problem `json:"problems"`
}

// IsFrozen reports whether standings are currently cut off at FrozenAt.
func (c *Contest) IsFrozen() bool {
	return c.FrozenAt != nil
}

// Problem returns the contest problem with id.
func (c *Contest) Problem(id string) (judgemodel.Problem, bool) {
	for _, p := range c.Problems {
		if p.ID == id {
			return p, true
		}
	}
	return judgemodel.Problem{}, false
}

// Member returns the contest member with id.
func (c *Contest) Member(id string) (Member, bool) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}
