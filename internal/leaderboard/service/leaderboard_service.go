// Package service computes contest standings and owns the freeze lifecycle.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"contestjudge/internal/common/cache"
	judgemodel "contestjudge/internal/judge/model"
	judgerepo "contestjudge/internal/judge/repository"
	"contestjudge/internal/leaderboard/model"
	"contestjudge/internal/leaderboard/repository"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 30 * time.Second
	defaultLockWait = 5 * time.Second
	lockKeyPrefix   = "leaderboard:lock:"
)

// ProblemFinder loads a single problem.
type ProblemFinder interface {
	FindByID(ctx context.Context, problemID string) (*judgemodel.Problem, error)
}

// Config holds service dependencies and settings.
type Config struct {
	Contests    repository.ContestRepository
	Submissions judgerepo.SubmissionRepository
	Problems    ProblemFinder
	Events      judgerepo.EventPublisher
	// Locker serializes freeze and unfreeze per contest across processes.
	Locker   cache.Cache
	LockTTL  time.Duration
	LockWait time.Duration
	Now      func() time.Time
}

// Service is the leaderboard engine. It holds no standings state; every call
// recomputes from the submission table.
type Service struct {
	contests    repository.ContestRepository
	submissions judgerepo.SubmissionRepository
	problems    ProblemFinder
	events      judgerepo.EventPublisher
	locker      cache.Cache
	lockTTL     time.Duration
	lockWait    time.Duration
	now         func() time.Time
}

// NewService creates the leaderboard engine.
func NewService(cfg Config) (*Service, error) {
	if cfg.Contests == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if cfg.Locker == nil {
		return nil, fmt.Errorf("lock cache is required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		contests:    cfg.Contests,
		submissions: cfg.Submissions,
		problems:    cfg.Problems,
		events:      cfg.Events,
		locker:      cfg.Locker,
		lockTTL:     cfg.LockTTL,
		lockWait:    cfg.LockWait,
		now:         cfg.Now,
	}, nil
}

// Build ranks the contest's contestants as of asOf, or now when it is nil.
// A frozen contest is cut off at its freeze instant even if asOf is later.
func (s *Service) Build(ctx context.Context, contestID string, asOf *time.Time) (*model.Leaderboard, error) {
	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListByContest(ctx, contestID, nil)
	if err != nil {
		return nil, err
	}
	return s.compute(contest, subs, cutoffFor(contest, asOf)), nil
}

// BuildPartial recomputes one member's cell for one problem, honoring the
// contest's freeze cutoff. It equals the matching cell of Build.
func (s *Service) BuildPartial(ctx context.Context, memberID, problemID string) (*model.Partial, error) {
	partial, _, err := s.partial(ctx, memberID, problemID)
	return partial, err
}

// RefreshPartial recomputes the cell a judged submission belongs to and
// publishes it. Non-contestants are not ranked and produce no event.
func (s *Service) RefreshPartial(ctx context.Context, sub *judgemodel.Submission) error {
	partial, member, err := s.partial(ctx, sub.MemberID, sub.ProblemID)
	if err != nil {
		return err
	}
	if member.Type != model.MemberContestant {
		return nil
	}
	return s.events.Publish(ctx, judgemodel.Event{
		Type:      judgemodel.EventLeaderboardPartial,
		ContestID: partial.ContestID,
		IssuedAt:  s.now().UTC(),
		Payload:   partial,
	})
}

func (s *Service) partial(ctx context.Context, memberID, problemID string) (*model.Partial, model.Member, error) {
	problem, err := s.problems.FindByID(ctx, problemID)
	if err != nil {
		return nil, model.Member{}, err
	}
	contest, err := s.contests.FindByID(ctx, problem.ContestID)
	if err != nil {
		return nil, model.Member{}, err
	}
	member, ok := contest.Member(memberID)
	if !ok {
		return nil, model.Member{}, appErr.Newf(appErr.MemberNotFound, "member %s is not in contest %s", memberID, contest.ID)
	}
	subs, err := s.submissions.ListByMemberProblem(ctx, memberID, problemID)
	if err != nil {
		return nil, model.Member{}, err
	}
	cell := buildCell(contest, *problem, subs, cutoffFor(contest, nil))
	return &model.Partial{ContestID: contest.ID, MemberID: memberID, Cell: cell}, member, nil
}

func (s *Service) compute(contest *model.Contest, subs []*judgemodel.Submission, cutoff *time.Time) *model.Leaderboard {
	type cellKey struct{ member, problem string }
	byCell := make(map[cellKey][]*judgemodel.Submission)
	for _, sub := range subs {
		k := cellKey{sub.MemberID, sub.ProblemID}
		byCell[k] = append(byCell[k], sub)
	}

	rows := make([]model.Row, 0, len(contest.Members))
	for _, member := range contest.Members {
		if member.Type != model.MemberContestant {
			continue
		}
		row := model.Row{MemberID: member.ID, Name: member.Name, Cells: make([]model.Cell, 0, len(contest.Problems))}
		for _, problem := range contest.Problems {
			cell := buildCell(contest, problem, byCell[cellKey{member.ID, problem.ID}], cutoff)
			if cell.IsAccepted {
				row.Score++
			}
			row.Penalty += cell.Penalty
			row.Cells = append(row.Cells, cell)
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Penalty != b.Penalty {
			return a.Penalty < b.Penalty
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.MemberID < b.MemberID
	})

	return &model.Leaderboard{
		ContestID: contest.ID,
		Slug:      contest.Slug,
		StartAt:   contest.StartAt,
		IsFrozen:  contest.IsFrozen(),
		IssuedAt:  s.now().UTC(),
		Rows:      rows,
	}
}

// buildCell scores one member on one problem. Only decided submissions
// created no later than cutoff count.
func buildCell(contest *model.Contest, problem judgemodel.Problem, subs []*judgemodel.Submission, cutoff *time.Time) model.Cell {
	ordered := make([]*judgemodel.Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == judgemodel.StatusJudging {
			continue
		}
		if cutoff != nil && sub.CreatedAt.After(*cutoff) {
			continue
		}
		ordered = append(ordered, sub)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	cell := model.Cell{ProblemID: problem.ID, Letter: problem.Letter}
	for _, sub := range ordered {
		if sub.Answer == judgemodel.AnswerAccepted {
			acceptedAt := sub.CreatedAt
			cell.IsAccepted = true
			cell.AcceptedAt = &acceptedAt
			break
		}
		cell.WrongSubmissions++
	}
	if cell.IsAccepted {
		elapsed := int64(cell.AcceptedAt.Sub(contest.StartAt) / time.Minute)
		cell.Penalty = elapsed + int64(cell.WrongSubmissions*model.WrongSubmissionPenaltyMinutes)
	}
	return cell
}

// cutoffFor picks the instant submissions are counted up to. A frozen
// contest never shows anything after FrozenAt, whatever asOf asks for.
func cutoffFor(contest *model.Contest, asOf *time.Time) *time.Time {
	if contest.FrozenAt != nil && (asOf == nil || asOf.After(*contest.FrozenAt)) {
		return contest.FrozenAt
	}
	return asOf
}

func logPublishFailure(ctx context.Context, eventType string, err error) {
	if err != nil {
		logger.Warn(ctx, "publish leaderboard event failed", zap.String("type", eventType), zap.Error(err))
	}
}
