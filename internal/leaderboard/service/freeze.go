package service

import (
	"context"
	"errors"
	"time"

	"contestjudge/internal/common/cache"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/leaderboard/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Freeze cuts the public standings off at the current instant. Freezing an
// already frozen contest keeps the original instant and publishes nothing.
func (s *Service) Freeze(ctx context.Context, contestID string) (*model.Leaderboard, error) {
	var (
		board   *model.Leaderboard
		changed bool
	)
	err := s.withContestLock(ctx, contestID, func(ctx context.Context) error {
		contest, err := s.contests.FindByID(ctx, contestID)
		if err != nil {
			return err
		}
		if !contest.IsFrozen() {
			now := s.now().UTC()
			if err := s.contests.SetFrozenAt(ctx, contestID, &now); err != nil {
				return err
			}
			contest.FrozenAt = &now
			changed = true
		}
		subs, err := s.submissions.ListByContest(ctx, contestID, nil)
		if err != nil {
			return err
		}
		board = s.compute(contest, subs, contest.FrozenAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "leaderboard frozen", zap.String("contest_id", contestID))
		logPublishFailure(ctx, judgemodel.EventLeaderboardFrozen, s.events.Publish(ctx, judgemodel.Event{
			Type:      judgemodel.EventLeaderboardFrozen,
			ContestID: contestID,
			IssuedAt:  board.IssuedAt,
			Payload:   board,
		}))
	}
	return board, nil
}

// Unfreeze lifts the cutoff and returns the full standings together with the
// submissions created while the contest was frozen. Unfreezing a contest that
// is not frozen returns the current standings and no submissions.
func (s *Service) Unfreeze(ctx context.Context, contestID string) (*model.UnfreezeResult, error) {
	var (
		result  *model.UnfreezeResult
		changed bool
	)
	err := s.withContestLock(ctx, contestID, func(ctx context.Context) error {
		contest, err := s.contests.FindByID(ctx, contestID)
		if err != nil {
			return err
		}
		hidden := []*judgemodel.Submission{}
		if contest.IsFrozen() {
			// The hidden window is (FrozenAt, unfreezeAt]; anything later was
			// never hidden.
			unfreezeAt := s.now().UTC()
			window, err := s.submissions.ListByContest(ctx, contestID, contest.FrozenAt)
			if err != nil {
				return err
			}
			hidden = createdUntil(window, unfreezeAt)
			if err := s.contests.SetFrozenAt(ctx, contestID, nil); err != nil {
				return err
			}
			contest.FrozenAt = nil
			changed = true
		}
		subs, err := s.submissions.ListByContest(ctx, contestID, nil)
		if err != nil {
			return err
		}
		result = &model.UnfreezeResult{
			Leaderboard: s.compute(contest, subs, nil),
			Submissions: hidden,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "leaderboard unfrozen",
			zap.String("contest_id", contestID),
			zap.Int("revealed", len(result.Submissions)),
		)
		logPublishFailure(ctx, judgemodel.EventLeaderboardUnfrozen, s.events.Publish(ctx, judgemodel.Event{
			Type:      judgemodel.EventLeaderboardUnfrozen,
			ContestID: contestID,
			IssuedAt:  result.Leaderboard.IssuedAt,
			Payload:   result,
		}))
	}
	return result, nil
}

// FindAllSubmissionsSinceLastFreeze lists the submissions created after the
// current freeze instant. It is empty when the contest is not frozen.
func (s *Service) FindAllSubmissionsSinceLastFreeze(ctx context.Context, contestID string) ([]*judgemodel.Submission, error) {
	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !contest.IsFrozen() {
		return []*judgemodel.Submission{}, nil
	}
	return s.submissions.ListByContest(ctx, contestID, contest.FrozenAt)
}

func createdUntil(subs []*judgemodel.Submission, until time.Time) []*judgemodel.Submission {
	out := make([]*judgemodel.Submission, 0, len(subs))
	for _, sub := range subs {
		if !sub.CreatedAt.After(until) {
			out = append(out, sub)
		}
	}
	return out
}

func (s *Service) withContestLock(ctx context.Context, contestID string, fn func(ctx context.Context) error) error {
	err := cache.WithLock(ctx, s.locker, lockKeyPrefix+contestID, s.lockTTL, s.lockWait, fn)
	if errors.Is(err, cache.ErrLockNotAcquired) {
		return appErr.Newf(appErr.LockFailed, "contest %s is being frozen or unfrozen", contestID)
	}
	var coded *appErr.Error
	if err != nil && !errors.As(err, &coded) {
		return appErr.Wrap(err, appErr.CacheError)
	}
	return err
}
