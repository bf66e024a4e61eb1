package service

import (
	"context"
	"time"

	"contestjudge/internal/leaderboard/model"
	"contestjudge/internal/leaderboard/repository"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultFreezeInterval = 30 * time.Second

// Freezer freezes a contest's standings.
type Freezer interface {
	Freeze(ctx context.Context, contestID string) (*model.Leaderboard, error)
}

// AutoFreezeScheduler freezes contests once their auto-freeze instant passes.
type AutoFreezeScheduler struct {
	contests repository.ContestRepository
	freezer  Freezer
	interval time.Duration
	now      func() time.Time
}

// NewAutoFreezeScheduler creates a scheduler polling every interval.
func NewAutoFreezeScheduler(contests repository.ContestRepository, freezer Freezer, interval time.Duration) *AutoFreezeScheduler {
	if interval <= 0 {
		interval = defaultFreezeInterval
	}
	return &AutoFreezeScheduler{contests: contests, freezer: freezer, interval: interval, now: time.Now}
}

// Run ticks until ctx is cancelled.
func (s *AutoFreezeScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick freezes every due contest and returns how many were frozen.
func (s *AutoFreezeScheduler) Tick(ctx context.Context) int {
	due, err := s.contests.ListAutoFreezeDue(ctx, s.now().UTC())
	if err != nil {
		logger.Warn(ctx, "list auto-freeze contests failed", zap.Error(err))
		return 0
	}
	frozen := 0
	for _, id := range due {
		if _, err := s.freezer.Freeze(ctx, id); err != nil {
			logger.Warn(ctx, "auto-freeze failed", zap.String("contest_id", id), zap.Error(err))
			continue
		}
		frozen++
	}
	return frozen
}
