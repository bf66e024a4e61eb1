package service

import (
	"context"
	"fmt"
	"time"

	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/repository"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultConflictRetries = 3
	defaultConflictBackoff = 50 * time.Millisecond
)

// FailureConfig configures the failure consumer.
type FailureConfig struct {
	Submissions repository.SubmissionRepository
	Events      repository.EventPublisher
	// ConflictRetries bounds re-reads after a version conflict.
	ConflictRetries uint64
	ConflictBackoff time.Duration
	Now             func() time.Time
}

// FailureService consumes the failure queue and marks submissions FAILED,
// leaving their answer untouched.
type FailureService struct {
	submissions repository.SubmissionRepository
	events      repository.EventPublisher
	retries     uint64
	backoff     time.Duration
	now         func() time.Time
}

// NewFailureService creates the failure consumer.
func NewFailureService(cfg FailureConfig) (*FailureService, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = defaultConflictRetries
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = defaultConflictBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FailureService{
		submissions: cfg.Submissions,
		events:      cfg.Events,
		retries:     cfg.ConflictRetries,
		backoff:     cfg.ConflictBackoff,
		now:         cfg.Now,
	}, nil
}

// HandleMessage processes one message from the failure queue.
func (s *FailureService) HandleMessage(ctx context.Context, msg *mq.Message) error {
	submissionID, err := decodeJudgeMessage(msg)
	if err != nil {
		return err
	}
	ctx = messageContext(ctx, msg, submissionID)
	_, err = s.MarkFailed(ctx, submissionID)
	return err
}

// MarkFailed moves a JUDGING submission to FAILED. It returns nil without a
// write when the submission is already terminal.
func (s *FailureService) MarkFailed(ctx context.Context, submissionID string) (*model.Submission, error) {
	var failed *model.Submission
	b := retry.WithMaxRetries(s.retries, retry.NewConstant(s.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		sub, err := s.submissions.FindByID(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub.IsTerminal() {
			logger.Info(ctx, "submission already terminal, failure ignored", zap.String("status", string(sub.Status)))
			return nil
		}
		err = s.submissions.SaveVerdict(ctx, sub.ID, model.StatusFailed, sub.Answer, sub.Version)
		if appErr.Is(err, appErr.VersionConflict) {
			logger.Warn(ctx, "version conflict marking submission failed, re-reading", zap.Int64("expected_version", sub.Version))
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		updated := *sub
		updated.Status = model.StatusFailed
		updated.Version = sub.Version + 1
		updated.UpdatedAt = s.now().UTC()
		failed = &updated
		return nil
	})
	if err != nil {
		logger.Error(ctx, "mark submission failed gave up", zap.Error(err))
		return nil, err
	}
	if failed != nil {
		logger.Info(ctx, "submission marked failed")
		publishSubmissionUpdated(ctx, s.events, failed)
	}
	return failed, nil
}
