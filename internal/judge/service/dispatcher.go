package service

import (
	"context"
	"fmt"
	"time"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/repository"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const revertTimeout = 5 * time.Second

// Dispatcher puts submissions on the submission queue.
type Dispatcher struct {
	submissions repository.SubmissionRepository
	queue       SubmissionPusher
	events      repository.EventPublisher
}

// NewDispatcher creates a dispatcher. events may be nil.
func NewDispatcher(submissions repository.SubmissionRepository, queue SubmissionPusher, events repository.EventPublisher) (*Dispatcher, error) {
	if submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("submission queue is required")
	}
	return &Dispatcher{submissions: submissions, queue: queue, events: events}, nil
}

// Enqueue publishes a submission id for judging. It returns once the broker
// accepted the message, not when a worker picked it up.
func (d *Dispatcher) Enqueue(ctx context.Context, submissionID string) error {
	if err := d.queue.Push(ctx, submissionID); err != nil {
		return err
	}
	logger.Info(ctx, "submission enqueued", zap.String("submission_id", submissionID))
	return nil
}

// EnqueueJudging validates that the submission is still JUDGING before
// enqueueing it. Used by the intake hook.
func (d *Dispatcher) EnqueueJudging(ctx context.Context, submissionID string) (*model.Submission, error) {
	sub, err := d.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusJudging {
		return nil, appErr.Newf(appErr.SubmissionNotJudging, "submission %s is %s", sub.ID, sub.Status)
	}
	if err := d.Enqueue(ctx, sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

// Requeue is the operator retry: a FAILED submission goes back to JUDGING
// with no answer and is enqueued again.
func (d *Dispatcher) Requeue(ctx context.Context, submissionID string) (*model.Submission, error) {
	sub, err := d.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusFailed {
		return nil, appErr.Newf(appErr.SubmissionNotRequeable, "submission %s is %s, only FAILED can be requeued", sub.ID, sub.Status)
	}
	if err := d.submissions.SaveVerdict(ctx, sub.ID, model.StatusJudging, model.AnswerNoAnswer, sub.Version); err != nil {
		return nil, err
	}
	reopened := *sub
	reopened.Status = model.StatusJudging
	reopened.Answer = model.AnswerNoAnswer
	reopened.Version = sub.Version + 1
	if err := d.Enqueue(ctx, sub.ID); err != nil {
		return nil, d.revertRequeue(ctx, sub, reopened.Version, err)
	}
	if d.events != nil {
		publishSubmissionUpdated(ctx, d.events, &reopened)
	}
	logger.Info(ctx, "submission requeued", zap.String("submission_id", sub.ID))
	return &reopened, nil
}

// revertRequeue puts a submission whose requeue could not be enqueued back to
// FAILED. When that write fails too the submission is JUDGING with nothing
// queued, and the returned error says so.
func (d *Dispatcher) revertRequeue(ctx context.Context, sub *model.Submission, version int64, cause error) error {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()
	err := d.submissions.SaveVerdict(revertCtx, sub.ID, model.StatusFailed, sub.Answer, version)
	if err == nil {
		logger.Warn(ctx, "requeue not enqueued, submission back to FAILED", zap.String("submission_id", sub.ID), zap.Error(cause))
		return cause
	}
	logger.Error(ctx, "requeue left submission judging without a queued message",
		zap.String("submission_id", sub.ID),
		zap.NamedError("enqueue_error", cause),
		zap.Error(err),
	)
	return appErr.Wrapf(cause, appErr.SubmissionStranded, "submission %s is JUDGING but not queued; enqueue it again", sub.ID)
}
