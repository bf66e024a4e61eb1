package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/repository"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/profile"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/contextkey"
	"contestjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sandboxNamePrefix      = "judge_sb."
	defaultTeardownTimeout = 10 * time.Second
)

// AttachmentDownloader fetches submitted source files.
type AttachmentDownloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// SubmissionPusher publishes a submission id to a queue.
type SubmissionPusher interface {
	Push(ctx context.Context, submissionID string) error
}

// LeaderboardUpdater recomputes and announces the leaderboard cell a judged
// submission belongs to.
type LeaderboardUpdater interface {
	RefreshPartial(ctx context.Context, submission *model.Submission) error
}

// Config holds service dependencies and settings.
type Config struct {
	Submissions  repository.SubmissionRepository
	Problems     repository.ProblemRepository
	Executions   repository.ExecutionRepository
	Attachments  AttachmentDownloader
	Profiles     *profile.Registry
	Sandbox      sandbox.Controller
	Events       repository.EventPublisher
	FailureQueue SubmissionPusher
	// Leaderboard is optional.
	Leaderboard LeaderboardUpdater

	// WorkRoot holds per-submission temp directories. Defaults to os.TempDir().
	WorkRoot        string
	TeardownTimeout time.Duration
	Now             func() time.Time
}

// Service is the judge worker: it turns one queued submission id into a verdict.
type Service struct {
	submissions  repository.SubmissionRepository
	problems     repository.ProblemRepository
	executions   repository.ExecutionRepository
	attachments  AttachmentDownloader
	profiles     *profile.Registry
	sandbox      sandbox.Controller
	events       repository.EventPublisher
	failureQueue SubmissionPusher
	leaderboard  LeaderboardUpdater

	workRoot        string
	teardownTimeout time.Duration
	now             func() time.Time
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Executions == nil {
		return nil, fmt.Errorf("execution repository is required")
	}
	if cfg.Attachments == nil {
		return nil, fmt.Errorf("attachment downloader is required")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile registry is required")
	}
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox controller is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if cfg.FailureQueue == nil {
		return nil, fmt.Errorf("failure queue is required")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = defaultTeardownTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		submissions:     cfg.Submissions,
		problems:        cfg.Problems,
		executions:      cfg.Executions,
		attachments:     cfg.Attachments,
		profiles:        cfg.Profiles,
		sandbox:         cfg.Sandbox,
		events:          cfg.Events,
		failureQueue:    cfg.FailureQueue,
		leaderboard:     cfg.Leaderboard,
		workRoot:        cfg.WorkRoot,
		teardownTimeout: cfg.TeardownTimeout,
		now:             cfg.Now,
	}, nil
}

// HandleMessage processes one message from the submission queue. The queue
// acknowledges the message whatever this returns.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	submissionID, err := decodeJudgeMessage(msg)
	if err != nil {
		return err
	}
	ctx = messageContext(ctx, msg, submissionID)

	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if appErr.Is(err, appErr.SubmissionNotFound) {
			logger.Warn(ctx, "drop message for unknown submission")
			return err
		}
		s.routeToFailure(ctx, submissionID, err)
		return err
	}
	if sub.Status != model.StatusJudging {
		// Duplicate delivery of an already decided submission.
		logger.Info(ctx, "skip submission that is not judging", zap.String("status", string(sub.Status)))
		return nil
	}

	logger.Info(ctx, "judging submission",
		zap.String("problem_id", sub.ProblemID),
		zap.String("language", string(sub.Language)),
	)
	start := s.now()
	out, err := s.judge(ctx, sub)
	if err != nil {
		s.routeToFailure(ctx, sub.ID, err)
		return err
	}
	logger.Info(ctx, "verdict reached",
		zap.String("answer", string(out.answer)),
		zap.Int("approved", out.approved),
		zap.Int("total", out.total),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return s.finalize(ctx, sub, out)
}

// finalize persists the verdict with its execution record and announces it.
func (s *Service) finalize(ctx context.Context, sub *model.Submission, out outcome) error {
	execution := &model.Execution{
		ID:                uuid.NewString(),
		SubmissionID:      sub.ID,
		Answer:            out.answer,
		TotalTestCases:    out.total,
		LastTestCase:      out.last,
		ApprovedTestCases: out.approved,
		CreatedAt:         s.now().UTC(),
		Input:             out.input,
		Output:            out.output,
	}
	if err := s.executions.CreateJudged(ctx, execution, sub.Version); err != nil {
		if appErr.Is(err, appErr.VersionConflict) {
			logger.Warn(ctx, "verdict lost a concurrent update", zap.Int64("expected_version", sub.Version), zap.Error(err))
			return err
		}
		s.routeToFailure(ctx, sub.ID, err)
		return err
	}

	judged := *sub
	judged.Status = model.StatusJudged
	judged.Answer = out.answer
	judged.Version = sub.Version + 1
	judged.UpdatedAt = s.now().UTC()
	publishSubmissionUpdated(ctx, s.events, &judged)

	if s.leaderboard != nil {
		if err := s.leaderboard.RefreshPartial(ctx, &judged); err != nil {
			logger.Warn(ctx, "refresh leaderboard partial failed", zap.Error(err))
		}
	}
	return nil
}

// routeToFailure hands the submission to the failure consumer. The push uses
// a context detached from ctx so a shutting-down worker still reports it.
func (s *Service) routeToFailure(ctx context.Context, submissionID string, cause error) {
	logger.Error(ctx, "judge failed, routing to failure queue", zap.Error(cause))
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.teardownTimeout)
	defer cancel()
	if err := s.failureQueue.Push(pushCtx, submissionID); err != nil {
		logger.Error(ctx, "publish to failure queue failed", zap.Error(err))
	}
}

// writeSource stores the attachment where the sandbox can copy it from.
func (s *Service) writeSource(sub *model.Submission, prof profile.Profile, code []byte) (string, func(), error) {
	dir, err := os.MkdirTemp(s.workRoot, "judge_"+sub.ID+"_")
	if err != nil {
		return "", nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	path := filepath.Join(dir, prof.SourceFile)
	if err := os.WriteFile(path, code, 0o644); err != nil {
		cleanup()
		return "", nil, appErr.Wrapf(err, appErr.JudgeSystemError, "write source file")
	}
	return path, cleanup, nil
}

func publishSubmissionUpdated(ctx context.Context, events repository.EventPublisher, sub *model.Submission) {
	err := events.Publish(ctx, model.Event{
		Type:      model.EventSubmissionUpdated,
		ContestID: sub.ContestID,
		Payload:   sub,
	})
	if err != nil {
		logger.Warn(ctx, "publish submission updated failed", zap.Error(err))
	}
}

func decodeJudgeMessage(msg *mq.Message) (string, error) {
	if msg == nil {
		return "", appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return "", appErr.Wrapf(err, appErr.InvalidParams, "decode message failed")
	}
	if payload.SubmissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	return payload.SubmissionID, nil
}

// messageContext carries the producer's trace id into the handler's logs.
func messageContext(ctx context.Context, msg *mq.Message, submissionID string) context.Context {
	traceID, ok := msg.GetHeader(mq.HeaderTraceID)
	if !ok || traceID == "" {
		traceID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, contextkey.TraceID, traceID)
	return context.WithValue(ctx, contextkey.SubmissionID, submissionID)
}
