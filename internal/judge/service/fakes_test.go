package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox"
	appErr "contestjudge/pkg/errors"
	pkgrepo "contestjudge/pkg/repository"
)

type fakeSubmissions struct {
	mu    sync.Mutex
	items map[string]*model.Submission
	// conflicts forces that many SaveVerdict calls to report a conflict.
	conflicts int
	// errs fails SaveVerdict calls in order; a nil entry lets that call through.
	errs  []error
	saves int
}

func newFakeSubmissions(subs ...*model.Submission) *fakeSubmissions {
	f := &fakeSubmissions{items: map[string]*model.Submission{}}
	for _, s := range subs {
		f.items[s.ID] = s
	}
	return f
}

func (f *fakeSubmissions) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return nil, appErr.Wrapf(pkgrepo.ErrNotFound, appErr.SubmissionNotFound, "submission %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) SaveVerdict(ctx context.Context, id string, status model.Status, answer model.Answer, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	s, ok := f.items[id]
	if !ok {
		return appErr.New(appErr.SubmissionNotFound)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	if f.conflicts > 0 {
		f.conflicts--
		s.Version++
		return appErr.ConflictError("submission", expectedVersion)
	}
	if s.Version != expectedVersion {
		return appErr.ConflictError("submission", expectedVersion)
	}
	s.Status = status
	s.Answer = answer
	s.Version++
	return nil
}

func (f *fakeSubmissions) ListByContest(ctx context.Context, contestID string, createdAfter *time.Time) ([]*model.Submission, error) {
	return nil, nil
}

func (f *fakeSubmissions) ListByMemberProblem(ctx context.Context, memberID, problemID string) ([]*model.Submission, error) {
	return nil, nil
}

func (f *fakeSubmissions) get(id string) model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

type fakeProblems struct {
	problem  *model.Problem
	cases    []model.TestCase
	casesErr error
}

func (f *fakeProblems) FindByID(ctx context.Context, id string) (*model.Problem, error) {
	if f.problem == nil || f.problem.ID != id {
		return nil, appErr.New(appErr.ProblemNotFound)
	}
	return f.problem, nil
}

func (f *fakeProblems) FindTestCases(ctx context.Context, p *model.Problem) ([]model.TestCase, error) {
	return f.cases, f.casesErr
}

// fakeExecutions commits the verdict through subs and keeps the record only
// when that succeeded, as the transactional repository does.
type fakeExecutions struct {
	subs    *fakeSubmissions
	created []*model.Execution
	err     error
}

func (f *fakeExecutions) CreateJudged(ctx context.Context, e *model.Execution, expectedVersion int64) error {
	if f.err != nil {
		return f.err
	}
	if err := f.subs.SaveVerdict(ctx, e.SubmissionID, model.StatusJudged, e.Answer, expectedVersion); err != nil {
		return err
	}
	f.created = append(f.created, e)
	return nil
}

func (f *fakeExecutions) FindLatest(ctx context.Context, id string) (*model.Execution, error) {
	if len(f.created) == 0 {
		return nil, appErr.New(appErr.RecordNotFound)
	}
	return f.created[len(f.created)-1], nil
}

type fakeAttachments struct {
	data map[string][]byte
}

func (f *fakeAttachments) Download(ctx context.Context, key string) ([]byte, error) {
	d, ok := f.data[key]
	if !ok {
		return nil, appErr.New(appErr.NotFound)
	}
	return d, nil
}

type execResult struct {
	stdout string
	err    error
}

// fakeSandbox answers Exec calls in order: the compile step first when the
// profile compiles, then one result per test case.
type fakeSandbox struct {
	mu        sync.Mutex
	createErr error
	startErr  error
	killErr   error
	results   []execResult
	execs     []sandbox.ExecRequest
	created   []string
	killed    []string
}

func (f *fakeSandbox) Create(ctx context.Context, image string, memoryLimitMB int64, name string) (sandbox.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return sandbox.Handle{}, f.createErr
	}
	f.created = append(f.created, name)
	return sandbox.Handle{Name: name}, nil
}

func (f *fakeSandbox) Start(ctx context.Context, h sandbox.Handle) error {
	return f.startErr
}

func (f *fakeSandbox) CopyIn(ctx context.Context, h sandbox.Handle, src, dst string) error {
	return nil
}

func (f *fakeSandbox) Exec(ctx context.Context, h sandbox.Handle, req sandbox.ExecRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, req)
	if len(f.results) == 0 {
		return "", errors.New("unexpected exec")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.stdout, r.err
}

func (f *fakeSandbox) Kill(ctx context.Context, h sandbox.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, h.Name)
	return f.killErr
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (f *fakeEvents) Publish(ctx context.Context, e model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakePusher struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (f *fakePusher) Push(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, id)
	return nil
}

type fakeLeaderboard struct {
	refreshed []string
}

func (f *fakeLeaderboard) RefreshPartial(ctx context.Context, s *model.Submission) error {
	f.refreshed = append(f.refreshed, s.MemberID+"/"+s.ProblemID)
	return nil
}

func judgeMessage(id string) *mq.Message {
	body, _ := json.Marshal(model.JudgeMessage{SubmissionID: id})
	m := mq.NewMessage(body)
	m.ID = id
	m.SetHeader(mq.HeaderTraceID, "trace-1")
	return m
}

func timeoutErr() error { return appErr.New(appErr.SandboxTimeout) }

func oomErr() error { return appErr.New(appErr.SandboxOOM) }

func exitErr(code int, output string) error {
	return appErr.Wrap(&sandbox.ExecError{ExitCode: code, Output: output}, appErr.SandboxExecFailed)
}
