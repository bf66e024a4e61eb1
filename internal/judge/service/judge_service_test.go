package service_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/service"
	appErr "contestjudge/pkg/errors"
)

type harness struct {
	svc      *service.Service
	subs     *fakeSubmissions
	problems *fakeProblems
	execs    *fakeExecutions
	sandbox  *fakeSandbox
	events   *fakeEvents
	failures *fakePusher
	board    *fakeLeaderboard
}

func newHarness(t *testing.T, lang profile.Language, results ...execResult) *harness {
	t.Helper()
	registry, err := profile.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	h := &harness{
		subs: newFakeSubmissions(&model.Submission{
			ID:        "s1",
			ContestID: "c1",
			MemberID:  "m1",
			ProblemID: "p1",
			Language:  lang,
			Status:    model.StatusJudging,
			Answer:    model.AnswerNoAnswer,
			CodeKey:   "code/s1",
			Version:   1,
		}),
		problems: &fakeProblems{
			problem: &model.Problem{ID: "p1", ContestID: "c1", Letter: "A", TimeLimitMs: 1000, MemoryLimitMB: 256, TestCasesKey: "tc/p1.csv"},
			cases: []model.TestCase{
				{Input: "1 2", ExpectedOutput: "3"},
				{Input: "2 2", ExpectedOutput: "4"},
			},
		},
		sandbox:  &fakeSandbox{results: results},
		events:   &fakeEvents{},
		failures: &fakePusher{},
		board:    &fakeLeaderboard{},
	}
	h.execs = &fakeExecutions{subs: h.subs}
	h.svc, err = service.NewService(service.Config{
		Submissions:  h.subs,
		Problems:     h.problems,
		Executions:   h.execs,
		Attachments:  &fakeAttachments{data: map[string][]byte{"code/s1": []byte("print(sum(map(int, input().split())))")}},
		Profiles:     registry,
		Sandbox:      h.sandbox,
		Events:       h.events,
		FailureQueue: h.failures,
		Leaderboard:  h.board,
		WorkRoot:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return h
}

func TestHandleMessageVerdicts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		lang         profile.Language
		results      []execResult
		wantAnswer   model.Answer
		wantLast     int
		wantApproved int
		wantOutput   string
	}{
		{
			name:         "accepted ignores trailing whitespace",
			lang:         profile.Python312,
			results:      []execResult{{stdout: "3\n"}, {stdout: "4 \n\n"}},
			wantAnswer:   model.AnswerAccepted,
			wantLast:     1,
			wantApproved: 2,
		},
		{
			name:         "wrong answer",
			lang:         profile.Python312,
			results:      []execResult{{stdout: "3"}, {stdout: "5\n"}},
			wantAnswer:   model.AnswerWrongAnswer,
			wantLast:     1,
			wantApproved: 1,
			wantOutput:   "5\n",
		},
		{
			name:       "time limit",
			lang:       profile.Python312,
			results:    []execResult{{err: timeoutErr()}},
			wantAnswer: model.AnswerTimeLimitExceeded,
			wantLast:   0,
			wantOutput: appErr.SandboxTimeout.Message(),
		},
		{
			name:         "memory limit",
			lang:         profile.Python312,
			results:      []execResult{{stdout: "3"}, {err: oomErr()}},
			wantAnswer:   model.AnswerMemoryLimitExceeded,
			wantLast:     1,
			wantApproved: 1,
			wantOutput:   appErr.SandboxOOM.Message(),
		},
		{
			name:       "runtime error",
			lang:       profile.Python312,
			results:    []execResult{{err: exitErr(1, "ZeroDivisionError")}},
			wantAnswer: model.AnswerRuntimeError,
			wantLast:   0,
			wantOutput: "ZeroDivisionError",
		},
		{
			name:       "compilation error",
			lang:       profile.CPP17,
			results:    []execResult{{err: exitErr(1, "error: expected ';'")}},
			wantAnswer: model.AnswerCompilationError,
			wantLast:   -1,
			wantOutput: "error: expected ';'",
		},
		{
			name:       "compile timeout keeps its classification",
			lang:       profile.CPP17,
			results:    []execResult{{err: timeoutErr()}},
			wantAnswer: model.AnswerTimeLimitExceeded,
			wantLast:   -1,
			wantOutput: appErr.SandboxTimeout.Message(),
		},
		{
			name:       "compile oom keeps its classification",
			lang:       profile.Java21,
			results:    []execResult{{err: oomErr()}},
			wantAnswer: model.AnswerMemoryLimitExceeded,
			wantLast:   -1,
			wantOutput: appErr.SandboxOOM.Message(),
		},
		{
			name:         "compiled and accepted",
			lang:         profile.CPP17,
			results:      []execResult{{}, {stdout: "3"}, {stdout: "4"}},
			wantAnswer:   model.AnswerAccepted,
			wantLast:     1,
			wantApproved: 2,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.lang, tt.results...)
			if err := h.svc.HandleMessage(context.Background(), judgeMessage("s1")); err != nil {
				t.Fatalf("handle: %v", err)
			}

			sub := h.subs.get("s1")
			if sub.Status != model.StatusJudged || sub.Answer != tt.wantAnswer {
				t.Fatalf("got %s/%s want JUDGED/%s", sub.Status, sub.Answer, tt.wantAnswer)
			}
			if sub.Version != 2 {
				t.Fatalf("expected version bump, got %d", sub.Version)
			}
			if len(h.execs.created) != 1 {
				t.Fatalf("expected one execution record, got %d", len(h.execs.created))
			}
			e := h.execs.created[0]
			if e.Answer != tt.wantAnswer || e.LastTestCase != tt.wantLast || e.ApprovedTestCases != tt.wantApproved || e.TotalTestCases != 2 {
				t.Fatalf("unexpected execution %+v", e)
			}
			if e.Output != tt.wantOutput {
				t.Fatalf("unexpected diagnostics output %q", e.Output)
			}
			if len(h.sandbox.results) != 0 {
				t.Fatalf("%d scripted exec results unused", len(h.sandbox.results))
			}
			if !reflect.DeepEqual(h.sandbox.killed, []string{"judge_sb.s1"}) {
				t.Fatalf("sandbox not torn down: %v", h.sandbox.killed)
			}
			if got := h.events.types(); !reflect.DeepEqual(got, []string{model.EventSubmissionUpdated}) {
				t.Fatalf("unexpected events %v", got)
			}
			if !reflect.DeepEqual(h.board.refreshed, []string{"m1/p1"}) {
				t.Fatalf("leaderboard not refreshed: %v", h.board.refreshed)
			}
			if len(h.failures.pushed) != 0 {
				t.Fatalf("verdict must not reach failure queue")
			}
		})
	}
}

func TestHandleMessageExecRequests(t *testing.T) {
	t.Parallel()
	h := newHarness(t, profile.CPP17, execResult{}, execResult{stdout: "3"}, execResult{stdout: "4"})
	if err := h.svc.HandleMessage(context.Background(), judgeMessage("s1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	compile := h.sandbox.execs[0]
	if compile.TimeLimitMs != 10000 || compile.Stdin != "" {
		t.Fatalf("unexpected compile request %+v", compile)
	}
	for i, req := range h.sandbox.execs[1:] {
		if req.TimeLimitMs != 1000 {
			t.Fatalf("case %d: time limit %d", i, req.TimeLimitMs)
		}
		if req.Stdin != h.problems.cases[i].Input {
			t.Fatalf("case %d: stdin %q", i, req.Stdin)
		}
	}
}

func TestHandleMessageSkipsDecidedSubmission(t *testing.T) {
	t.Parallel()
	h := newHarness(t, profile.Python312)
	h.subs.items["s1"].Status = model.StatusJudged
	h.subs.items["s1"].Answer = model.AnswerAccepted

	if err := h.svc.HandleMessage(context.Background(), judgeMessage("s1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.sandbox.created) != 0 || h.subs.saves != 0 || len(h.events.events) != 0 {
		t.Fatalf("duplicate delivery must be a no-op")
	}
}

func TestHandleMessageRoutesSystemErrorsToFailureQueue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		setup   func(h *harness)
		created int
	}{
		{
			name: "provisioning",
			setup: func(h *harness) {
				h.sandbox.createErr = appErr.New(appErr.SandboxProvisionFailed)
			},
		},
		{
			name: "start failure still tears down",
			setup: func(h *harness) {
				h.sandbox.startErr = appErr.New(appErr.SandboxProvisionFailed)
			},
			created: 1,
		},
		{
			name: "malformed test cases",
			setup: func(h *harness) {
				h.problems.casesErr = appErr.New(appErr.TestCaseInvalid)
			},
		},
		{
			name: "unclassified exec failure",
			setup: func(h *harness) {
				h.sandbox.results = []execResult{{err: errors.New("docker daemon unreachable")}}
			},
			created: 1,
		},
		{
			name: "execution record not stored",
			setup: func(h *harness) {
				h.sandbox.results = []execResult{{stdout: "3"}, {stdout: "4"}}
				h.execs.err = appErr.New(appErr.StorageError)
			},
			created: 1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, profile.Python312)
			tt.setup(h)

			if err := h.svc.HandleMessage(context.Background(), judgeMessage("s1")); err == nil {
				t.Fatalf("expected error")
			}
			if !reflect.DeepEqual(h.failures.pushed, []string{"s1"}) {
				t.Fatalf("expected failure push, got %v", h.failures.pushed)
			}
			if sub := h.subs.get("s1"); sub.Status != model.StatusJudging {
				t.Fatalf("worker must not change status, got %s", sub.Status)
			}
			if len(h.sandbox.killed) != tt.created {
				t.Fatalf("expected %d teardown, got %v", tt.created, h.sandbox.killed)
			}
		})
	}
}

func TestHandleMessageTeardownErrorIsLogged(t *testing.T) {
	t.Parallel()
	h := newHarness(t, profile.Python312, execResult{stdout: "3"}, execResult{stdout: "4"})
	h.sandbox.killErr = errors.New("no such container")

	if err := h.svc.HandleMessage(context.Background(), judgeMessage("s1")); err != nil {
		t.Fatalf("teardown error leaked: %v", err)
	}
	if sub := h.subs.get("s1"); sub.Answer != model.AnswerAccepted {
		t.Fatalf("unexpected answer %s", sub.Answer)
	}
}

func TestHandleMessageVersionConflictIsSurfaced(t *testing.T) {
	t.Parallel()
	h := newHarness(t, profile.Python312, execResult{stdout: "3"}, execResult{stdout: "4"})
	h.subs.conflicts = 1

	err := h.svc.HandleMessage(context.Background(), judgeMessage("s1"))
	if !appErr.Is(err, appErr.VersionConflict) {
		t.Fatalf("expected VersionConflict, got %v", err)
	}
	if len(h.failures.pushed) != 0 {
		t.Fatalf("conflict must not reach failure queue")
	}
	if len(h.events.events) != 0 {
		t.Fatalf("no event on a lost verdict")
	}
	if len(h.execs.created) != 0 {
		t.Fatalf("lost verdict left %d execution records", len(h.execs.created))
	}
	if sub := h.subs.get("s1"); sub.Status != model.StatusJudging || sub.Answer != model.AnswerNoAnswer {
		t.Fatalf("lost verdict changed submission to %s/%s", sub.Status, sub.Answer)
	}
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
	t.Parallel()
	h := newHarness(t, profile.Python312)
	msg := judgeMessage("s1")
	msg.Body = []byte("not json")
	if err := h.svc.HandleMessage(context.Background(), msg); appErr.GetCode(err) != appErr.InvalidParams {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}
