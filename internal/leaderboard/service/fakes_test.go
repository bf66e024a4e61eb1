package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"contestjudge/internal/common/cache"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/leaderboard/model"
	"contestjudge/internal/leaderboard/service"
	appErr "contestjudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var contestStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return contestStart.Add(time.Duration(minutes) * time.Minute)
}

type fakeContests struct {
	mu        sync.Mutex
	contests  map[string]*model.Contest
	due       []string
	dueErr    error
	freezeSet int
}

func (f *fakeContests) FindByID(ctx context.Context, id string) (*model.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contests[id]
	if !ok {
		return nil, appErr.New(appErr.ContestNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContests) SetFrozenAt(ctx context.Context, id string, frozenAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freezeSet++
	f.contests[id].FrozenAt = frozenAt
	return nil
}

func (f *fakeContests) ListAutoFreezeDue(ctx context.Context, now time.Time) ([]string, error) {
	return f.due, f.dueErr
}

func (f *fakeContests) AllowedLanguages(ctx context.Context) ([]profile.Language, error) {
	return []profile.Language{profile.CPP17}, nil
}

type fakeSubmissions struct {
	items []*judgemodel.Submission
}

func (f *fakeSubmissions) FindByID(ctx context.Context, id string) (*judgemodel.Submission, error) {
	for _, s := range f.items {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, appErr.New(appErr.SubmissionNotFound)
}

func (f *fakeSubmissions) SaveVerdict(ctx context.Context, id string, status judgemodel.Status, answer judgemodel.Answer, expectedVersion int64) error {
	return nil
}

func (f *fakeSubmissions) ListByContest(ctx context.Context, contestID string, createdAfter *time.Time) ([]*judgemodel.Submission, error) {
	var out []*judgemodel.Submission
	for _, s := range f.items {
		if s.ContestID != contestID {
			continue
		}
		if createdAfter != nil && !s.CreatedAt.After(*createdAfter) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSubmissions) ListByMemberProblem(ctx context.Context, memberID, problemID string) ([]*judgemodel.Submission, error) {
	var out []*judgemodel.Submission
	for _, s := range f.items {
		if s.MemberID == memberID && s.ProblemID == problemID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeProblems map[string]judgemodel.Problem

func (f fakeProblems) FindByID(ctx context.Context, id string) (*judgemodel.Problem, error) {
	p, ok := f[id]
	if !ok {
		return nil, appErr.New(appErr.ProblemNotFound)
	}
	return &p, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []judgemodel.Event
}

func (f *fakeEvents) Publish(ctx context.Context, e judgemodel.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
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

func sub(id, member, problem string, minute int, status judgemodel.Status, answer judgemodel.Answer) *judgemodel.Submission {
	return &judgemodel.Submission{
		ID:        id,
		ContestID: "c1",
		MemberID:  member,
		ProblemID: problem,
		Status:    status,
		Answer:    answer,
		CreatedAt: at(minute),
	}
}

func judged(id, member, problem string, minute int, answer judgemodel.Answer) *judgemodel.Submission {
	return sub(id, member, problem, minute, judgemodel.StatusJudged, answer)
}

type harness struct {
	svc         *service.Service
	contests    *fakeContests
	submissions *fakeSubmissions
	events      *fakeEvents
	cache       *cache.RedisCache
	now         time.Time
}

// newHarness seeds contest c1 with three contestants, one judge and two
// problems. The clock reads start+25m.
func newHarness(t *testing.T) *harness {
	t.Helper()
	problems := []judgemodel.Problem{
		{ID: "p1", ContestID: "c1", Letter: "A"},
		{ID: "p2", ContestID: "c1", Letter: "B"},
	}
	contests := &fakeContests{contests: map[string]*model.Contest{
		"c1": {
			ID:      "c1",
			Slug:    "spring",
			StartAt: contestStart,
			EndAt:   at(300),
			Members: []model.Member{
				{ID: "m-carol", Name: "carol", Type: model.MemberContestant},
				{ID: "m-jury", Name: "jury", Type: model.MemberJudge},
				{ID: "m-bob", Name: "bob", Type: model.MemberContestant},
				{ID: "m-alice", Name: "alice", Type: model.MemberContestant},
			},
			Problems: problems,
		},
	}}
	submissions := &fakeSubmissions{items: []*judgemodel.Submission{
		judged("s1", "m-alice", "p1", 5, judgemodel.AnswerWrongAnswer),
		judged("s2", "m-alice", "p1", 12, judgemodel.AnswerAccepted),
		judged("s3", "m-alice", "p1", 15, judgemodel.AnswerWrongAnswer),
		judged("s4", "m-bob", "p1", 20, judgemodel.AnswerAccepted),
		judged("s5", "m-carol", "p1", 20, judgemodel.AnswerAccepted),
		judged("s6", "m-jury", "p1", 1, judgemodel.AnswerAccepted),
		judged("s7", "m-alice", "p2", 30, judgemodel.AnswerAccepted),
		sub("s8", "m-bob", "p2", 40, judgemodel.StatusJudging, judgemodel.AnswerNoAnswer),
		sub("s9", "m-carol", "p2", 50, judgemodel.StatusFailed, judgemodel.AnswerNoAnswer),
	}}

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	h := &harness{contests: contests, submissions: submissions, events: &fakeEvents{}, cache: c, now: at(25)}
	byID := fakeProblems{}
	for _, p := range problems {
		byID[p.ID] = p
	}
	svc, err := service.NewService(service.Config{
		Contests:    contests,
		Submissions: submissions,
		Problems:    byID,
		Events:      h.events,
		Locker:      c,
		LockWait:    100 * time.Millisecond,
		Now:         func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}
