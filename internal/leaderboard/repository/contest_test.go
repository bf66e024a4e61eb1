package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"contestjudge/internal/common/db"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/leaderboard/model"
	"contestjudge/internal/leaderboard/repository"
	appErr "contestjudge/pkg/errors"
	pkgrepo "contestjudge/pkg/repository"
)

// scriptedDB answers each query with the rows registered under the first
// matching query fragment.
type scriptedDB struct {
	rows     map[string][][]interface{}
	rowErr   map[string]error
	affected int64
	execs    []string
	queries  []string
}

func (s *scriptedDB) match(query string) string {
	for fragment := range s.rows {
		if strings.Contains(query, fragment) {
			return fragment
		}
	}
	for fragment := range s.rowErr {
		if strings.Contains(query, fragment) {
			return fragment
		}
	}
	return ""
}

func (s *scriptedDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	s.queries = append(s.queries, query)
	key := s.match(query)
	if key == "" {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return &scriptedRows{values: s.rows[key]}, nil
}

func (s *scriptedDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	s.queries = append(s.queries, query)
	key := s.match(query)
	if err, ok := s.rowErr[key]; ok {
		return scriptedRow{err: err}
	}
	values := s.rows[key]
	if len(values) == 0 {
		return scriptedRow{err: sql.ErrNoRows}
	}
	return scriptedRow{values: values[0]}
}

func (s *scriptedDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	s.execs = append(s.execs, query)
	return affectedResult(s.affected), nil
}

func (s *scriptedDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return errors.New("transactions not supported")
}

func (s *scriptedDB) Ping(ctx context.Context) error { return nil }

func (s *scriptedDB) Close() error { return nil }

type affectedResult int64

func (r affectedResult) LastInsertId() (int64, error) { return 0, nil }

func (r affectedResult) RowsAffected() (int64, error) { return int64(r), nil }

type scriptedRows struct {
	values [][]interface{}
	pos    int
}

func (r *scriptedRows) Next() bool {
	r.pos++
	return r.pos <= len(r.values)
}

func (r *scriptedRows) Scan(dest ...interface{}) error {
	return assign(dest, r.values[r.pos-1])
}

func (r *scriptedRows) Close() error { return nil }

func (r *scriptedRows) Err() error { return nil }

type scriptedRow struct {
	values []interface{}
	err    error
}

func (r scriptedRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

func assign(dest, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

var (
	start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end   = start.Add(5 * time.Hour)
)

func TestFindByIDLoadsAggregate(t *testing.T) {
	t.Parallel()
	freezeAt := start.Add(4 * time.Hour)
	database := &scriptedDB{rows: map[string][][]interface{}{
		"FROM contest\n": {{"c1", "spring", "Spring Cup", start, end, sql.NullTime{Time: freezeAt, Valid: true}, sql.NullTime{}}},
		"FROM contest_language": {{"CPP_17"}, {"PYTHON_312"}},
		"FROM member m": {
			{"m1", "alice", "CONTESTANT"},
			{"m2", "jury", "JUDGE"},
		},
		"FROM problem": {
			{"p1", "c1", "A", "Sum", int64(1000), int64(256), "tests/p1.csv", ""},
			{"p2", "c1", "B", "Max", int64(2000), int64(128), "tests/p2.csv", "desc/p2.md"},
		},
	}}
	repo := repository.NewContestRepository(database)

	c, err := repo.FindByID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c.Slug != "spring" || !c.StartAt.Equal(start) || !c.EndAt.Equal(end) {
		t.Fatalf("unexpected contest header %+v", c)
	}
	if c.AutoFreezeAt == nil || !c.AutoFreezeAt.Equal(freezeAt) {
		t.Fatalf("unexpected auto freeze %v", c.AutoFreezeAt)
	}
	if c.IsFrozen() {
		t.Fatalf("contest must not be frozen")
	}
	if want := []profile.Language{profile.CPP17, profile.Python312}; !reflect.DeepEqual(c.Languages, want) {
		t.Fatalf("languages = %v, want %v", c.Languages, want)
	}
	if len(c.Members) != 2 || c.Members[1].Type != model.MemberJudge {
		t.Fatalf("unexpected members %+v", c.Members)
	}
	if p, ok := c.Problem("p2"); !ok || p.TimeLimitMs != 2000 || p.MemoryLimitMB != 128 {
		t.Fatalf("unexpected problem %+v", p)
	}
}

func TestFindByIDRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()
	database := &scriptedDB{rows: map[string][][]interface{}{
		"FROM contest\n":        {{"c1", "spring", "Spring Cup", start, end, sql.NullTime{}, sql.NullTime{}}},
		"FROM contest_language": {{"COBOL"}},
	}}
	repo := repository.NewContestRepository(database)

	_, err := repo.FindByID(context.Background(), "c1")
	if appErr.GetCode(err) != appErr.LanguageNotSupported {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	t.Parallel()
	repo := repository.NewContestRepository(&scriptedDB{rowErr: map[string]error{"FROM contest\n": sql.ErrNoRows}})

	_, err := repo.FindByID(context.Background(), "missing")
	if !appErr.Is(err, appErr.ContestNotFound) {
		t.Fatalf("expected ContestNotFound, got %v", err)
	}
	if !pkgrepo.IsNotFoundError(err) {
		t.Fatalf("expected ErrNotFound in chain")
	}
}

func TestSetFrozenAt(t *testing.T) {
	t.Parallel()
	frozen := start.Add(4 * time.Hour)

	tests := []struct {
		name     string
		affected int64
		existing bool
		wantCode appErr.ErrorCode
	}{
		{name: "updated", affected: 1, wantCode: appErr.Success},
		{name: "unchanged row", affected: 0, existing: true, wantCode: appErr.Success},
		{name: "missing contest", affected: 0, wantCode: appErr.ContestNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			database := &scriptedDB{affected: tt.affected, rows: map[string][][]interface{}{}}
			if tt.existing {
				database.rows["SELECT id FROM contest"] = [][]interface{}{{"c1"}}
			} else {
				database.rowErr = map[string]error{"SELECT id FROM contest": sql.ErrNoRows}
			}
			repo := repository.NewContestRepository(database)

			err := repo.SetFrozenAt(context.Background(), "c1", &frozen)
			if got := appErr.GetCode(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", got, tt.wantCode, err)
			}
			if len(database.execs) != 1 {
				t.Fatalf("expected one update, got %d", len(database.execs))
			}
		})
	}
}

func TestListAutoFreezeDue(t *testing.T) {
	t.Parallel()
	database := &scriptedDB{rows: map[string][][]interface{}{
		"auto_freeze_at <= ?": {{"c1"}, {"c3"}},
	}}
	repo := repository.NewContestRepository(database)

	ids, err := repo.ListAutoFreezeDue(context.Background(), start.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"c1", "c3"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
}
