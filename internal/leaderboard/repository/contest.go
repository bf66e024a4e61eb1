package repository

import (
	"context"
	"database/sql"
	"time"

	"contestjudge/internal/common/db"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/leaderboard/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/repository"
)

// ContestRepository loads contests with members and problems and owns the
// freeze flag.
type ContestRepository interface {
	FindByID(ctx context.Context, contestID string) (*model.Contest, error)
	// SetFrozenAt sets or clears (nil) the freeze instant.
	SetFrozenAt(ctx context.Context, contestID string, frozenAt *time.Time) error
	// ListAutoFreezeDue returns running, unfrozen contests whose auto-freeze
	// instant is not after now.
	ListAutoFreezeDue(ctx context.Context, now time.Time) ([]string, error)
	// AllowedLanguages returns every language any contest allows.
	AllowedLanguages(ctx context.Context) ([]profile.Language, error)
}

// MySQLContestRepository implements ContestRepository with MySQL.
type MySQLContestRepository struct {
	db db.Database
}

// NewContestRepository creates a contest repository.
func NewContestRepository(database db.Database) *MySQLContestRepository {
	return &MySQLContestRepository{db: database}
}

// FindByID loads the contest, its members and its problems ordered by letter.
func (r *MySQLContestRepository) FindByID(ctx context.Context, contestID string) (*model.Contest, error) {
	query := `
		SELECT id, slug, title, start_at, end_at, auto_freeze_at, frozen_at
		FROM contest
		WHERE id = ?
		LIMIT 1`
	var (
		c            model.Contest
		autoFreezeAt sql.NullTime
		frozenAt     sql.NullTime
	)
	err := r.db.QueryRow(ctx, query, contestID).Scan(&c.ID, &c.Slug, &c.Title, &c.StartAt, &c.EndAt, &autoFreezeAt, &frozenAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Wrapf(repository.ErrNotFound, appErr.ContestNotFound, "contest %s", contestID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest %s", contestID)
	}
	c.AutoFreezeAt = nullTime(autoFreezeAt)
	c.FrozenAt = nullTime(frozenAt)

	if c.Languages, err = r.languages(ctx, "SELECT language FROM contest_language WHERE contest_id = ? ORDER BY language", contestID); err != nil {
		return nil, err
	}
	if c.Members, err = r.members(ctx, contestID); err != nil {
		return nil, err
	}
	if c.Problems, err = r.problems(ctx, contestID); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetFrozenAt writes the freeze instant.
func (r *MySQLContestRepository) SetFrozenAt(ctx context.Context, contestID string, frozenAt *time.Time) error {
	var value interface{}
	if frozenAt != nil {
		value = frozenAt.UTC()
	}
	result, err := r.db.Exec(ctx, "UPDATE contest SET frozen_at = ? WHERE id = ?", value, contestID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update contest %s", contestID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update contest %s", contestID)
	}
	if affected == 0 {
		// MySQL reports 0 for an unchanged row too; distinguish a missing contest.
		return r.ensureExists(ctx, contestID)
	}
	return nil
}

// ListAutoFreezeDue returns ids of contests the scheduler should freeze.
func (r *MySQLContestRepository) ListAutoFreezeDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT id
		FROM contest
		WHERE auto_freeze_at IS NOT NULL AND auto_freeze_at <= ?
		  AND frozen_at IS NULL
		  AND end_at > ?
		ORDER BY auto_freeze_at ASC`
	rows, err := r.db.Query(ctx, query, now.UTC(), now.UTC())
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contests to freeze")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan contest id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contests to freeze")
	}
	return ids, nil
}

// AllowedLanguages lists the distinct languages of all contests.
func (r *MySQLContestRepository) AllowedLanguages(ctx context.Context) ([]profile.Language, error) {
	return r.languages(ctx, "SELECT DISTINCT language FROM contest_language ORDER BY language")
}

func (r *MySQLContestRepository) ensureExists(ctx context.Context, contestID string) error {
	var id string
	err := r.db.QueryRow(ctx, "SELECT id FROM contest WHERE id = ? LIMIT 1", contestID).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return appErr.Wrapf(repository.ErrNotFound, appErr.ContestNotFound, "contest %s", contestID)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "load contest %s", contestID)
	}
	return nil
}

func (r *MySQLContestRepository) languages(ctx context.Context, query string, args ...interface{}) ([]profile.Language, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contest languages")
	}
	defer rows.Close()
	var out []profile.Language
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan contest language")
		}
		lang, err := profile.ParseLanguage(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, lang)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contest languages")
	}
	return out, nil
}

func (r *MySQLContestRepository) members(ctx context.Context, contestID string) ([]model.Member, error) {
	query := `
		SELECT m.id, m.name, m.type
		FROM member m
		WHERE m.contest_id = ?
		ORDER BY m.name`
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contest members")
	}
	defer rows.Close()
	var out []model.Member
	for rows.Next() {
		var (
			m    model.Member
			kind string
		)
		if err := rows.Scan(&m.ID, &m.Name, &kind); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan contest member")
		}
		m.Type = model.MemberType(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contest members")
	}
	return out, nil
}

func (r *MySQLContestRepository) problems(ctx context.Context, contestID string) ([]judgemodel.Problem, error) {
	query := `
		SELECT id, contest_id, letter, title, time_limit_ms, memory_limit_mb, test_cases_key, description_key
		FROM problem
		WHERE contest_id = ?
		ORDER BY letter`
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contest problems")
	}
	defer rows.Close()
	var out []judgemodel.Problem
	for rows.Next() {
		var p judgemodel.Problem
		if err := rows.Scan(&p.ID, &p.ContestID, &p.Letter, &p.Title, &p.TimeLimitMs, &p.MemoryLimitMB, &p.TestCasesKey, &p.DescriptionKey); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan contest problem")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contest problems")
	}
	return out, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
